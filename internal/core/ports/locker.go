package ports

import "context"

// AccountLocker serialises every mutation of one account. Locks for
// different accounts never contend and are never nested.
type AccountLocker interface {
	// Lock blocks until the account lock is held or ctx is done. The
	// returned func releases it and is safe to call more than once.
	Lock(ctx context.Context, accountID string) (unlock func(), err error)
}
