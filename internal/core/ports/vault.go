package ports

import "context"

// Vault is an attached handle onto an account's encrypted vault. Entry
// operations live behind it and are not interpreted here.
type Vault interface {
	Detach(ctx context.Context) error
}

// VaultService hands out vault handles to authorized sessions.
type VaultService interface {
	Attach(ctx context.Context, accountID, agentID string) (Vault, error)
}
