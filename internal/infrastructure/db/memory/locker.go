package memory

import (
	"context"
	"sync"
)

// Locker is a per-account mutex that honours context cancellation while
// waiting. Entries are reference counted and vanish when unused.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

func (l *Locker) Lock(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[accountID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[accountID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(accountID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(accountID, e)
		})
	}, nil
}

func (l *Locker) release(accountID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, accountID)
	}
}
