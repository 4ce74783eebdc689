// Package vault provides the in-process Vault Service. Entry storage and
// encryption live behind the handle and are outside this service.
package vault

import (
	"context"
	"sync"

	"github.com/99minutos/vault-agents/internal/core/ports"
)

// Memory tracks which agents currently hold an attached vault handle.
type Memory struct {
	mu       sync.Mutex
	attached map[string]int
}

func NewMemory() *Memory {
	return &Memory{attached: make(map[string]int)}
}

func key(accountID, agentID string) string {
	return accountID + "\x00" + agentID
}

func (m *Memory) Attach(_ context.Context, accountID, agentID string) (ports.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attached[key(accountID, agentID)]++
	return &handle{owner: m, key: key(accountID, agentID)}, nil
}

// Attached reports how many live handles the agent holds.
func (m *Memory) Attached(accountID, agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.attached[key(accountID, agentID)]
}

type handle struct {
	owner *Memory
	key   string
	once  sync.Once
}

func (h *handle) Detach(_ context.Context) error {
	h.once.Do(func() {
		h.owner.mu.Lock()
		defer h.owner.mu.Unlock()

		h.owner.attached[h.key]--
		if h.owner.attached[h.key] <= 0 {
			delete(h.owner.attached, h.key)
		}
	})
	return nil
}
