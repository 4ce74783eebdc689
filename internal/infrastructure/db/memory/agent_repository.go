package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

type AgentRepository struct {
	mu       sync.RWMutex
	accounts map[string]map[string]*domain.Agent
}

func NewAgentRepository() *AgentRepository {
	return &AgentRepository{accounts: make(map[string]map[string]*domain.Agent)}
}

func cloneAgent(a *domain.Agent) *domain.Agent {
	c := *a
	if a.RevokedAt != nil {
		at := *a.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}

func (r *AgentRepository) Insert(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.accounts[agent.AccountID]
	if !ok {
		set = make(map[string]*domain.Agent)
		r.accounts[agent.AccountID] = set
	}
	if _, exists := set[agent.ID]; exists {
		return domain.ErrConflict
	}
	set[agent.ID] = cloneAgent(agent)
	return nil
}

func (r *AgentRepository) Find(_ context.Context, accountID, agentID string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[accountID][agentID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return cloneAgent(a), nil
}

func (r *AgentRepository) Update(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.accounts[agent.AccountID][agent.ID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	next := cloneAgent(agent)
	next.LastSeen = cur.LastSeen
	r.accounts[agent.AccountID][agent.ID] = next
	return nil
}

func (r *AgentRepository) Touch(_ context.Context, accountID, agentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[accountID][agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	if at.After(a.LastSeen) {
		a.LastSeen = at
	}
	return nil
}

func (r *AgentRepository) ListByAccount(_ context.Context, accountID string) ([]*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.accounts[accountID]
	out := make([]*domain.Agent, 0, len(set))
	for _, a := range set {
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *AgentRepository) Delete(_ context.Context, accountID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.accounts[accountID]
	if !ok {
		return nil
	}
	delete(set, agentID)
	if len(set) == 0 {
		delete(r.accounts, accountID)
	}
	return nil
}

func (r *AgentRepository) DeleteByAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, accountID)
	return nil
}
