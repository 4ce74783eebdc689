package ports

import (
	"context"
	"time"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// AgentRepository persists agent records, keyed by (account id, agent id).
type AgentRepository interface {
	// Insert fails with domain.ErrConflict when the agent is already known.
	Insert(ctx context.Context, agent *domain.Agent) error
	Find(ctx context.Context, accountID, agentID string) (*domain.Agent, error)
	// Update replaces state and revocation fields of an existing record.
	Update(ctx context.Context, agent *domain.Agent) error
	// Touch only moves LastSeen forward; it never rewrites state.
	Touch(ctx context.Context, accountID, agentID string, at time.Time) error
	// ListByAccount returns every agent of the account ordered by Seq.
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Agent, error)
	Delete(ctx context.Context, accountID, agentID string) error
	DeleteByAccount(ctx context.Context, accountID string) error
}
