package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// AgentRegistry tracks the agents of each account and their authorization
// state. Exported methods take the account lock; the unexported variants
// expect the caller to hold it already.
type AgentRegistry struct {
	accounts ports.AccountRepository
	agents   ports.AgentRepository
	locker   ports.AccountLocker
	now      func() time.Time
	log      zerolog.Logger
}

func NewAgentRegistry(accounts ports.AccountRepository, agents ports.AgentRepository, locker ports.AccountLocker, log zerolog.Logger) *AgentRegistry {
	return &AgentRegistry{accounts: accounts, agents: agents, locker: locker, now: time.Now, log: log}
}

// Register returns the agent record, creating it Unauthorized on first sight.
// It fails with domain.ErrAuthentication once the account is gone.
func (r *AgentRegistry) Register(ctx context.Context, accountID, agentID string) (*domain.Agent, error) {
	var agent *domain.Agent
	err := withAccountLock(ctx, r.locker, accountID, func() error {
		var err error
		agent, err = r.register(ctx, accountID, agentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return agent, nil
}

// SetState moves an agent along the transition table.
func (r *AgentRegistry) SetState(ctx context.Context, accountID, agentID string, next domain.AgentState) (*domain.Agent, error) {
	var agent *domain.Agent
	err := withAccountLock(ctx, r.locker, accountID, func() error {
		var err error
		agent, err = r.setState(ctx, accountID, agentID, next, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAuthorized returns the authorized agents of an account in
// registration order.
func (r *AgentRegistry) ListAuthorized(ctx context.Context, accountID string) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	err := withAccountLock(ctx, r.locker, accountID, func() error {
		var err error
		agents, err = r.listAuthorized(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agents, nil
}

// Delete removes the caller's own record. Only Unauthorized and Revoked
// agents may do so.
func (r *AgentRegistry) Delete(ctx context.Context, accountID, callerID, agentID string) error {
	if callerID != agentID {
		return fmt.Errorf("delete agent: %w: agents may only delete themselves", domain.ErrUnauthorized)
	}
	err := withAccountLock(ctx, r.locker, accountID, func() error {
		agent, err := r.find(ctx, accountID, agentID)
		if err != nil {
			return err
		}
		if !agent.State.CanDelete() {
			return fmt.Errorf("%w (delete from %s)", domain.ErrInvalidTransition, agent.State)
		}
		if err := r.agents.Delete(ctx, accountID, agentID); err != nil {
			return domain.Unavailable("delete agent", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}

	r.log.Info().Str("account_id", accountID).Str("agent_id", agentID).Msg("agent deleted")
	return nil
}

func (r *AgentRegistry) find(ctx context.Context, accountID, agentID string) (*domain.Agent, error) {
	agent, err := r.agents.Find(ctx, accountID, agentID)
	if err != nil {
		return nil, domain.Unavailable("load agent", err)
	}
	return agent, nil
}

func (r *AgentRegistry) register(ctx context.Context, accountID, agentID string) (*domain.Agent, error) {
	// The account may have been deleted since the caller verified it.
	if _, err := r.accounts.FindByID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, domain.Unavailable("load account", err)
	}

	existing, err := r.agents.Find(ctx, accountID, agentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrAgentNotFound) {
		return nil, domain.Unavailable("load agent", err)
	}

	all, err := r.agents.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, domain.Unavailable("list agents", err)
	}
	var seq int64
	for _, a := range all {
		if a.Seq > seq {
			seq = a.Seq
		}
	}

	now := r.now().UTC()
	agent := &domain.Agent{
		AccountID: accountID,
		ID:        agentID,
		State:     domain.StateUnauthorized,
		Seq:       seq + 1,
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := r.agents.Insert(ctx, agent); err != nil {
		return nil, domain.Unavailable("insert agent", err)
	}

	r.log.Info().Str("account_id", accountID).Str("agent_id", agentID).Msg("agent registered")
	return agent, nil
}

func (r *AgentRegistry) setState(ctx context.Context, accountID, agentID string, next domain.AgentState, by string) (*domain.Agent, error) {
	agent, err := r.find(ctx, accountID, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("set agent state: %w (from %s to %s)", domain.ErrInvalidTransition, agent.State, next)
	}

	updated := *agent
	updated.State = next
	if next == domain.StateRevoked {
		at := r.now().UTC()
		updated.RevokedAt = &at
		updated.RevokedBy = by
	}
	if err := r.agents.Update(ctx, &updated); err != nil {
		return nil, domain.Unavailable("update agent", err)
	}
	return &updated, nil
}

func (r *AgentRegistry) list(ctx context.Context, accountID string) ([]*domain.Agent, error) {
	all, err := r.agents.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, domain.Unavailable("list agents", err)
	}
	return all, nil
}

func (r *AgentRegistry) listAuthorized(ctx context.Context, accountID string) ([]*domain.Agent, error) {
	all, err := r.list(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return authorizedOnly(all), nil
}

func (r *AgentRegistry) purge(ctx context.Context, accountID string) error {
	if err := r.agents.DeleteByAccount(ctx, accountID); err != nil {
		return domain.Unavailable("delete agents", err)
	}
	return nil
}

func authorizedOnly(all []*domain.Agent) []*domain.Agent {
	out := make([]*domain.Agent, 0, len(all))
	for _, a := range all {
		if a.State == domain.StateAuthorized {
			out = append(out, a)
		}
	}
	return out
}

// authorizedAfter is the authorized set of all once updated replaces the
// record with the same id.
func authorizedAfter(all []*domain.Agent, updated *domain.Agent) []*domain.Agent {
	merged := make([]*domain.Agent, len(all))
	for i, a := range all {
		if a.ID == updated.ID {
			merged[i] = updated
			continue
		}
		merged[i] = a
	}
	return authorizedOnly(merged)
}
