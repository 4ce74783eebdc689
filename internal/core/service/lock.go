package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// withAccountLock runs fn while holding the account lock.
func withAccountLock(ctx context.Context, locker ports.AccountLocker, accountID string, fn func() error) error {
	unlock, err := locker.Lock(ctx, accountID)
	if err != nil {
		return domain.Unavailable("acquire account lock", err)
	}
	defer unlock()
	return fn()
}

// authorizedAgent loads an agent and checks it currently holds access.
func authorizedAgent(ctx context.Context, agents ports.AgentRepository, accountID, agentID string) (*domain.Agent, error) {
	agent, err := agents.Find(ctx, accountID, agentID)
	if errors.Is(err, domain.ErrAgentNotFound) {
		return nil, fmt.Errorf("%w: unknown agent %q", domain.ErrUnauthorized, agentID)
	}
	if err != nil {
		return nil, domain.Unavailable("load agent", err)
	}
	switch agent.State {
	case domain.StateAuthorized:
		return agent, nil
	case domain.StateRevoked:
		return nil, domain.ErrRevoked
	default:
		return nil, domain.ErrUnauthorized
	}
}
