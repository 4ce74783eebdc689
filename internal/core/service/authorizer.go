package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// Authorizer drives the per-agent state machine. Every transition runs under
// the account lock together with the token and presence bookkeeping it
// implies, so concurrent authenticate, revoke and delete calls on one
// account apply in a single order.
type Authorizer struct {
	accounts *AccountRegistry
	agents   *AgentRegistry
	tokens   *TokenIssuer
	presence *PresenceTracker
	locker   ports.AccountLocker
	log      zerolog.Logger
}

func NewAuthorizer(
	accounts *AccountRegistry,
	agents *AgentRegistry,
	tokens *TokenIssuer,
	presence *PresenceTracker,
	locker ports.AccountLocker,
	log zerolog.Logger,
) *Authorizer {
	return &Authorizer{
		accounts: accounts,
		agents:   agents,
		tokens:   tokens,
		presence: presence,
		locker:   locker,
		log:      log,
	}
}

// Authenticate promotes an Unauthorized agent by spending a token issued on
// the same account. A revoked agent is refused whatever the token.
func (a *Authorizer) Authenticate(ctx context.Context, accountID, agentID, secret string) error {
	err := withAccountLock(ctx, a.locker, accountID, func() error {
		all, err := a.agents.list(ctx, accountID)
		if err != nil {
			return err
		}
		agent, err := a.agents.find(ctx, accountID, agentID)
		if err != nil {
			return err
		}
		if agent.Revoked() {
			return domain.ErrRevoked
		}

		token, err := a.tokens.check(ctx, secret, accountID)
		if err != nil {
			return err
		}
		if agent.State == domain.StateAuthorized {
			return fmt.Errorf("%w: agent already authorized", domain.ErrInvalidTransition)
		}

		if err := a.tokens.spend(ctx, token); err != nil {
			return err
		}
		updated, err := a.agents.setState(ctx, accountID, agentID, domain.StateAuthorized, "")
		if err != nil {
			if rerr := a.tokens.restore(ctx, token); rerr != nil {
				a.log.Warn().Err(rerr).Str("account_id", accountID).Msg("failed to restore token")
			}
			return err
		}
		a.presence.SetAuthorized(accountID, authorizedAfter(all, updated))
		return nil
	})
	if err != nil {
		return fmt.Errorf("authenticate agent: %w", err)
	}

	a.log.Info().Str("account_id", accountID).Str("agent_id", agentID).Msg("agent authorized")
	return nil
}

// Revoke strips targetID of its access on behalf of callerID, who must be
// authorized and present the account credentials. It returns the agents
// still authorized afterwards.
func (a *Authorizer) Revoke(ctx context.Context, accountID, callerID, targetID string, creds domain.Credentials) ([]*domain.Agent, error) {
	if callerID == targetID {
		return nil, fmt.Errorf("revoke agent: %w", domain.ErrSelfRevocation)
	}
	if err := a.accounts.VerifyOwner(ctx, accountID, creds); err != nil {
		return nil, fmt.Errorf("revoke agent: %w", err)
	}

	var remaining []*domain.Agent
	err := withAccountLock(ctx, a.locker, accountID, func() error {
		if _, err := authorizedAgent(ctx, a.agents.agents, accountID, callerID); err != nil {
			return err
		}
		all, err := a.agents.list(ctx, accountID)
		if err != nil {
			return err
		}
		updated, err := a.agents.setState(ctx, accountID, targetID, domain.StateRevoked, callerID)
		if err != nil {
			return err
		}
		remaining = authorizedAfter(all, updated)
		a.presence.SetAuthorized(accountID, remaining)
		a.presence.ForceOffline(accountID, targetID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("revoke agent: %w", err)
	}

	a.log.Info().
		Str("account_id", accountID).
		Str("agent_id", targetID).
		Str("revoked_by", callerID).
		Msg("agent revoked")

	return remaining, nil
}

// DeleteAccount removes the account, its tokens and its agents. The caller
// must be authorized and present the account credentials.
func (a *Authorizer) DeleteAccount(ctx context.Context, accountID, callerID string, creds domain.Credentials) error {
	if err := a.accounts.VerifyOwner(ctx, accountID, creds); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	err := withAccountLock(ctx, a.locker, accountID, func() error {
		if _, err := authorizedAgent(ctx, a.agents.agents, accountID, callerID); err != nil {
			return err
		}
		// Once the account record is gone the rest is unreachable, so
		// later failures only leave garbage behind.
		if err := a.accounts.remove(ctx, accountID); err != nil {
			return err
		}
		if err := a.tokens.purge(ctx, accountID); err != nil {
			a.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to purge tokens")
		}
		if err := a.agents.purge(ctx, accountID); err != nil {
			a.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to purge agents")
		}
		a.presence.Drop(accountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	a.log.Info().Str("account_id", accountID).Str("agent_id", callerID).Msg("account deleted")
	return nil
}
