package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

// AccountRegistry creates accounts and checks credentials against them.
type AccountRegistry struct {
	accounts ports.AccountRepository
	agents   ports.AgentRepository
	locker   ports.AccountLocker
	cost     int
	now      func() time.Time
	log      zerolog.Logger
}

func NewAccountRegistry(
	accounts ports.AccountRepository,
	agents ports.AgentRepository,
	locker ports.AccountLocker,
	cost int,
	log zerolog.Logger,
) *AccountRegistry {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccountRegistry{
		accounts: accounts,
		agents:   agents,
		locker:   locker,
		cost:     cost,
		now:      time.Now,
		log:      log,
	}
}

// Create registers a new account together with its first agent, already
// authorized. Either both records become reachable or neither does.
func (r *AccountRegistry) Create(ctx context.Context, creds domain.Credentials, agentID string) (*domain.Account, *domain.Agent, error) {
	_, err := r.accounts.FindByUsername(ctx, creds.Username)
	switch {
	case err == nil:
		return nil, nil, fmt.Errorf("create account: %w", domain.ErrConflict)
	case !errors.Is(err, domain.ErrAccountNotFound):
		return nil, nil, domain.Unavailable("create account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Passphrase), r.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, nil, fmt.Errorf("create account: %w: passphrase too long", domain.ErrInvalidInput)
		}
		return nil, nil, fmt.Errorf("create account: hash secret: %w", err)
	}

	now := r.now().UTC()
	account := &domain.Account{
		ID:         uuid.NewString(),
		Username:   creds.Username,
		SecretHash: string(hash),
		CreatedAt:  now,
	}
	agent := &domain.Agent{
		AccountID: account.ID,
		ID:        agentID,
		State:     domain.StateAuthorized,
		Seq:       1,
		CreatedAt: now,
		LastSeen:  now,
	}

	err = withAccountLock(ctx, r.locker, account.ID, func() error {
		// The agent goes in first: nothing can reach it before the account exists.
		if err := r.agents.Insert(ctx, agent); err != nil {
			return domain.Unavailable("insert first agent", err)
		}
		if err := r.accounts.Create(ctx, account); err != nil {
			if delErr := r.agents.Delete(ctx, account.ID, agent.ID); delErr != nil {
				r.log.Warn().Err(delErr).Str("account_id", account.ID).Msg("failed to remove orphan agent")
			}
			return domain.Unavailable("insert account", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	r.log.Info().
		Str("account_id", account.ID).
		Str("agent_id", agent.ID).
		Msg("account created")

	return account, agent, nil
}

// Verify returns the account matching creds or domain.ErrAuthentication.
func (r *AccountRegistry) Verify(ctx context.Context, creds domain.Credentials) (*domain.Account, error) {
	account, err := r.accounts.FindByUsername(ctx, creds.Username)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("verify account: %w", domain.ErrAuthentication)
	}
	if err != nil {
		return nil, domain.Unavailable("verify account", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(creds.Passphrase)) != nil {
		return nil, fmt.Errorf("verify account: %w", domain.ErrAuthentication)
	}
	return account, nil
}

// VerifyOwner checks that creds belong to the account with the given id.
func (r *AccountRegistry) VerifyOwner(ctx context.Context, accountID string, creds domain.Credentials) error {
	account, err := r.Verify(ctx, creds)
	if err != nil {
		return err
	}
	if account.ID != accountID {
		return fmt.Errorf("verify account: %w", domain.ErrAuthentication)
	}
	return nil
}

// remove deletes the account record. The caller holds the account lock.
func (r *AccountRegistry) remove(ctx context.Context, accountID string) error {
	if err := r.accounts.Delete(ctx, accountID); err != nil {
		return domain.Unavailable("delete account", err)
	}
	return nil
}
