package ports

import (
	"context"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// AccountRepository persists accounts. Usernames are unique.
type AccountRepository interface {
	// Create stores a new account, failing with domain.ErrConflict when the
	// username is taken.
	Create(ctx context.Context, account *domain.Account) error
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Delete(ctx context.Context, id string) error
}
