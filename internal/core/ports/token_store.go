package ports

import (
	"context"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// TokenStore keeps outstanding auth tokens by hash. Consumption is a Delete
// performed under the account lock.
type TokenStore interface {
	Save(ctx context.Context, token *domain.AuthToken) error
	Find(ctx context.Context, hash string) (*domain.AuthToken, error)
	Delete(ctx context.Context, hash string) error
	DeleteByAccount(ctx context.Context, accountID string) error
}
