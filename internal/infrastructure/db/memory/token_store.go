package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// TokenStore keeps tokens in a map. Expiry is enforced by the issuer on
// consumption; Sweep only reclaims memory.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.AuthToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*domain.AuthToken)}
}

func (s *TokenStore) Save(_ context.Context, token *domain.AuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *token
	c.Secret = ""
	s.tokens[token.Hash] = &c
	return nil
}

func (s *TokenStore) Find(_ context.Context, hash string) (*domain.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	c := *t
	return &c, nil
}

func (s *TokenStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, hash)
	return nil
}

func (s *TokenStore) DeleteByAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, t := range s.tokens {
		if t.AccountID == accountID {
			delete(s.tokens, hash)
		}
	}
	return nil
}

// Sweep drops tokens expired at now and reports how many went.
func (s *TokenStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *TokenStore) RunSweeper(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				log.Debug().Int("count", n).Msg("expired tokens swept")
			}
		}
	}
}
