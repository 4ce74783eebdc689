package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

// TokenStore keeps auth tokens as JSON values whose TTL matches the token
// expiry, so Redis reclaims them without a sweep.
// Key format: token:<hash>, with the set tokens:<account_id> indexing them.
type TokenStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client, now: time.Now}
}

type storedToken struct {
	AccountID string    `json:"account_id"`
	IssuedBy  string    `json:"issued_by"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *TokenStore) Save(ctx context.Context, token *domain.AuthToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(storedToken{
		AccountID: token.AccountID,
		IssuedBy:  token.IssuedBy,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, tokenKey(token.Hash), raw, ttl)
		p.SAdd(ctx, accountKey(token.AccountID), token.Hash)
		p.Expire(ctx, accountKey(token.AccountID), domain.TokenTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *TokenStore) Find(ctx context.Context, hash string) (*domain.AuthToken, error) {
	raw, err := s.client.Get(ctx, tokenKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &domain.AuthToken{
		Hash:      hash,
		AccountID: st.AccountID,
		IssuedBy:  st.IssuedBy,
		IssuedAt:  st.IssuedAt,
		ExpiresAt: st.ExpiresAt,
	}, nil
}

func (s *TokenStore) Delete(ctx context.Context, hash string) error {
	t, err := s.Find(ctx, hash)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, tokenKey(hash))
		p.SRem(ctx, accountKey(t.AccountID), hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *TokenStore) DeleteByAccount(ctx context.Context, accountID string) error {
	hashes, err := s.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("list account tokens: %w", err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, tokenKey(h))
	}
	keys = append(keys, accountKey(accountID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete account tokens: %w", err)
	}
	return nil
}

func tokenKey(hash string) string {
	return "token:" + hash
}

func accountKey(accountID string) string {
	return "tokens:" + accountID
}
