package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TokenEvent is one element of a token stream. Exactly one of Token and Err
// is set.
type TokenEvent struct {
	Token     string
	ExpiresAt time.Time
	Err       error
}

// TokenIssuer mints and consumes the short-lived tokens that let an
// authorized agent bring a new agent onto the account.
type TokenIssuer struct {
	tokens ports.TokenStore
	agents ports.AgentRepository
	locker ports.AccountLocker
	now    func() time.Time
	log    zerolog.Logger
}

func NewTokenIssuer(tokens ports.TokenStore, agents ports.AgentRepository, locker ports.AccountLocker, log zerolog.Logger) *TokenIssuer {
	return &TokenIssuer{tokens: tokens, agents: agents, locker: locker, now: time.Now, log: log}
}

// Issue mints a token bound to accountID. The issuing agent must be
// authorized. The returned token is the only place its Secret appears.
func (i *TokenIssuer) Issue(ctx context.Context, accountID, agentID string) (*domain.AuthToken, error) {
	var token *domain.AuthToken
	err := withAccountLock(ctx, i.locker, accountID, func() error {
		if _, err := authorizedAgent(ctx, i.agents, accountID, agentID); err != nil {
			return err
		}

		secret, err := newTokenSecret()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		now := i.now().UTC()
		t := &domain.AuthToken{
			Hash:      hashToken(secret),
			Secret:    secret,
			AccountID: accountID,
			IssuedBy:  agentID,
			IssuedAt:  now,
			ExpiresAt: now.Add(domain.TokenTTL),
		}
		if err := i.tokens.Save(ctx, t); err != nil {
			return domain.Unavailable("save token", err)
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	i.log.Info().
		Str("account_id", accountID).
		Str("agent_id", agentID).
		Time("expires_at", token.ExpiresAt).
		Msg("auth token issued")

	return token, nil
}

// Stream issues one fresh token for every proof read from proofs that
// verify accepts. A rejected proof yields a non-terminal error event; losing
// authorization yields a terminal one. The channel closes when proofs
// closes, ctx is done, or after a terminal event.
func (i *TokenIssuer) Stream(
	ctx context.Context,
	accountID, agentID string,
	proofs <-chan domain.Credentials,
	verify func(context.Context, domain.Credentials) error,
) <-chan TokenEvent {
	out := make(chan TokenEvent)
	go func() {
		defer close(out)
		for {
			var creds domain.Credentials
			select {
			case <-ctx.Done():
				return
			case c, ok := <-proofs:
				if !ok {
					return
				}
				creds = c
			}

			ev := i.next(ctx, accountID, agentID, creds, verify)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if terminal(ev.Err) {
				return
			}
		}
	}()
	return out
}

func (i *TokenIssuer) next(
	ctx context.Context,
	accountID, agentID string,
	creds domain.Credentials,
	verify func(context.Context, domain.Credentials) error,
) TokenEvent {
	if err := verify(ctx, creds); err != nil {
		return TokenEvent{Err: err}
	}
	t, err := i.Issue(ctx, accountID, agentID)
	if err != nil {
		return TokenEvent{Err: err}
	}
	return TokenEvent{Token: t.Secret, ExpiresAt: t.ExpiresAt}
}

func terminal(err error) bool {
	return errors.Is(err, domain.ErrRevoked) || errors.Is(err, domain.ErrUnauthorized)
}

// check validates secret against accountID without spending it. The caller
// holds the account lock.
func (i *TokenIssuer) check(ctx context.Context, secret, accountID string) (*domain.AuthToken, error) {
	hash := hashToken(secret)
	t, err := i.tokens.Find(ctx, hash)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, fmt.Errorf("%w: unknown or spent token", domain.ErrAuthenticationFailure)
	}
	if err != nil {
		return nil, domain.Unavailable("load token", err)
	}
	if t.AccountID != accountID {
		return nil, fmt.Errorf("%w: token bound to another account", domain.ErrAuthenticationFailure)
	}
	if t.Expired(i.now()) {
		if err := i.tokens.Delete(ctx, hash); err != nil {
			i.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to drop expired token")
		}
		return nil, fmt.Errorf("%w: token expired", domain.ErrAuthenticationFailure)
	}
	if _, err := authorizedAgent(ctx, i.agents, accountID, t.IssuedBy); err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: issuing agent lost access", domain.ErrAuthenticationFailure)
	}
	return t, nil
}

// spend consumes a checked token. The caller holds the account lock.
func (i *TokenIssuer) spend(ctx context.Context, t *domain.AuthToken) error {
	if err := i.tokens.Delete(ctx, t.Hash); err != nil {
		return domain.Unavailable("consume token", err)
	}
	return nil
}

// restore puts back a token whose consuming transition failed.
func (i *TokenIssuer) restore(ctx context.Context, t *domain.AuthToken) error {
	return i.tokens.Save(ctx, t)
}

func (i *TokenIssuer) purge(ctx context.Context, accountID string) error {
	if err := i.tokens.DeleteByAccount(ctx, accountID); err != nil {
		return domain.Unavailable("delete tokens", err)
	}
	return nil
}

// newTokenSecret returns 80 random bits as XXXX-XXXX-XXXX-XXXX, easy to read
// aloud or type on another device.
func newTokenSecret() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := tokenEncoding.EncodeToString(b)
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12] + "-" + s[12:16], nil
}

// NormalizeToken drops case, dashes and whitespace from a typed token.
func NormalizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(NormalizeToken(secret)))
	return hex.EncodeToString(sum[:])
}
