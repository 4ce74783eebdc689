// Package auth signs the bearer tokens handed to HTTP clients and keeps the
// live facades those tokens point at.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes a bearer token can carry.
const (
	// ScopeSession grants the session routes of an authorized agent.
	ScopeSession = "session"
	// ScopeAgent grants the restricted routes of an agent without access.
	ScopeAgent = "agent"
)

type Claims struct {
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"sid"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string, expiry time.Duration) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: expiry,
		Issuer: "vault-agents",
	}
}

// CreateToken signs a bearer token for the facade registered under sid.
func CreateToken(accountID, agentID, sid, scope string, cfg TokenConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("missing secret")
	}
	if sid == "" {
		return "", errors.New("missing session id")
	}
	if cfg.Expiry <= 0 {
		return "", errors.New("invalid expiry")
	}

	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		AgentID:   agentID,
		SessionID: sid,
		Scope:     scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
			ID:        uuid.NewString(),
			Subject:   agentID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

func VerifyToken(tokenString string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("missing secret")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.SessionID == "" || claims.Scope == "" {
		return nil, errors.New("incomplete claims")
	}
	return claims, nil
}
