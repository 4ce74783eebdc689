package auth

import (
	"testing"
	"time"
)

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := DefaultTokenConfig("secret", time.Hour)
	tok, err := CreateToken("acc_1", "laptop", "sid_1", ScopeAgent, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	claims, err := VerifyToken(tok, cfg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AccountID != "acc_1" || claims.AgentID != "laptop" || claims.SessionID != "sid_1" || claims.Scope != ScopeAgent {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "vault-agents" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestVerifyToken_RejectsOtherSecret(t *testing.T) {
	tok, err := CreateToken("acc_1", "laptop", "sid_1", ScopeSession, DefaultTokenConfig("a", time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := VerifyToken(tok, DefaultTokenConfig("b", time.Hour)); err == nil {
		t.Fatalf("expected error for foreign secret")
	}
}

func TestCreateToken_Validation(t *testing.T) {
	if _, err := CreateToken("a", "b", "sid", ScopeSession, TokenConfig{Expiry: time.Hour}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
	if _, err := CreateToken("a", "b", "", ScopeSession, DefaultTokenConfig("s", time.Hour)); err == nil {
		t.Fatalf("expected error for missing sid")
	}
	if _, err := CreateToken("a", "b", "sid", ScopeSession, DefaultTokenConfig("s", 0)); err == nil {
		t.Fatalf("expected error for zero expiry")
	}
}
