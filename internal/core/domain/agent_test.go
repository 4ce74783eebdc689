package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAgentState_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to AgentState
		want     bool
	}{
		{StateUnauthorized, StateAuthorized, true},
		{StateUnauthorized, StateRevoked, false},
		{StateAuthorized, StateRevoked, true},
		{StateAuthorized, StateUnauthorized, false},
		{StateAuthorized, StateAuthorized, false},
		{StateRevoked, StateAuthorized, false},
		{StateRevoked, StateUnauthorized, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestAgentState_CanDelete(t *testing.T) {
	if !StateUnauthorized.CanDelete() || !StateRevoked.CanDelete() {
		t.Fatalf("unauthorized and revoked agents must be deletable")
	}
	if StateAuthorized.CanDelete() {
		t.Fatalf("authorized agents must not delete themselves")
	}
}

func TestAuthToken_Expired(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &AuthToken{IssuedAt: issued, ExpiresAt: issued.Add(TokenTTL)}

	if tok.Expired(issued.Add(TokenTTL - time.Nanosecond)) {
		t.Fatalf("token should be valid just before expiry")
	}
	if !tok.Expired(issued.Add(TokenTTL)) {
		t.Fatalf("token should be expired at the expiry instant")
	}
}

func TestUnavailable(t *testing.T) {
	if Unavailable("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	cause := errors.New("connection refused")
	err := Unavailable("find agent", cause)
	if !errors.Is(err, ErrServiceUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}

	err = Unavailable("find agent", fmt.Errorf("lookup: %w", ErrAgentNotFound))
	if errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("known errors must not become unavailable: %v", err)
	}
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound in chain, got %v", err)
	}
}

func TestDerivedSentinels(t *testing.T) {
	if !errors.Is(ErrSelfRevocation, ErrInvalidTransition) {
		t.Fatalf("self revocation is an invalid transition")
	}
	if !errors.Is(ErrSessionEnded, ErrUnauthorized) {
		t.Fatalf("an ended session is unauthorized")
	}
	if !IsKnown(ErrSessionEnded) || IsKnown(errors.New("boom")) {
		t.Fatalf("IsKnown misclassified")
	}
}
