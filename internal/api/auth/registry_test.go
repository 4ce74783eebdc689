package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/service"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/memory"
	"github.com/99minutos/vault-agents/internal/infrastructure/vault"
)

func newGateway() *service.Gateway {
	return service.NewGateway(service.Deps{
		Accounts:   memory.NewAccountRepository(),
		Agents:     memory.NewAgentRepository(),
		Tokens:     memory.NewTokenStore(),
		Locker:     memory.NewLocker(),
		Vaults:     vault.NewMemory(),
		BcryptCost: 4,
		Logger:     zerolog.Nop(),
	})
}

var creds = domain.Credentials{Username: "alice", Passphrase: "correct horse"}

func TestRegistry_SessionLeavesOnSignout(t *testing.T) {
	ctx := context.Background()
	s, err := newGateway().Signup(ctx, creds, service.WithID("laptop"))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	r := NewRegistry(time.Hour, zerolog.Nop())
	sid := r.Put(s)
	if got, ok := r.Session(sid); !ok || got != s {
		t.Fatalf("session not registered")
	}
	if _, ok := r.Agent(sid); ok {
		t.Fatalf("a session is not a local agent")
	}

	if _, err := s.Signout(ctx); err != nil {
		t.Fatalf("signout: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for r.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still registered after signout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegistry_SweepEndsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s, err := newGateway().Signup(ctx, creds, service.WithID("laptop"))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	r := NewRegistry(time.Minute, zerolog.Nop())
	sid := r.Put(s)

	if n := r.Sweep(ctx, time.Now()); n != 0 {
		t.Fatalf("nothing should expire yet, swept %d", n)
	}
	if n := r.Sweep(ctx, time.Now().Add(2*time.Minute)); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok := r.Get(sid); ok {
		t.Fatalf("expired entry still reachable")
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("expired session was not ended")
	}
}

func TestRegistry_GetHonoursExpiry(t *testing.T) {
	ctx := context.Background()
	g := newGateway()
	if _, err := g.Signup(ctx, creds, service.WithID("laptop")); err != nil {
		t.Fatalf("signup: %v", err)
	}
	access, err := g.Signin(ctx, creds, service.WithID("phone"))
	if err != nil {
		t.Fatalf("signin: %v", err)
	}

	r := NewRegistry(time.Minute, zerolog.Nop())
	now := time.Now()
	r.now = func() time.Time { return now }
	sid := r.Put(access)

	if _, ok := r.Agent(sid); !ok {
		t.Fatalf("expected local agent")
	}
	now = now.Add(time.Minute)
	if _, ok := r.Get(sid); ok {
		t.Fatalf("entry should be expired at its deadline")
	}
}
