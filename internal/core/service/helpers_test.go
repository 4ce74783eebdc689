package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/domain"
	"github.com/99minutos/vault-agents/internal/core/ports"
	"github.com/99minutos/vault-agents/internal/infrastructure/db/memory"
	"github.com/99minutos/vault-agents/internal/infrastructure/vault"
)

var (
	alice = domain.Credentials{Username: "alice", Passphrase: "p1"}
	bob   = domain.Credentials{Username: "bob", Passphrase: "p2"}
)

var errBackend = errors.New("connection refused")

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// countingAgents counts inserts on top of the in-memory repository.
type countingAgents struct {
	*memory.AgentRepository
	mu      sync.Mutex
	inserts int
}

func (r *countingAgents) Insert(ctx context.Context, a *domain.Agent) error {
	r.mu.Lock()
	r.inserts++
	r.mu.Unlock()
	return r.AgentRepository.Insert(ctx, a)
}

func (r *countingAgents) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

// flakyAgents fails Update while failUpdate is set.
type flakyAgents struct {
	*countingAgents
	mu         sync.Mutex
	failUpdate bool
}

func (r *flakyAgents) setFailUpdate(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpdate = v
}

func (r *flakyAgents) Update(ctx context.Context, a *domain.Agent) error {
	r.mu.Lock()
	fail := r.failUpdate
	r.mu.Unlock()
	if fail {
		return errBackend
	}
	return r.countingAgents.Update(ctx, a)
}

type downAccounts struct {
	*memory.AccountRepository
}

func (downAccounts) FindByUsername(context.Context, string) (*domain.Account, error) {
	return nil, errBackend
}

type downLocker struct{}

func (downLocker) Lock(context.Context, string) (func(), error) {
	return nil, errBackend
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

type testEnv struct {
	gw       *Gateway
	clock    *testClock
	accounts ports.AccountRepository
	agents   *flakyAgents
	tokens   *memory.TokenStore
	vaults   *vault.Memory
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:    newTestClock(),
		accounts: memory.NewAccountRepository(),
		agents:   &flakyAgents{countingAgents: &countingAgents{AgentRepository: memory.NewAgentRepository()}},
		tokens:   memory.NewTokenStore(),
		vaults:   vault.NewMemory(),
	}
	d := Deps{
		Accounts:   env.accounts,
		Agents:     env.agents,
		Tokens:     env.tokens,
		Locker:     memory.NewLocker(),
		Vaults:     env.vaults,
		BcryptCost: 4,
		Clock:      env.clock.Now,
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	env.gw = NewGateway(d)
	return env
}

func (e *testEnv) signup(t *testing.T, creds domain.Credentials, agentID string) *Session {
	t.Helper()
	s, err := e.gw.Signup(context.Background(), creds, WithID(agentID))
	if err != nil {
		t.Fatalf("signup %s/%s: %v", creds.Username, agentID, err)
	}
	return s
}

func (e *testEnv) local(t *testing.T, creds domain.Credentials, agentID string) *LocalAgent {
	t.Helper()
	access, err := e.gw.Signin(context.Background(), creds, WithID(agentID))
	if err != nil {
		t.Fatalf("signin %s: %v", agentID, err)
	}
	l, ok := access.(*LocalAgent)
	if !ok {
		t.Fatalf("expected *LocalAgent for %s, got %T", agentID, access)
	}
	return l
}

func (e *testEnv) session(t *testing.T, creds domain.Credentials, agentID string) *Session {
	t.Helper()
	access, err := e.gw.Signin(context.Background(), creds, WithID(agentID))
	if err != nil {
		t.Fatalf("signin %s: %v", agentID, err)
	}
	s, ok := access.(*Session)
	if !ok {
		t.Fatalf("expected *Session for %s, got %T", agentID, access)
	}
	return s
}

// onboard brings agentID onto the account of by and opens its session.
func (e *testEnv) onboard(t *testing.T, by *Session, creds domain.Credentials, agentID string) *Session {
	t.Helper()
	ctx := context.Background()
	l := e.local(t, creds, agentID)
	tok, err := by.IssueToken(ctx, creds)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	signin, err := l.Authenticate(ctx, tok.Secret)
	if err != nil {
		t.Fatalf("authenticate %s: %v", agentID, err)
	}
	access, err := signin(ctx, creds)
	if err != nil {
		t.Fatalf("signin after authenticate: %v", err)
	}
	s, ok := access.(*Session)
	if !ok {
		t.Fatalf("expected *Session after authenticate, got %T", access)
	}
	return s
}

func ids(agents []RemoteAgent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for value")
	}
	var zero T
	return zero
}

func closed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed")
		}
	}
}

func quiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v", v)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
