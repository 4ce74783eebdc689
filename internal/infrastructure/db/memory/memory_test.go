package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/99minutos/vault-agents/internal/core/domain"
)

func TestAccountRepository_UniqueUsername(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Account{ID: "1", Username: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, &domain.Account{ID: "2", Username: "alice"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := repo.Delete(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByUsername(ctx, "alice"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := repo.Create(ctx, &domain.Account{ID: "3", Username: "alice"}); err != nil {
		t.Fatalf("username should be free after delete: %v", err)
	}
}

func TestAgentRepository_ListOrderAndTouch(t *testing.T) {
	repo := NewAgentRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		agent := &domain.Agent{AccountID: "acc", ID: id, State: domain.StateUnauthorized, Seq: int64(i + 1), LastSeen: base}
		if err := repo.Insert(ctx, agent); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := repo.Insert(ctx, &domain.Agent{AccountID: "acc", ID: "a"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}

	list, err := repo.ListByAccount(ctx, "acc")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, a := range list {
		got = append(got, a.ID)
	}
	if len(got) != 3 || got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("expected registration order [c a b], got %v", got)
	}

	if err := repo.Touch(ctx, "acc", "a", base.Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := repo.Touch(ctx, "acc", "a", base.Add(time.Minute)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	a, _ := repo.Find(ctx, "acc", "a")
	if !a.LastSeen.Equal(base.Add(time.Hour)) {
		t.Fatalf("last seen moved backwards: %s", a.LastSeen)
	}
	if err := repo.Touch(ctx, "acc", "zzz", base); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestAgentRepository_UpdateKeepsLastSeen(t *testing.T) {
	repo := NewAgentRepository()
	ctx := context.Background()
	seen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.Insert(ctx, &domain.Agent{AccountID: "acc", ID: "a", State: domain.StateUnauthorized})
	_ = repo.Touch(ctx, "acc", "a", seen)

	if err := repo.Update(ctx, &domain.Agent{AccountID: "acc", ID: "a", State: domain.StateAuthorized}); err != nil {
		t.Fatalf("update: %v", err)
	}
	a, _ := repo.Find(ctx, "acc", "a")
	if a.State != domain.StateAuthorized || !a.LastSeen.Equal(seen) {
		t.Fatalf("unexpected agent after update: %+v", a)
	}
}

func TestTokenStore_Sweep(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = store.Save(ctx, &domain.AuthToken{Hash: "old", Secret: "s", AccountID: "acc", ExpiresAt: now})
	_ = store.Save(ctx, &domain.AuthToken{Hash: "new", AccountID: "acc", ExpiresAt: now.Add(time.Minute)})

	if n := store.Sweep(now); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	tok, err := store.Find(ctx, "new")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tok.Secret != "" {
		t.Fatalf("secret must not be stored")
	}
	if _, err := store.Find(ctx, "old"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	_ = store.DeleteByAccount(ctx, "acc")
	if _, err := store.Find(ctx, "new"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected tokens of the account gone, got %v", err)
	}
}

func TestLocker_WaitHonoursContext(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "acc")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "acc"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Other accounts are independent.
	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("lock other: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "acc")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Fatalf("expected no lingering lock entries, got %d", len(l.locks))
	}
}
