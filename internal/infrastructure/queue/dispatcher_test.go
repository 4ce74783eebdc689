package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/ports"
)

type recordingRecorder struct {
	mu   sync.Mutex
	seen []ports.Activity
	fail bool
}

func (r *recordingRecorder) Record(_ context.Context, a ports.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, a)
	if r.fail {
		return errors.New("store down")
	}
	return nil
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcher_PerAccountOrder(t *testing.T) {
	rec := &recordingRecorder{}
	d := NewDispatcher(3, rec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		d.Enqueue(ports.Activity{AccountID: "acc", AgentID: "a", At: base.Add(time.Duration(i) * time.Second)})
	}
	waitFor(t, func() bool { return rec.count() == 50 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := 1; i < len(rec.seen); i++ {
		if !rec.seen[i].At.After(rec.seen[i-1].At) {
			t.Fatalf("activity for one account applied out of order at %d", i)
		}
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	rec := &recordingRecorder{}
	d := NewDispatcher(1, rec, zerolog.Nop())

	// Not started: the single queue fills up and the rest is dropped
	// without blocking the caller.
	for i := 0; i < channelBuffer+10; i++ {
		d.Enqueue(ports.Activity{AccountID: "acc", AgentID: "a"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	waitFor(t, func() bool { return rec.count() == channelBuffer })

	time.Sleep(20 * time.Millisecond)
	if got := rec.count(); got != channelBuffer {
		t.Fatalf("expected %d recorded, got %d", channelBuffer, got)
	}
}

func TestDispatcher_RecorderErrorsDoNotStopWorker(t *testing.T) {
	rec := &recordingRecorder{fail: true}
	d := NewDispatcher(0, rec, zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got %d", defaultWorkers, len(d.workers))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(ports.Activity{AccountID: "acc", AgentID: "a"})
	d.Enqueue(ports.Activity{AccountID: "acc", AgentID: "b"})
	waitFor(t, func() bool { return rec.count() == 2 })
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(8, &recordingRecorder{}, zerolog.Nop())
	first := d.shardIndex("account-42")
	for i := 0; i < 10; i++ {
		if d.shardIndex("account-42") != first {
			t.Fatalf("shard index changed between calls")
		}
	}
}
