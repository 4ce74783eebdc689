package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher routes agent activity to a fixed set of workers using consistent
// hashing on the account id, so updates for one account apply in order and
// never run under the account lock.
type Dispatcher struct {
	workers  []chan ports.Activity
	recorder ports.ActivityRecorder
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, recorder ports.ActivityRecorder, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.Activity, numWorkers),
		recorder: recorder,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Activity, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands activity to the worker owning its account. Last-seen updates
// are best effort: when that worker is saturated the update is dropped.
func (d *Dispatcher) Enqueue(activity ports.Activity) {
	select {
	case d.workers[d.shardIndex(activity.AccountID)] <- activity:
	default:
		d.log.Debug().
			Str("account_id", activity.AccountID).
			Str("agent_id", activity.AgentID).
			Msg("activity queue full, update dropped")
	}
}

// shardIndex maps an account id deterministically to a worker index.
func (d *Dispatcher) shardIndex(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Activity) {
	for {
		select {
		case <-ctx.Done():
			return
		case activity, ok := <-ch:
			if !ok {
				return
			}
			if err := d.recorder.Record(ctx, activity); err != nil {
				d.log.Warn().Err(err).
					Str("account_id", activity.AccountID).
					Str("agent_id", activity.AgentID).
					Int("worker_id", id).
					Msg("activity update failed")
			}
		}
	}
}
