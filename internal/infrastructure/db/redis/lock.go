package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockTTL = 10 * time.Second
	lockRetry      = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a per-account lock shared by every process talking to the same
// Redis. A holder that dies loses the lock after ttl.
// Key format: lock:account:<account_id>
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewLocker returns a Locker; ttl <= 0 selects defaultLockTTL.
func NewLocker(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, ttl: ttl, log: log}
}

func (l *Locker) Lock(ctx context.Context, accountID string) (func(), error) {
	key := "lock:account:" + accountID
	owner := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()
			err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to release account lock, left to expire")
			}
		})
	}, nil
}
