package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// releaseScript deletes the key only when this holder still owns it, so an
// expired-and-retaken lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a SetNX-based distributed locker for multi-node deployments.
type Redis struct {
	client redis.UniversalClient
	logger *logging.Logger
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client redis.UniversalClient, logger *logging.Logger) *Redis {
	if logger == nil {
		logger = logging.Default()
	}
	return &Redis{client: client, logger: logger}
}

// Acquire takes the key via SET NX PX, polling until the wait elapses.
func (r *Redis) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			release := func() {
				once.Do(func() {
					// Release uses a background deadline so a cancelled
					// request still frees the lock.
					rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := releaseScript.Run(rctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
						r.logger.Warn("lock release failed, will expire via ttl", "key", key, "error", err)
					}
				})
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}
