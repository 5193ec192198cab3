package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	dErrors "custodian/pkg/domain-errors"
)

var lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "custodian_aggregate_lock_wait_seconds",
	Help:    "Time spent waiting for a distributed aggregate lock",
	Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
})

const lockKeyPrefix = "custodian:lock:"

// release deletes the key only if it still holds our token, so a lock that
// expired and was re-acquired by someone else is left alone.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across instances. The lease TTL caps how long a
// crashed holder can block an aggregate.
type Redis struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithLease sets the lock lease duration.
func WithLease(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPollInterval sets how often a waiting caller retries acquisition.
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:       client,
		ttl:          10 * time.Second,
		pollInterval: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	redisKey := lockKeyPrefix + key
	token := uuid.NewString()
	if err := r.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the lease.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = release.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
	}()

	return fn(ctx)
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	start := time.Now()
	defer func() {
		lockWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return dErrors.Wrap(ctx.Err(), dErrors.CodeConflict, "timed out waiting for aggregate lock")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "acquire aggregate lock")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeConflict, "timed out waiting for aggregate lock")
		case <-ticker.C:
		}
	}
}
