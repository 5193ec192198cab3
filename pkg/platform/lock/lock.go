// Package lock serialises operations on a single aggregate identity.
//
// Stores already reject stale writes through version checks; the lock keeps
// concurrent callers on one aggregate from burning retries against each
// other. Keys are "<aggregate>:<id>".
package lock

import (
	"context"
	"time"

	dErrors "custodian/pkg/domain-errors"
)

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Key builds a lock key for an aggregate identity.
func Key(aggregate string, id interface{ String() string }) string {
	return aggregate + ":" + id.String()
}

// numShards bounds memory while keeping contention between unrelated
// aggregates low.
const numShards = 128

const defaultTimeout = 5 * time.Second

// Sharded is an in-process Locker backed by hashed semaphore shards. Two keys
// may share a shard, so callers must not nest WithLock calls.
type Sharded struct {
	shards  [numShards]chan struct{}
	timeout time.Duration
}

// ShardedOption configures a Sharded locker.
type ShardedOption func(*Sharded)

// WithTimeout bounds waiting for and holding a shard when the caller's context
// carries no deadline.
func WithTimeout(d time.Duration) ShardedOption {
	return func(s *Sharded) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSharded(opts ...ShardedOption) *Sharded {
	s := &Sharded{timeout: defaultTimeout}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sharded) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConflict, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := s.shards[hashKey(key)%numShards]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeConflict, "timed out waiting for "+key)
	}
	defer func() { <-shard }()

	return fn(ctx)
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// Nop runs fn without locking. Useful where a single writer is guaranteed.
type Nop struct{}

func (Nop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
