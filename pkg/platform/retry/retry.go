// Package retry implements the caller-side retry policy for optimistic
// concurrency conflicts. Services never retry on their own; transport and CLI
// layers wrap whole operations with OnConflict so each attempt reloads state.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "custodian/pkg/domain-errors"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy suits interactive requests: a handful of quick attempts.
var DefaultPolicy = Policy{
	MaxAttempts:     4,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

// OnConflict runs op, retrying only when it fails with CodeConflict. Any other
// error is returned immediately.
func OnConflict[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	var result T
	err := backoff.Retry(func() error {
		out, err := op(ctx)
		if err == nil {
			result = out
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	return result, err
}
