//go:build integration

package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/lock"
	"custodian/pkg/testutil/containers"
)

func TestRedisLockSerialisesAcrossLockers(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	// Two lockers over one server stand in for two service replicas.
	a := lock.NewRedis(rc.Client, lock.WithPollInterval(5*time.Millisecond))
	b := lock.NewRedis(rc.Client, lock.WithPollInterval(5*time.Millisecond))
	key := lock.Key("asset", id.AssetID(uuid.New()))

	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		l := a
		if i%2 == 1 {
			l = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), key, func(context.Context) error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestRedisLockTimesOutAsConflict(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	l := lock.NewRedis(rc.Client, lock.WithLease(5*time.Second))
	key := lock.Key("seal", id.SealID(uuid.New()))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), key, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, key, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}
