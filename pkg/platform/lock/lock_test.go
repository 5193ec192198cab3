package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

func TestSharded_SerialisesSameKey(t *testing.T) {
	l := NewSharded()
	key := Key("manifest", id.ManifestID(uuid.New()))

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), key, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestSharded_PropagatesClosureError(t *testing.T) {
	l := NewSharded()
	want := errors.New("boom")
	err := l.WithLock(context.Background(), "asset:x", func(context.Context) error { return want })
	require.ErrorIs(t, err, want)
}

func TestSharded_CancelledContext(t *testing.T) {
	l := NewSharded()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := l.WithLock(ctx, "asset:x", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.False(t, called)
}

func TestSharded_AppliesDefaultDeadline(t *testing.T) {
	l := NewSharded(WithTimeout(time.Minute))
	err := l.WithLock(context.Background(), "kit:x", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestKey(t *testing.T) {
	assetID := id.AssetID(uuid.New())
	assert.Equal(t, "asset:"+assetID.String(), Key("asset", assetID))
}

func TestSharded_WaitTimesOutAsConflict(t *testing.T) {
	l := NewSharded(WithTimeout(30 * time.Millisecond))
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "kit:1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := l.WithLock(context.Background(), "kit:1", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}
