package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodian/pkg/domain-errors"
)

var fastPolicy = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestOnConflict_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	got, err := OnConflict(context.Background(), fastPolicy, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", dErrors.NewReason(dErrors.ReasonStaleVersion, "stale")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestOnConflict_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := OnConflict(context.Background(), fastPolicy, func(context.Context) (int, error) {
		attempts++
		return 0, dErrors.New(dErrors.CodeConflict, "stale")
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, 3, attempts)
}

func TestOnConflict_DoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	_, err := OnConflict(context.Background(), fastPolicy, func(context.Context) (int, error) {
		attempts++
		return 0, dErrors.NewReason(dErrors.ReasonInvalidSealState, "seal already applied")
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasReason(err, dErrors.ReasonInvalidSealState))
	assert.Equal(t, 1, attempts)
}
