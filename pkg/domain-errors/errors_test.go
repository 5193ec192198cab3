package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReason_DerivesCode(t *testing.T) {
	tests := []struct {
		reason Reason
		code   Code
	}{
		{ReasonAssetNotFound, CodeNotFound},
		{ReasonDuplicateSeal, CodeDuplicate},
		{ReasonInvalidSealState, CodeInvalidState},
		{ReasonUnresolved, CodeInvalidState},
		{ReasonStaleVersion, CodeConflict},
		{Reason("made_up"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := NewReason(tt.reason, "boom")
			assert.True(t, HasCode(err, tt.code))
			assert.True(t, HasReason(err, tt.reason))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load asset")

	require.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodeInternal))
	assert.Equal(t, "failed to load asset: connection reset", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestHasCode_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeValidation, "serial is required"))
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeValidation))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestPartialUpdate_KeepsUnderlyingCode(t *testing.T) {
	err := PartialUpdate(NewReason(ReasonStaleVersion, "asset changed"), "kit saved but asset update failed")

	assert.True(t, HasCode(err, CodeConflict))
	assert.True(t, HasReason(err, ReasonPartialUpdate))
	assert.True(t, HasReason(err, ReasonStaleVersion))

	plain := PartialUpdate(errors.New("disk full"), "kit saved but asset update failed")
	assert.True(t, HasCode(plain, CodeInternal))
}

func TestReasonCodes(t *testing.T) {
	for reason, code := range reasonCodes {
		assert.Equal(t, code, reason.Code(), "reason %s", reason)
		assert.NotEqual(t, CodeInternal, code, "reason %s", reason)
	}
	_, fixed := reasonCodes[ReasonPartialUpdate]
	assert.False(t, fixed, "partial updates take the wrapped failure's code")
	assert.Equal(t, CodeInternal, Reason("no_such_reason").Code())
}
