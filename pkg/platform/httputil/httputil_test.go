package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodian/pkg/domain-errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("untyped errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("raw"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("domain reason is surfaced", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.NewReason(dErrors.ReasonInvalidSealState, "seal SEAL-001 is applied"))

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "invalid_state", body["error"])
		assert.Equal(t, "invalid_seal_state", body["reason"])
		assert.Equal(t, "seal SEAL-001 is applied", body["error_description"])
	})

	t.Run("partial update is flagged", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.PartialUpdate(dErrors.New(dErrors.CodeConflict, "stale"), "kit saved"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "true", decode(t, w)["partial"])
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(dErrors.CodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(dErrors.CodeDuplicate))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(dErrors.CodeValidation))
	assert.Equal(t, http.StatusBadRequest, StatusFor(dErrors.CodeInvalidInput))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(dErrors.CodeUnauthorized))
}
