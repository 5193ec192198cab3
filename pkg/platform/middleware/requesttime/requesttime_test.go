package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodian/pkg/requestcontext"
)

func TestMiddlewareWithClockPinsUTC(t *testing.T) {
	local := time.Date(2026, 11, 2, 8, 0, 0, 0, time.FixedZone("EST", -5*3600))
	var seen []time.Time
	h := MiddlewareWithClock(func() time.Time { return local })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestcontext.Now(r.Context()), requestcontext.Now(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, time.UTC, seen[0].Location())
	assert.True(t, local.Equal(seen[0]))
}
