package testutil

import (
	"context"
	"net/http"
	"time"

	id "custodian/pkg/domain"
	"custodian/pkg/requestcontext"
)

// ActorHeader carries the acting user on every mutating request.
const ActorHeader = "X-Actor-ID"

// WithActor sets the actor header on a request.
func WithActor(req *http.Request, actor id.UserID) *http.Request {
	req.Header.Set(ActorHeader, actor.String())
	return req
}

// FixedClock is a settable clock for service tests. Ctx returns a context
// whose request time is the clock's current value.
type FixedClock struct {
	now time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	return c.now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *FixedClock) Ctx(parent context.Context) context.Context {
	return requestcontext.WithTime(parent, c.now)
}
