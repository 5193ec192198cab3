package testutil

import (
	"context"
	"sync"

	id "custodian/pkg/domain"
	"custodian/pkg/platform/effect"
)

// RecordingDispatcher captures dispatched effects for assertions.
type RecordingDispatcher struct {
	mu      sync.Mutex
	effects []effect.Effect
	actors  []id.UserID
}

func (d *RecordingDispatcher) Dispatch(_ context.Context, actor id.UserID, effects []effect.Effect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range effects {
		d.effects = append(d.effects, e)
		d.actors = append(d.actors, actor)
	}
}

// Effects returns a copy of everything dispatched so far.
func (d *RecordingDispatcher) Effects() []effect.Effect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]effect.Effect(nil), d.effects...)
}

// Of filters the recorded effects by kind.
func (d *RecordingDispatcher) Of(kind effect.Kind) []effect.Effect {
	return effect.Of(d.Effects(), kind)
}

// OnChannel returns the notify effects sent to channel.
func (d *RecordingDispatcher) OnChannel(channel effect.Channel) []effect.Effect {
	var out []effect.Effect
	for _, e := range d.Of(effect.KindNotify) {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}

func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects = nil
	d.actors = nil
}
