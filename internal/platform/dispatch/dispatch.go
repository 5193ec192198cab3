// Package dispatch executes the side-effect instructions returned by domain
// transitions once the aggregates they came from are persisted.
package dispatch

import (
	"context"
	"log/slog"

	custodymodels "custodian/internal/custody/models"
	"custodian/internal/platform/metrics"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/notify"
	"custodian/pkg/requestcontext"
)

// FormGenerator creates the custody form requested by a completed manifest.
type FormGenerator interface {
	GenerateForm(ctx context.Context, manifestID id.ManifestID, required, expirationDays int, actor id.UserID) (*custodymodels.Form, error)
}

// FormDefaults are applied to forms requested through effects.
type FormDefaults struct {
	RequiredSignatures int
	ExpirationDays     int
}

// Dispatcher routes notify effects to a Notifier and custody form requests
// to a FormGenerator. Failures are logged and never returned: the transition
// that produced the effect has already been persisted.
type Dispatcher struct {
	notifier notify.Notifier
	forms    FormGenerator
	defaults FormDefaults
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func New(notifier notify.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{notifier: notifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithForms returns a copy of d that also handles custody form requests. The
// custody service itself dispatches through d, so the two are bound after
// both exist.
func (d *Dispatcher) WithForms(forms FormGenerator, defaults FormDefaults) *Dispatcher {
	c := *d
	c.forms = forms
	c.defaults = defaults
	return &c
}

func (d *Dispatcher) Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect) {
	// Effects follow a committed write; a cancelled request must not drop them.
	ctx = context.WithoutCancel(ctx)
	for _, e := range effects {
		d.metrics.IncrementEffect(string(e.Kind), string(e.Channel))
		switch e.Kind {
		case effect.KindNotify:
			d.notify(ctx, e)
		case effect.KindRequestCustodyForm:
			d.requestForm(ctx, actor, e)
		default:
			d.logger.WarnContext(ctx, "unknown effect kind", "kind", string(e.Kind))
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, e effect.Effect) {
	if d.notifier == nil {
		return
	}
	msg := notify.NewMessage(e.Channel, e.Message, requestcontext.Now(ctx))
	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "notification failed",
			"channel", string(e.Channel), "notification_id", msg.ID.String(), "error", err)
	}
}

func (d *Dispatcher) requestForm(ctx context.Context, actor id.UserID, e effect.Effect) {
	if d.forms == nil {
		d.logger.WarnContext(ctx, "custody form requested but no generator is bound", "manifest_id", e.ManifestID.String())
		return
	}
	form, err := d.forms.GenerateForm(ctx, e.ManifestID, d.defaults.RequiredSignatures, d.defaults.ExpirationDays, actor)
	switch {
	case dErrors.HasReason(err, dErrors.ReasonInvalidFormState):
		d.logger.InfoContext(ctx, "custody form already exists", "manifest_id", e.ManifestID.String())
	case err != nil:
		d.logger.ErrorContext(ctx, "custody form generation failed", "manifest_id", e.ManifestID.String(), "error", err)
	default:
		d.logger.InfoContext(ctx, "custody form generated", "manifest_id", e.ManifestID.String(), "form_id", form.ID.String())
	}
}
