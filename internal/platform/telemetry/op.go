package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"custodian/internal/platform/metrics"
)

// Op instruments one aggregate operation with a span and the transitions
// counter.
type Op struct {
	span      trace.Span
	metrics   *metrics.Metrics
	aggregate string
	operation string
	started   time.Time
}

// StartOp opens a span named "<aggregate>.<operation>" on the global tracer.
func StartOp(ctx context.Context, m *metrics.Metrics, aggregate, operation string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	ctx, span := otel.Tracer("custodian/"+aggregate).Start(ctx, aggregate+"."+operation,
		trace.WithAttributes(attrs...))
	return ctx, &Op{
		span:      span,
		metrics:   m,
		aggregate: aggregate,
		operation: operation,
		started:   time.Now(),
	}
}

// End closes the span, records the outcome and returns err unchanged so it can
// be used as `return op.End(err)`.
func (o *Op) End(err error) error {
	outcome := metrics.OutcomeFor(err)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, outcome)
	}
	o.span.SetAttributes(attribute.String("outcome", outcome))
	o.span.End()
	o.metrics.ObserveTransition(o.aggregate, o.operation, outcome, o.started)
	return err
}
