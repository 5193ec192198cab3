package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Relay drains the outbox into a downstream Notifier (normally Kafka).
// Rows are claimed with SKIP LOCKED so several relays can run side by side.
type Relay struct {
	outbox    *Outbox
	sink      Notifier
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(outbox *Outbox, sink Notifier, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:    outbox,
		sink:      sink,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and reports how many messages went out. A
// message that fails to publish stays in the outbox for the next pass.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.outbox.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := r.outbox.claimBatch(ctx, tx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range batch {
		if err := r.sink.Notify(ctx, msg); err != nil {
			r.logger.WarnContext(ctx, "publish notification failed",
				"notification_id", msg.ID.String(),
				"channel", string(msg.Channel),
				"error", err,
			)
			continue
		}
		if err := r.outbox.markPublished(ctx, tx, msg.ID, time.Now()); err != nil {
			return published, err
		}
		published++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return published, nil
}
