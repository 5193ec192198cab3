package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodian/pkg/platform/effect"
	txcontext "custodian/pkg/platform/tx"
)

// Outbox implements Notifier by writing to the notification_outbox table.
// When called inside a store transaction the message commits with the state
// change that produced it; the Relay publishes it afterwards.
type Outbox struct {
	db *sql.DB
}

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) Notify(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO notification_outbox (id, channel, body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.ExecutorFrom(ctx, o.db).ExecContext(ctx, query,
		msg.ID, string(msg.Channel), msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// claimBatch locks up to limit unpublished rows for the current transaction.
func (o *Outbox) claimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]Message, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, channel, body, created_at
		FROM notification_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var batch []Message
	for rows.Next() {
		var (
			msg     Message
			channel string
		)
		if err := rows.Scan(&msg.ID, &channel, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msg.Channel = effect.Channel(channel)
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

func (o *Outbox) markPublished(ctx context.Context, tx *sql.Tx, msgID uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE notification_outbox SET published_at = $2 WHERE id = $1`, msgID, at)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}
