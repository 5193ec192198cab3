// Package notify delivers plain-text operational messages to warehouse,
// logistics and election-status audiences. Delivery is fire-and-forget from
// the core's point of view: the dispatcher logs failures and moves on.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custodian/pkg/platform/effect"
)

//go:generate mockgen -source=notify.go -destination=mocks/mock_notifier.go -package=mocks Notifier

// Message is one operational notification.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Channel   effect.Channel `json:"channel"`
	Body      string         `json:"body"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage stamps a message with a fresh id and time.
func NewMessage(channel effect.Channel, body string, now time.Time) Message {
	return Message{ID: uuid.New(), Channel: channel, Body: body, CreatedAt: now}
}

// Notifier is the notify contract.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Log writes notifications to a structured logger. It is the default sink
// when no broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "notification",
		"notification_id", msg.ID.String(),
		"channel", string(msg.Channel),
		"body", msg.Body,
	)
	return nil
}
