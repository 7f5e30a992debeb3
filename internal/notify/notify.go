// Package notify publishes failure messages to a pub/sub sink.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Message is one notification. Body is passed through unmodified.
type Message struct {
	Topic   string
	Subject string
	Body    string
}

// Notifier publishes a message once and returns the sink's message id.
type Notifier interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// LogNotifier writes notifications to the log. Used where no sink is deployed.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(_ context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	n.logger.Warn("Notification",
		slog.String("message_id", id),
		slog.String("topic", msg.Topic),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return id, nil
}
