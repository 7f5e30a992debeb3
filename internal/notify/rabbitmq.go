package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
)

// Publisher is the part of the broker client the notifier needs
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// RabbitMQNotifier publishes notifications to an exchange
type RabbitMQNotifier struct {
	publisher  Publisher
	routingKey string
	logger     *slog.Logger
}

func NewRabbitMQNotifier(publisher Publisher, routingKey string, logger *slog.Logger) *RabbitMQNotifier {
	return &RabbitMQNotifier{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Publish sends the message once; delivery is not retried.
func (n *RabbitMQNotifier) Publish(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()

	err := n.publisher.Publish(ctx, rabbitmq.Message{
		RoutingKey:  n.routingKey,
		ContentType: "application/json",
		Headers: map[string]interface{}{
			"message_id": id,
			"subject":    msg.Subject,
			"topic":      msg.Topic,
		},
		Body: []byte(msg.Body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Info("Notification published",
		slog.String("message_id", id),
		slog.String("routing_key", n.routingKey),
		slog.String("subject", msg.Subject),
	)

	return id, nil
}
