package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
)

// delivery pairs a decoded run message with the broker delivery to settle
type delivery struct {
	msg      domain.RunMessage
	delivery amqp.Delivery
}

// startMessageDispatcher decodes deliveries and hands them to the pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg domain.RunMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(d.Body)),
				)
				// malformed messages go to the dead letter exchange
				w.nack(d, false)
				continue
			}

			if err := domain.ValidateRunID(msg.RunID); err != nil {
				w.logger.Error("Invalid run_id in message",
					slog.String("run_id", msg.RunID),
					slog.String("error", err.Error()),
				)
				w.nack(d, false)
				continue
			}

			msg.DeliveryTag = d.DeliveryTag

			select {
			case w.runsChan <- &delivery{msg: msg, delivery: d}:
				w.logger.Debug("Job run dispatched to worker pool",
					slog.String("run_id", msg.RunID),
					slog.Uint64("delivery_tag", d.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching run")
				w.nack(d, true)
				return
			case <-w.stopChan:
				w.logger.Info("Message dispatcher stopped while dispatching run")
				w.nack(d, true)
				return
			}
		}
	}
}

func (w *Worker) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
