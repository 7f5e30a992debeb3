package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
)

// Publisher is the part of the broker client the dispatcher needs
type Publisher interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// RabbitMQDispatcher queues runs for the worker service
type RabbitMQDispatcher struct {
	publisher  Publisher
	routingKey string
	logger     *slog.Logger
}

// NewRabbitMQDispatcher creates a dispatcher publishing with routingKey
func NewRabbitMQDispatcher(publisher Publisher, routingKey string, logger *slog.Logger) *RabbitMQDispatcher {
	return &RabbitMQDispatcher{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger,
	}
}

func (d *RabbitMQDispatcher) Dispatch(ctx context.Context, run *domain.JobRun) error {
	body, err := json.Marshal(domain.RunMessage{RunID: run.RunID, JobName: run.JobName})
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	err = d.publisher.PublishWithRetry(ctx, rabbitmq.Message{
		RoutingKey:  d.routingKey,
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return err
	}

	d.logger.Debug("Job run queued",
		slog.String("run_id", run.RunID),
		slog.String("routing_key", d.routingKey),
	)

	return nil
}

// RunExecutor executes a stored run to completion
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID string) error
}

// LocalDispatcher executes runs in-process on background goroutines
type LocalDispatcher struct {
	ctx      context.Context
	executor RunExecutor
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher whose runs live until ctx is done
func NewLocalDispatcher(ctx context.Context, executor RunExecutor, logger *slog.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		ctx:      ctx,
		executor: executor,
		logger:   logger,
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, run *domain.JobRun) error {
	if err := d.ctx.Err(); err != nil {
		return fmt.Errorf("local dispatcher stopped: %w", err)
	}

	d.wg.Add(1)
	go func(runID string) {
		defer d.wg.Done()

		if err := d.executor.ExecuteRun(d.ctx, runID); err != nil {
			d.logger.Error("Local job run failed",
				slog.String("run_id", runID),
				slog.Any("error", err),
			)
		}
	}(run.RunID)

	return nil
}

// Wait blocks until every dispatched run has returned
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
