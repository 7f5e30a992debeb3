// Package worker executes job runs dispatched through the broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Source is the broker side of the worker
type Source interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Executor runs one stored job run to completion
type Executor interface {
	ExecuteRun(ctx context.Context, runID string) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Source        Source
	Executor      Executor
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
}

// Worker consumes run messages and executes them on a fixed pool
type Worker struct {
	logger        *slog.Logger
	source        Source
	executor      Executor
	workerID      string
	queueName     string
	concurrency   int
	prefetchCount int
	runsChan      chan *delivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch < 1 {
		prefetch = concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		source:        cfg.Source,
		executor:      cfg.Executor,
		workerID:      cfg.WorkerID,
		queueName:     cfg.QueueName,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		runsChan:      make(chan *delivery),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes until ctx is done, Stop is called or the delivery channel
// closes, then waits for in-flight runs.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.runsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}

// Stop asks the worker to stop taking new messages
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.source.Qos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}
