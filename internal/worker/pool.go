package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop executes runs until runsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for d := range w.runsChan {
		logger.Info("Worker received job run",
			slog.String("run_id", d.msg.RunID),
			slog.Uint64("delivery_tag", d.msg.DeliveryTag),
		)

		err := w.executor.ExecuteRun(ctx, d.msg.RunID)
		if err != nil {
			requeue := shouldRequeue(err)
			logger.Error("Job run processing failed",
				slog.String("run_id", d.msg.RunID),
				slog.String("error", err.Error()),
				slog.Bool("requeue", requeue),
			)
			w.nack(d.delivery, requeue)
			continue
		}

		if ackErr := d.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("run_id", d.msg.RunID),
				slog.String("error", ackErr.Error()),
			)
		}
	}

	logger.Debug("Worker goroutine stopping - runsChan closed")
}

// shouldRequeue requeues transient failures only
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrRunAlreadyClaimed) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
