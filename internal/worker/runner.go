package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/job"
	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/transform"
)

// RunStore is the part of the job run store a worker needs
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*domain.JobRun, error)
	ClaimRun(ctx context.Context, runID, workerID string) (*domain.JobRun, error)
	CompleteRun(ctx context.Context, runID, state, result, errorMessage string) error
	Heartbeat(ctx context.Context, runID string) error
}

// Script runs the transformation of one job run
type Script interface {
	Run(ctx context.Context, opts transform.Options) (*transform.Summary, error)
}

// RunnerConfig holds runner configuration
type RunnerConfig struct {
	Logger            *slog.Logger
	Store             RunStore
	Script            Script
	WorkerID          string
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Runner executes stored job runs
type Runner struct {
	logger            *slog.Logger
	store             RunStore
	script            Script
	workerID          string
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
}

// NewRunner creates a new Runner instance
func NewRunner(cfg *RunnerConfig) *Runner {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Runner{
		logger:            cfg.Logger,
		store:             cfg.Store,
		script:            cfg.Script,
		workerID:          cfg.WorkerID,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
	}
}

// Options resolves the script options from run arguments
func Options(run *domain.JobRun) (transform.Options, error) {
	opts := transform.Options{
		JobName:    run.Arguments[job.ArgJobName],
		RunID:      run.RunID,
		Database:   run.Arguments[job.ArgDatabase],
		Table:      run.Arguments[job.ArgTable],
		OutputPath: run.Arguments[job.ArgOutputPath],
	}
	if opts.JobName == "" {
		opts.JobName = run.JobName
	}

	var missing []string
	for arg, v := range map[string]string{
		job.ArgDatabase:   opts.Database,
		job.ArgTable:      opts.Table,
		job.ArgOutputPath: opts.OutputPath,
	} {
		if v == "" {
			missing = append(missing, arg)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return transform.Options{}, fmt.Errorf("%w: missing %v", domain.ErrInvalidArguments, missing)
	}

	return opts, nil
}

// ExecuteRun claims a STARTING run, runs the transformation under the run
// timeout and records the outcome. A failed transformation is recorded on
// the run and is not an error of ExecuteRun; only store failures are.
func (r *Runner) ExecuteRun(ctx context.Context, runID string) error {
	logger := r.logger.With(
		slog.String("run_id", runID),
		slog.String("worker_id", r.workerID),
	)

	// Step 1: Claim run (STARTING -> RUNNING)
	run, err := r.store.ClaimRun(ctx, runID, r.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrRunAlreadyClaimed) {
			logger.Warn("Job run already claimed, skipping")
			return fmt.Errorf("job run already claimed: %w", err)
		}
		logger.Error("Failed to claim job run", slog.Any("error", err))
		return domain.NewRetryableError(fmt.Errorf("failed to claim job run: %w", err))
	}

	// Step 2: Resolve arguments
	opts, err := Options(run)
	if err != nil {
		logger.Error("Invalid job run arguments", slog.Any("error", err))
		return r.complete(ctx, logger, runID, domain.RunStateFailed, "", err.Error())
	}

	// Step 3: Run timeout
	timeout := r.jobTimeout
	if run.TimeoutSeconds > 0 {
		timeout = time.Duration(run.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Step 4: Heartbeat, also cancels the run once it was stopped
	stopped := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go r.heartbeat(runCtx, logger, runID, cancel, stopped, heartbeatDone)
	defer close(heartbeatDone)

	// Step 5: Execute
	logger.Info("Executing job run",
		slog.String("job_name", opts.JobName),
		slog.String("table", opts.Database+"."+opts.Table),
		slog.Duration("timeout", timeout),
	)
	summary, err := r.script.Run(runCtx, opts)

	// Step 6: Record outcome
	if err != nil {
		select {
		case <-stopped:
			logger.Info("Job run finished elsewhere while executing")
			return nil
		default:
		}

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			msg := fmt.Sprintf("job run exceeded its timeout of %s", timeout)
			return r.complete(ctx, logger, runID, domain.RunStateTimeout, "", msg)
		}

		return r.complete(ctx, logger, runID, domain.RunStateFailed, "", err.Error())
	}

	result, err := json.Marshal(summary)
	if err != nil {
		return r.complete(ctx, logger, runID, domain.RunStateFailed, "", fmt.Sprintf("failed to encode result: %v", err))
	}

	return r.complete(ctx, logger, runID, domain.RunStateSucceeded, string(result), "")
}

func (r *Runner) complete(ctx context.Context, logger *slog.Logger, runID, state, result, errorMessage string) error {
	if state != domain.RunStateSucceeded {
		logger.Error("Job run failed",
			slog.String("state", state),
			slog.String("error", errorMessage),
		)
	}

	err := r.store.CompleteRun(context.WithoutCancel(ctx), runID, state, result, errorMessage)
	if errors.Is(err, domain.ErrRunNotActive) {
		logger.Warn("Job run finished elsewhere, outcome dropped", slog.String("state", state))
		return nil
	}
	if err != nil {
		logger.Error("Failed to update job run state",
			slog.String("state", state),
			slog.Any("error", err),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to complete job run: %w", err))
	}

	logger.Info("Job run finished", slog.String("state", state))
	return nil
}

// heartbeat periodically refreshes the run heartbeat until done is closed.
// When the run was finished elsewhere (stopped or expired) it closes stopped
// and cancels the run.
func (r *Runner) heartbeat(ctx context.Context, logger *slog.Logger, runID string, cancel context.CancelFunc, stopped chan<- struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	logger.Debug("Job run heartbeat started")

	for {
		select {
		case <-done:
			logger.Debug("Job run heartbeat stopped")
			return

		case <-ctx.Done():
			logger.Debug("Job run heartbeat stopped - context canceled")
			return

		case <-ticker.C:
			if err := r.store.Heartbeat(ctx, runID); err != nil {
				logger.Warn("Failed to update job run heartbeat", slog.Any("error", err))
				continue
			}

			run, err := r.store.GetRun(ctx, runID)
			if err != nil {
				logger.Warn("Failed to read job run", slog.Any("error", err))
				continue
			}
			if domain.IsTerminal(run.State) {
				close(stopped)
				cancel()
				return
			}
		}
	}
}
