package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
)

// staleGrace is added to the job timeout before an active run is considered
// abandoned and expired.
const staleGrace = 5 * time.Minute

// Store persists job runs
type Store interface {
	CreateRun(ctx context.Context, run *domain.JobRun, maxConcurrent int) error
	GetRun(ctx context.Context, runID string) (*domain.JobRun, error)
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.JobRun, error)
	CompleteRun(ctx context.Context, runID, state, result, errorMessage string) error
	ExpireRuns(ctx context.Context, jobName string, cutoff time.Time) (int64, error)
}

// Dispatcher hands a created run to whatever executes it
type Dispatcher interface {
	Dispatch(ctx context.Context, run *domain.JobRun) error
}

// Service starts and inspects runs of the defined job
type Service struct {
	definition Definition
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewService creates a new Service instance
func NewService(definition Definition, store Store, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		definition: definition,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Definition returns the job this service runs
func (s *Service) Definition() Definition {
	return s.definition
}

func (s *Service) checkName(jobName string) error {
	if jobName != s.definition.Name {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobName)
	}
	return nil
}

// StartJobRun records a new run and dispatches it. It returns
// ErrConcurrentRunsExceeded when the job is already at its run cap.
func (s *Service) StartJobRun(ctx context.Context, jobName string, args domain.Arguments) (string, error) {
	if err := s.checkName(jobName); err != nil {
		return "", err
	}

	if s.definition.Timeout > 0 {
		cutoff := time.Now().UTC().Add(-(s.definition.Timeout + staleGrace))
		if _, err := s.store.ExpireRuns(ctx, jobName, cutoff); err != nil {
			s.logger.Warn("Failed to expire stale job runs",
				slog.String("job_name", jobName),
				slog.Any("error", err),
			)
		}
	}

	run := &domain.JobRun{
		RunID:           domain.NewRunID(),
		JobName:         jobName,
		Arguments:       s.definition.Arguments(args),
		TimeoutSeconds:  int(s.definition.Timeout / time.Second),
		NumberOfWorkers: s.definition.NumberOfWorkers,
		WorkerType:      s.definition.WorkerType,
	}

	if err := s.store.CreateRun(ctx, run, s.definition.MaxConcurrentRuns); err != nil {
		if errors.Is(err, domain.ErrConcurrentRunsExceeded) {
			s.logger.Warn("Job run rejected",
				slog.String("job_name", jobName),
				slog.Int("max_concurrent_runs", s.definition.MaxConcurrentRuns),
			)
		}
		return "", err
	}

	if err := s.dispatcher.Dispatch(ctx, run); err != nil {
		msg := fmt.Sprintf("failed to dispatch job run: %v", err)
		if cerr := s.store.CompleteRun(context.WithoutCancel(ctx), run.RunID, domain.RunStateFailed, "", msg); cerr != nil {
			s.logger.Error("Failed to mark undispatched job run as failed",
				slog.String("run_id", run.RunID),
				slog.Any("error", cerr),
			)
		}
		return "", fmt.Errorf("failed to dispatch job run %s: %w", run.RunID, err)
	}

	s.logger.Info("Job run started",
		slog.String("job_name", jobName),
		slog.String("run_id", run.RunID),
	)

	return run.RunID, nil
}

// GetJobRun returns a run of the job
func (s *Service) GetJobRun(ctx context.Context, jobName, runID string) (*domain.JobRun, error) {
	if err := s.checkName(jobName); err != nil {
		return nil, err
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.JobName != jobName {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

// ListJobRuns lists runs of the job newest first
func (s *Service) ListJobRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.JobRun, error) {
	filter.JobName = s.definition.Name
	return s.store.ListRuns(ctx, filter)
}

// StopJobRun moves an active run to STOPPED
func (s *Service) StopJobRun(ctx context.Context, jobName, runID string) error {
	if _, err := s.GetJobRun(ctx, jobName, runID); err != nil {
		return err
	}

	if err := s.store.CompleteRun(ctx, runID, domain.RunStateStopped, "", "job run stopped"); err != nil {
		return err
	}

	s.logger.Info("Job run stopped",
		slog.String("job_name", jobName),
		slog.String("run_id", runID),
	)

	return nil
}
