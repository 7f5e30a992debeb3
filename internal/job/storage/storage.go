package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/shared/database"
)

// Schema creates the job runs table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS job_runs (
		run_id            TEXT PRIMARY KEY,
		job_name          TEXT NOT NULL,
		state             TEXT NOT NULL,
		arguments         TEXT NOT NULL DEFAULT '{}',
		worker_id         TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		result            TEXT NOT NULL DEFAULT '',
		timeout_seconds   INTEGER NOT NULL DEFAULT 0,
		number_of_workers INTEGER NOT NULL DEFAULT 0,
		worker_type       TEXT NOT NULL DEFAULT '',
		started_on        TIMESTAMP NOT NULL,
		last_modified_on  TIMESTAMP NOT NULL,
		completed_on      TIMESTAMP NULL,
		last_heartbeat_on TIMESTAMP NULL,
		execution_time    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_runs_job_state ON job_runs (job_name, state)`,
	`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs (started_on DESC, run_id DESC)`,
}

const runColumns = `run_id, job_name, state, arguments, worker_id, error_message, result,
	timeout_seconds, number_of_workers, worker_type, started_on, last_modified_on,
	completed_on, last_heartbeat_on, execution_time`

// Storage handles job run persistence
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun inserts a STARTING run unless the job already has maxConcurrent
// active runs, in which case ErrConcurrentRunsExceeded is returned. The count
// and insert share a transaction; sqlite runs on a single connection.
func (s *Storage) CreateRun(ctx context.Context, run *domain.JobRun, maxConcurrent int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.db.DriverName() == database.DriverPostgres {
		// serializes concurrent starts of the same job
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, run.JobName); err != nil {
			return fmt.Errorf("failed to lock job: %w", err)
		}
	}

	var active int
	countQuery := tx.Rebind(`SELECT COUNT(*) FROM job_runs WHERE job_name = ? AND state IN (?, ?)`)
	if err := tx.GetContext(ctx, &active, countQuery, run.JobName, domain.RunStateStarting, domain.RunStateRunning); err != nil {
		return fmt.Errorf("failed to count active job runs: %w", err)
	}
	if active >= maxConcurrent {
		return domain.ErrConcurrentRunsExceeded
	}

	now := s.now()
	run.State = domain.RunStateStarting
	run.StartedOn = now
	run.LastModifiedOn = now

	query := tx.Rebind(`
		INSERT INTO job_runs (run_id, job_name, state, arguments, timeout_seconds, number_of_workers, worker_type, started_on, last_modified_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = tx.ExecContext(ctx, query,
		run.RunID,
		run.JobName,
		run.State,
		run.Arguments,
		run.TimeoutSeconds,
		run.NumberOfWorkers,
		run.WorkerType,
		run.StartedOn,
		run.LastModifiedOn,
	)
	if err != nil {
		return fmt.Errorf("failed to create job run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job run: %w", err)
	}

	s.logger.Info("Job run created",
		slog.String("run_id", run.RunID),
		slog.String("job_name", run.JobName),
	)

	return nil
}

// GetRun retrieves a run by its ID
func (s *Storage) GetRun(ctx context.Context, runID string) (*domain.JobRun, error) {
	var run domain.JobRun
	query := s.db.Rebind(`SELECT ` + runColumns + ` FROM job_runs WHERE run_id = ?`)

	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}

	return &run, nil
}

// ListRuns returns runs newest first. One extra row beyond PageSize is
// fetched so callers can tell whether another page exists.
func (s *Storage) ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.JobRun, error) {
	query := `SELECT ` + runColumns + ` FROM job_runs WHERE 1=1`
	args := []interface{}{}

	if filter.JobName != "" {
		query += " AND job_name = ?"
		args = append(args, filter.JobName)
	}

	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}

	if filter.Cursor != nil {
		query += " AND (started_on, run_id) < (?, ?)"
		args = append(args, filter.Cursor.At, filter.Cursor.ID)
	}

	query += " ORDER BY started_on DESC, run_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var runs []*domain.JobRun
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}

	return runs, nil
}

// ClaimRun moves a STARTING run to RUNNING for workerID using optimistic locking
func (s *Storage) ClaimRun(ctx context.Context, runID, workerID string) (*domain.JobRun, error) {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE job_runs
		SET state = ?,
		    worker_id = ?,
		    last_heartbeat_on = ?,
		    last_modified_on = ?
		WHERE run_id = ?
		  AND state = ?
	`)

	res, err := s.db.ExecContext(ctx, query, domain.RunStateRunning, workerID, now, now, runID, domain.RunStateStarting)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("Failed to claim job run - already claimed or not found",
			slog.String("run_id", runID),
			slog.String("worker_id", workerID),
		)
		return nil, domain.ErrRunAlreadyClaimed
	}

	s.logger.Info("Job run claimed",
		slog.String("run_id", runID),
		slog.String("worker_id", workerID),
	)

	return s.GetRun(ctx, runID)
}

// CompleteRun moves an active run to a terminal state
func (s *Storage) CompleteRun(ctx context.Context, runID, state, result, errorMessage string) error {
	if !domain.IsTerminal(state) {
		return fmt.Errorf("cannot complete job run with non-terminal state %s", state)
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	now := s.now()
	execution := int(now.Sub(run.StartedOn).Seconds())

	query := s.db.Rebind(`
		UPDATE job_runs
		SET state = ?,
		    result = ?,
		    error_message = ?,
		    completed_on = ?,
		    last_modified_on = ?,
		    execution_time = ?
		WHERE run_id = ?
		  AND state IN (?, ?)
	`)

	res, err := s.db.ExecContext(ctx, query,
		state, result, errorMessage, now, now, execution,
		runID, domain.RunStateStarting, domain.RunStateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to update job run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrRunNotActive
	}

	s.logger.Info("Job run completed",
		slog.String("run_id", runID),
		slog.String("state", state),
	)

	return nil
}

// Heartbeat refreshes the heartbeat of a RUNNING run
func (s *Storage) Heartbeat(ctx context.Context, runID string) error {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE job_runs
		SET last_heartbeat_on = ?,
		    last_modified_on = ?
		WHERE run_id = ? AND state = ?
	`)

	res, err := s.db.ExecContext(ctx, query, now, now, runID, domain.RunStateRunning)
	if err != nil {
		return fmt.Errorf("failed to update job run heartbeat: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Job run heartbeat update - no rows affected (run may not be running)",
			slog.String("run_id", runID),
		)
	}

	return nil
}

// ExpireRuns times out active runs of a job started before cutoff and
// returns how many were changed.
func (s *Storage) ExpireRuns(ctx context.Context, jobName string, cutoff time.Time) (int64, error) {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE job_runs
		SET state = ?,
		    error_message = ?,
		    completed_on = ?,
		    last_modified_on = ?
		WHERE job_name = ?
		  AND state IN (?, ?)
		  AND started_on < ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		domain.RunStateTimeout, "job run exceeded its timeout", now, now,
		jobName, domain.RunStateStarting, domain.RunStateRunning, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire job runs: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		s.logger.Warn("Expired stale job runs",
			slog.String("job_name", jobName),
			slog.Int64("count", rows),
		)
	}

	return rows, nil
}
