package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// Schema creates the execution and history tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		execution_id       TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		state_machine      TEXT NOT NULL,
		status             TEXT NOT NULL,
		current_state      TEXT NOT NULL DEFAULT '',
		attempts           INTEGER NOT NULL DEFAULT 0,
		retry_count        INTEGER NOT NULL DEFAULT 0,
		input              TEXT NOT NULL DEFAULT '{}',
		output             TEXT NOT NULL DEFAULT '',
		error              TEXT NOT NULL DEFAULT '',
		cause              TEXT NOT NULL DEFAULT '',
		notified           BOOLEAN NOT NULL DEFAULT FALSE,
		notification_error TEXT NOT NULL DEFAULT '',
		start_date         TIMESTAMP NOT NULL,
		stop_date          TIMESTAMP NULL,
		updated_at         TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_start ON executions (start_date DESC, execution_id DESC)`,
	`CREATE TABLE IF NOT EXISTS execution_events (
		execution_id TEXT NOT NULL,
		sequence     INTEGER NOT NULL,
		type         TEXT NOT NULL,
		state        TEXT NOT NULL DEFAULT '',
		detail       TEXT NOT NULL DEFAULT '',
		occurred_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (execution_id, sequence)
	)`,
}

const executionColumns = `execution_id, name, state_machine, status, current_state, attempts, retry_count,
	input, output, error, cause, notified, notification_error, start_date, stop_date, updated_at`

// Storage handles execution persistence
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

func (s *Storage) CreateExecution(ctx context.Context, exec *domain.Execution) error {
	query := `INSERT INTO executions (` + executionColumns + `) VALUES (
		:execution_id, :name, :state_machine, :status, :current_state, :attempts, :retry_count,
		:input, :output, :error, :cause, :notified, :notification_error, :start_date, :stop_date, :updated_at
	)`

	if _, err := s.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (s *Storage) UpdateExecution(ctx context.Context, exec *domain.Execution) error {
	query := `
		UPDATE executions
		SET status = :status,
		    current_state = :current_state,
		    attempts = :attempts,
		    retry_count = :retry_count,
		    output = :output,
		    error = :error,
		    cause = :cause,
		    notified = :notified,
		    notification_error = :notification_error,
		    stop_date = :stop_date,
		    updated_at = :updated_at
		WHERE execution_id = :execution_id
	`

	res, err := s.db.NamedExecContext(ctx, query, exec)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrExecutionNotFound
	}

	return nil
}

func (s *Storage) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	var exec domain.Execution
	query := s.db.Rebind(`SELECT ` + executionColumns + ` FROM executions WHERE execution_id = ?`)

	if err := s.db.GetContext(ctx, &exec, query, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return &exec, nil
}

// ListExecutions returns executions newest first, fetching one row beyond
// PageSize so callers can tell whether another page exists.
func (s *Storage) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	args := []interface{}{}

	if filter.StateMachine != "" {
		query += " AND state_machine = ?"
		args = append(args, filter.StateMachine)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (start_date, execution_id) < (?, ?)"
		args = append(args, filter.Cursor.At, filter.Cursor.ID)
	}

	query += " ORDER BY start_date DESC, execution_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var execs []*domain.Execution
	if err := s.db.SelectContext(ctx, &execs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return execs, nil
}

// AppendEvent assigns the next sequence number of the execution to event.
// Events of one execution are written by a single goroutine.
func (s *Storage) AppendEvent(ctx context.Context, event *domain.Event) error {
	var last int
	seqQuery := s.db.Rebind(`SELECT COALESCE(MAX(sequence), 0) FROM execution_events WHERE execution_id = ?`)
	if err := s.db.GetContext(ctx, &last, seqQuery, event.ExecutionID); err != nil {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}
	event.Sequence = last + 1

	query := s.db.Rebind(`
		INSERT INTO execution_events (execution_id, sequence, type, state, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		event.ExecutionID, event.Sequence, event.Type, event.State, event.Detail, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution event: %w", err)
	}

	return nil
}

func (s *Storage) ListEvents(ctx context.Context, executionID string) ([]*domain.Event, error) {
	query := s.db.Rebind(`
		SELECT execution_id, sequence, type, state, detail, occurred_at
		FROM execution_events
		WHERE execution_id = ?
		ORDER BY sequence
	`)

	var events []*domain.Event
	if err := s.db.SelectContext(ctx, &events, query, executionID); err != nil {
		return nil, fmt.Errorf("failed to list execution events: %w", err)
	}

	return events, nil
}
