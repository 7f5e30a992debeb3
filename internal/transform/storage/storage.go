package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/glue-pipeline/internal/transform"
)

// Schema creates the data quality results table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS dq_results (
		result_id          TEXT PRIMARY KEY,
		job_name           TEXT NOT NULL,
		run_id             TEXT NOT NULL,
		evaluation_context TEXT NOT NULL,
		ruleset            TEXT NOT NULL,
		score              DOUBLE PRECISION NOT NULL,
		passed             INTEGER NOT NULL,
		failed             INTEGER NOT NULL,
		rules              TEXT NOT NULL,
		evaluated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dq_results_run_id ON dq_results (run_id)`,
}

// ResultStore persists data quality results
type ResultStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewResultStore creates a new ResultStore instance
func NewResultStore(db *sqlx.DB, logger *slog.Logger) *ResultStore {
	return &ResultStore{
		db:     db,
		logger: logger,
	}
}

type resultRow struct {
	transform.QualityResult
	RulesJSON string `db:"rules"`
}

// PublishResult stores one evaluation
func (s *ResultStore) PublishResult(ctx context.Context, result *transform.QualityResult) error {
	rules, err := json.Marshal(result.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rule results: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO dq_results (result_id, job_name, run_id, evaluation_context, ruleset, score, passed, failed, rules, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = s.db.ExecContext(ctx, query,
		result.ResultID,
		result.JobName,
		result.RunID,
		result.EvaluationContext,
		result.Ruleset,
		result.Score,
		result.Passed,
		result.Failed,
		string(rules),
		result.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert data quality result: %w", err)
	}

	s.logger.Debug("Data quality result stored",
		slog.String("result_id", result.ResultID),
		slog.String("run_id", result.RunID),
	)

	return nil
}

// ListByRun returns the results recorded for a job run
func (s *ResultStore) ListByRun(ctx context.Context, runID string) ([]*transform.QualityResult, error) {
	query := s.db.Rebind(`
		SELECT result_id, job_name, run_id, evaluation_context, ruleset, score, passed, failed, rules, evaluated_at
		FROM dq_results
		WHERE run_id = ?
		ORDER BY evaluated_at
	`)

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list data quality results: %w", err)
	}

	results := make([]*transform.QualityResult, len(rows))
	for i := range rows {
		r := rows[i].QualityResult
		if err := json.Unmarshal([]byte(rows[i].RulesJSON), &r.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode rule results: %w", err)
		}
		results[i] = &r
	}

	return results, nil
}
