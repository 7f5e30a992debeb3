package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// Starter starts workflow executions
type Starter interface {
	Start(ctx context.Context, name string, input json.RawMessage) (*domain.Execution, error)
}

// Event is the input of an execution started by the schedule
type Event struct {
	Source string    `json:"source"`
	Rule   string    `json:"rule"`
	Time   time.Time `json:"time"`
}

// Scheduler starts one execution per activation of its expression
type Scheduler struct {
	rule       string
	expression Expression
	starter    Starter
	cron       *cron.Cron
	logger     *slog.Logger
}

// New creates a Scheduler for rule. It does nothing until Start.
func New(rule string, expression Expression, starter Starter, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		rule:       rule,
		expression: expression,
		starter:    starter,
		logger:     logger.With(slog.String("rule", rule)),
	}

	cronLogger := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	if _, err := s.cron.AddFunc(expression.Spec, s.Fire); err != nil {
		return nil, fmt.Errorf("failed to register schedule: %w", err)
	}

	return s, nil
}

// Next returns the first activation after from
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.expression.Next(from)
}

// Start runs the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started",
		slog.String("expression", s.expression.Source),
		slog.Time("next", s.Next(time.Now().UTC())),
	)
}

// Stop stops the schedule and waits for a running activation, at most until
// ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fire starts one execution as the schedule would
func (s *Scheduler) Fire() {
	now := time.Now().UTC().Truncate(time.Second)

	input, err := json.Marshal(Event{Source: "schedule", Rule: s.rule, Time: now})
	if err != nil {
		s.logger.Error("Failed to encode schedule event", slog.Any("error", err))
		return
	}

	name := fmt.Sprintf("%s-%s", s.rule, now.Format("20060102T150405Z"))
	exec, err := s.starter.Start(context.Background(), name, input)
	if err != nil {
		s.logger.Error("Failed to start scheduled execution",
			slog.String("name", name),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("Scheduled execution started",
		slog.String("execution_id", exec.ExecutionID),
		slog.String("name", name),
	)
}

// cronLogger routes cron's logging to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
