package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jobdomain "github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/notify"
	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// Task performs the work of a Task state. Parameters arrive with paths
// already resolved against the state input.
type Task interface {
	Run(ctx context.Context, params map[string]any) (json.RawMessage, error)
}

// JobRunner starts and observes job runs
type JobRunner interface {
	StartJobRun(ctx context.Context, jobName string, args jobdomain.Arguments) (string, error)
	GetJobRun(ctx context.Context, jobName, runID string) (*jobdomain.JobRun, error)
	StopJobRun(ctx context.Context, jobName, runID string) error
}

// JobRunTask starts a job run and waits for it to finish. Its output is the
// final run record; a run ending in any state but SUCCEEDED fails the task
// with the run record as cause.
type JobRunTask struct {
	jobs         JobRunner
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewJobRunTask creates a new JobRunTask instance
func NewJobRunTask(jobs JobRunner, pollInterval time.Duration, logger *slog.Logger) *JobRunTask {
	return &JobRunTask{
		jobs:         jobs,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run starts the job named by the JobName parameter and polls the run until
// it reaches a terminal state. Cancelling ctx stops the run.
func (t *JobRunTask) Run(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	jobName, _ := params["JobName"].(string)
	if jobName == "" {
		return nil, &domain.TaskError{Name: domain.ErrorRuntime, Cause: "JobName parameter is required"}
	}

	args := jobdomain.Arguments{}
	if raw, ok := params["Arguments"].(map[string]any); ok {
		for k, v := range raw {
			args[k] = fmt.Sprint(v)
		}
	}

	runID, err := t.jobs.StartJobRun(ctx, jobName, args)
	if err != nil {
		if errors.Is(err, jobdomain.ErrConcurrentRunsExceeded) {
			return nil, &domain.TaskError{Name: domain.ErrorConcurrency, Cause: err.Error()}
		}
		return nil, &domain.TaskError{Name: domain.ErrorTaskFailed, Cause: err.Error()}
	}

	t.logger.Info("Waiting for job run",
		slog.String("job_name", jobName),
		slog.String("run_id", runID),
	)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		run, err := t.jobs.GetJobRun(ctx, jobName, runID)
		if err != nil && ctx.Err() == nil {
			return nil, &domain.TaskError{Name: domain.ErrorTaskFailed, Cause: err.Error()}
		}

		if run != nil && jobdomain.IsTerminal(run.State) {
			body, merr := json.Marshal(run)
			if merr != nil {
				return nil, fmt.Errorf("failed to marshal job run: %w", merr)
			}
			if run.State != jobdomain.RunStateSucceeded {
				return nil, &domain.TaskError{Name: domain.ErrorTaskFailed, Cause: string(body)}
			}
			return body, nil
		}

		select {
		case <-ctx.Done():
			t.stop(ctx, jobName, runID)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *JobRunTask) stop(ctx context.Context, jobName, runID string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := t.jobs.StopJobRun(stopCtx, jobName, runID); err != nil && !errors.Is(err, jobdomain.ErrRunNotActive) {
		t.logger.Warn("Failed to stop job run",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
}

// PublishTask publishes its Message parameter to TopicArn
type PublishTask struct {
	notifier notify.Notifier
}

// NewPublishTask creates a new PublishTask instance
func NewPublishTask(notifier notify.Notifier) *PublishTask {
	return &PublishTask{notifier: notifier}
}

// Run publishes once. A Message that is not a string is sent as JSON.
func (t *PublishTask) Run(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	topic, _ := params["TopicArn"].(string)
	subject, _ := params["Subject"].(string)

	var body string
	switch m := params["Message"].(type) {
	case string:
		body = m
	case nil:
		return nil, &domain.TaskError{Name: domain.ErrorRuntime, Cause: "Message parameter is required"}
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, &domain.TaskError{Name: domain.ErrorRuntime, Cause: err.Error()}
		}
		body = string(b)
	}

	id, err := t.notifier.Publish(ctx, notify.Message{Topic: topic, Subject: subject, Body: body})
	if err != nil {
		return nil, &domain.TaskError{Name: domain.ErrorTaskFailed, Cause: err.Error()}
	}

	return json.Marshal(map[string]string{"MessageId": id})
}
