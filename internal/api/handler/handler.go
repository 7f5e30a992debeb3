package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	jobdomain "github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/workflow"
	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// Executions starts workflow executions
type Executions interface {
	Definition() workflow.Definition
	Start(ctx context.Context, name string, input json.RawMessage) (*domain.Execution, error)
}

// ExecutionStore reads recorded executions
type ExecutionStore interface {
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.Execution, error)
	ListEvents(ctx context.Context, executionID string) ([]*domain.Event, error)
}

// JobRuns inspects and stops runs of the job
type JobRuns interface {
	GetJobRun(ctx context.Context, jobName, runID string) (*jobdomain.JobRun, error)
	ListJobRuns(ctx context.Context, filter jobdomain.RunFilter) ([]*jobdomain.JobRun, error)
	StopJobRun(ctx context.Context, jobName, runID string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Executions  Executions
	Store       ExecutionStore
	Jobs        JobRuns
	JobName     string
	HealthCheck func(ctx context.Context) error
}

// ExecutionHandler handles workflow execution requests
type ExecutionHandler struct {
	logger     *slog.Logger
	executions Executions
	store      ExecutionStore
}

// NewExecutionHandler creates a new ExecutionHandler instance
func NewExecutionHandler(deps *Dependencies) *ExecutionHandler {
	return &ExecutionHandler{
		logger:     deps.Logger,
		executions: deps.Executions,
		store:      deps.Store,
	}
}

// JobHandler handles job run requests
type JobHandler struct {
	logger  *slog.Logger
	jobs    JobRuns
	jobName string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		jobs:    deps.Jobs,
		jobName: deps.JobName,
	}
}
