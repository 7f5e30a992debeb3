package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
)

type ListJobRunsRequest struct {
	State    string `form:"state"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobRunsResponse struct {
	JobRuns    []JobRunDTO `json:"job_runs"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type JobRunDTO struct {
	RunID           string            `json:"run_id"`
	JobName         string            `json:"job_name"`
	State           string            `json:"state"`
	Arguments       map[string]string `json:"arguments"`
	WorkerID        string            `json:"worker_id,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Result          json.RawMessage   `json:"result,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
	NumberOfWorkers int               `json:"number_of_workers"`
	WorkerType      string            `json:"worker_type"`
	ExecutionTime   int               `json:"execution_time"`
	StartedOn       string            `json:"started_on"`
	CompletedOn     string            `json:"completed_on,omitempty"`
}

func NewJobRunDTO(run *domain.JobRun) JobRunDTO {
	out := JobRunDTO{
		RunID:           run.RunID,
		JobName:         run.JobName,
		State:           run.State,
		Arguments:       run.Arguments,
		WorkerID:        run.WorkerID,
		ErrorMessage:    run.ErrorMessage,
		Result:          rawJSON(run.Result),
		TimeoutSeconds:  run.TimeoutSeconds,
		NumberOfWorkers: run.NumberOfWorkers,
		WorkerType:      run.WorkerType,
		ExecutionTime:   run.ExecutionTime,
		StartedOn:       run.StartedOn.Format(time.RFC3339),
	}
	if run.CompletedOn != nil {
		out.CompletedOn = run.CompletedOn.Format(time.RFC3339)
	}
	return out
}
