package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

type StartExecutionRequest struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type ListExecutionsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListExecutionsResponse struct {
	Executions []ExecutionDTO `json:"executions"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ExecutionDTO struct {
	ExecutionID       string          `json:"execution_id"`
	Name              string          `json:"name"`
	StateMachine      string          `json:"state_machine"`
	Status            string          `json:"status"`
	CurrentState      string          `json:"current_state"`
	Attempts          int             `json:"attempts"`
	RetryCount        int             `json:"retry_count"`
	Input             json.RawMessage `json:"input,omitempty"`
	Output            json.RawMessage `json:"output,omitempty"`
	Error             string          `json:"error,omitempty"`
	Cause             string          `json:"cause,omitempty"`
	Notified          bool            `json:"notified"`
	NotificationError string          `json:"notification_error,omitempty"`
	StartDate         string          `json:"start_date"`
	StopDate          string          `json:"stop_date,omitempty"`
}

type EventDTO struct {
	Sequence  int    `json:"sequence"`
	Type      string `json:"type"`
	State     string `json:"state,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

type ExecutionDetailResponse struct {
	ExecutionDTO
	Events []EventDTO `json:"events"`
}

func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

func NewExecutionDTO(e *domain.Execution) ExecutionDTO {
	out := ExecutionDTO{
		ExecutionID:       e.ExecutionID,
		Name:              e.Name,
		StateMachine:      e.StateMachine,
		Status:            e.Status,
		CurrentState:      e.CurrentState,
		Attempts:          e.Attempts,
		RetryCount:        e.RetryCount,
		Input:             rawJSON(e.Input),
		Output:            rawJSON(e.Output),
		Error:             e.Error,
		Cause:             e.Cause,
		Notified:          e.Notified,
		NotificationError: e.NotificationError,
		StartDate:         e.StartDate.Format(time.RFC3339),
	}
	if e.StopDate != nil {
		out.StopDate = e.StopDate.Format(time.RFC3339)
	}
	return out
}

func NewEventDTO(ev *domain.Event) EventDTO {
	return EventDTO{
		Sequence:  ev.Sequence,
		Type:      ev.Type,
		State:     ev.State,
		Detail:    ev.Detail,
		Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
	}
}
