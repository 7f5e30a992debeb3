package domain

import (
	"time"

	"github.com/cuongbtq/glue-pipeline/shared/database"
)

// Execution statuses
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusTimedOut  = "TIMED_OUT"
	StatusAborted   = "ABORTED"
)

// Execution is one run of the state machine
type Execution struct {
	ExecutionID       string     `db:"execution_id" json:"execution_id"`
	Name              string     `db:"name" json:"name"`
	StateMachine      string     `db:"state_machine" json:"state_machine"`
	Status            string     `db:"status" json:"status"`
	CurrentState      string     `db:"current_state" json:"current_state"`
	Attempts          int        `db:"attempts" json:"attempts"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	Input             string     `db:"input" json:"input"`
	Output            string     `db:"output" json:"output,omitempty"`
	Error             string     `db:"error" json:"error,omitempty"`
	Cause             string     `db:"cause" json:"cause,omitempty"`
	Notified          bool       `db:"notified" json:"notified"`
	NotificationError string     `db:"notification_error" json:"notification_error,omitempty"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	StopDate          *time.Time `db:"stop_date" json:"stop_date,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Event types of the execution history
const (
	EventExecutionStarted   = "ExecutionStarted"
	EventStateEntered       = "StateEntered"
	EventTaskFailed         = "TaskFailed"
	EventTaskRetry          = "TaskRetryScheduled"
	EventTaskSucceeded      = "TaskSucceeded"
	EventExecutionSucceeded = "ExecutionSucceeded"
	EventExecutionFailed    = "ExecutionFailed"
	EventExecutionTimedOut  = "ExecutionTimedOut"
	EventExecutionAborted   = "ExecutionAborted"
)

// Event is one entry of an execution history
type Event struct {
	ExecutionID string    `db:"execution_id" json:"-"`
	Sequence    int       `db:"sequence" json:"id"`
	Type        string    `db:"type" json:"type"`
	State       string    `db:"state" json:"state,omitempty"`
	Detail      string    `db:"detail" json:"detail,omitempty"`
	Timestamp   time.Time `db:"occurred_at" json:"timestamp"`
}

// ExecutionFilter selects executions for listing
type ExecutionFilter struct {
	StateMachine string
	Status       string
	PageSize     int
	Cursor       *database.Cursor
}
