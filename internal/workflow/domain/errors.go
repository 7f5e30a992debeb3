package domain

import (
	"encoding/json"
	"errors"
)

// Error names of the state language
const (
	ErrorAll         = "States.ALL"
	ErrorTaskFailed  = "States.TaskFailed"
	ErrorTimeout     = "States.Timeout"
	ErrorRuntime     = "States.Runtime"
	ErrorConcurrency = "Glue.ConcurrentRunsExceededException"
)

var (
	// ErrExecutionNotFound is returned when an execution cannot be found
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutorStopped is returned when starting an execution after shutdown
	ErrExecutorStopped = errors.New("executor stopped")
)

// TaskError is the error payload a failed task hands to retriers and catchers
type TaskError struct {
	Name  string `json:"Error"`
	Cause string `json:"Cause"`
}

func (e *TaskError) Error() string {
	if e.Cause == "" {
		return e.Name
	}
	return e.Name + ": " + e.Cause
}

// Payload is the JSON document a catcher passes to its next state
func (e *TaskError) Payload() json.RawMessage {
	b, _ := json.Marshal(e)
	return b
}

// AsTaskError converts any error into a TaskError; unknown errors are
// reported as States.TaskFailed.
func AsTaskError(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return &TaskError{Name: ErrorTaskFailed, Cause: err.Error()}
}
