package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/glue-pipeline/shared/database"
)

// Job run states
const (
	RunStateStarting  = "STARTING"
	RunStateRunning   = "RUNNING"
	RunStateSucceeded = "SUCCEEDED"
	RunStateFailed    = "FAILED"
	RunStateTimeout   = "TIMEOUT"
	RunStateStopped   = "STOPPED"
)

// IsTerminal reports whether a run in state will not change again.
func IsTerminal(state string) bool {
	switch state {
	case RunStateSucceeded, RunStateFailed, RunStateTimeout, RunStateStopped:
		return true
	}
	return false
}

// Arguments are the named string arguments of a run, keyed with their
// leading dashes ("--dbname").
type Arguments map[string]string

// Value implements driver.Valuer
func (a Arguments) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *Arguments) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Arguments", src)
	}
	return json.Unmarshal(data, a)
}

// JobRun is one execution of a job
type JobRun struct {
	RunID           string     `db:"run_id" json:"Id"`
	JobName         string     `db:"job_name" json:"JobName"`
	State           string     `db:"state" json:"JobRunState"`
	Arguments       Arguments  `db:"arguments" json:"Arguments"`
	WorkerID        string     `db:"worker_id" json:"WorkerId,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"ErrorMessage,omitempty"`
	Result          string     `db:"result" json:"Result,omitempty"`
	TimeoutSeconds  int        `db:"timeout_seconds" json:"Timeout"`
	NumberOfWorkers int        `db:"number_of_workers" json:"NumberOfWorkers"`
	WorkerType      string     `db:"worker_type" json:"WorkerType"`
	StartedOn       time.Time  `db:"started_on" json:"StartedOn"`
	LastModifiedOn  time.Time  `db:"last_modified_on" json:"LastModifiedOn"`
	CompletedOn     *time.Time `db:"completed_on" json:"CompletedOn,omitempty"`
	LastHeartbeatOn *time.Time `db:"last_heartbeat_on" json:"-"`
	ExecutionTime   int        `db:"execution_time" json:"ExecutionTime"`
}

// RunFilter selects runs for listing
type RunFilter struct {
	JobName  string
	State    string
	PageSize int
	Cursor   *database.Cursor
}

// RunMessage is the broker message asking a worker to execute a run
type RunMessage struct {
	RunID       string `json:"run_id"`
	JobName     string `json:"job_name"`
	DeliveryTag uint64 `json:"-"`
}

const runIDPrefix = "jr_"

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return runIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateRunID checks the identifier format
func ValidateRunID(id string) error {
	if !strings.HasPrefix(id, runIDPrefix) {
		return fmt.Errorf("invalid run id %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, runIDPrefix)); err != nil {
		return fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return nil
}
