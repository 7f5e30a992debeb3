// Package workflow declares the state machine that runs the transformation
// job and interprets it: retry, catch, failure notification and timeout.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// State types
const (
	TypeTask    = "Task"
	TypeSucceed = "Succeed"
	TypeFail    = "Fail"
)

// Task resources
const (
	ResourceJobRunSync = "arn:aws:states:::glue:startJobRun.sync"
	ResourcePublish    = "arn:aws:states:::sns:publish"
)

// State names of the pipeline
const (
	StateRunJob    = "RunTransformJob"
	StateNotify    = "NotifyFailure"
	StateSucceeded = "Succeeded"
	StateFailed    = "Failed"
)

// Retrier is a retry policy of a task state
type Retrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds"`
	MaxAttempts     int      `json:"MaxAttempts"`
	BackoffRate     float64  `json:"BackoffRate"`
}

// Interval is the wait before the first retry
func (r Retrier) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// Catcher routes a task error to a recovery state
type Catcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	ResultPath  string   `json:"ResultPath,omitempty"`
	Next        string   `json:"Next"`
}

// State is one node of the state machine
type State struct {
	Type       string         `json:"Type"`
	Comment    string         `json:"Comment,omitempty"`
	Resource   string         `json:"Resource,omitempty"`
	Parameters map[string]any `json:"Parameters,omitempty"`
	Retry      []Retrier      `json:"Retry,omitempty"`
	Catch      []Catcher      `json:"Catch,omitempty"`
	Next       string         `json:"Next,omitempty"`
	End        bool           `json:"End,omitempty"`
	Error      string         `json:"Error,omitempty"`
	Cause      string         `json:"Cause,omitempty"`
}

// Definition is the state machine document
type Definition struct {
	Name           string           `json:"-"`
	Comment        string           `json:"Comment,omitempty"`
	StartAt        string           `json:"StartAt"`
	TimeoutSeconds int              `json:"TimeoutSeconds,omitempty"`
	States         map[string]State `json:"States"`
}

// Params are the values the pipeline definition is built from
type Params struct {
	Name         string
	JobName      string
	JobArguments map[string]string
	Topic        string
	Subject      string
	Retry        Retrier
	Timeout      time.Duration
}

// NewDefinition builds the pipeline: run the job with retries; on success
// finish, on exhausted retries publish the error payload once and fail.
func NewDefinition(p Params) Definition {
	retry := p.Retry
	if len(retry.ErrorEquals) == 0 {
		retry.ErrorEquals = []string{domain.ErrorAll}
	}

	args := make(map[string]any, len(p.JobArguments))
	for k, v := range p.JobArguments {
		args[k] = v
	}

	return Definition{
		Name:           p.Name,
		Comment:        "Run the json-to-parquet job and notify on failure",
		StartAt:        StateRunJob,
		TimeoutSeconds: int(p.Timeout / time.Second),
		States: map[string]State{
			StateRunJob: {
				Type:     TypeTask,
				Resource: ResourceJobRunSync,
				Parameters: map[string]any{
					"JobName":   p.JobName,
					"Arguments": args,
				},
				Retry: []Retrier{retry},
				Catch: []Catcher{{
					ErrorEquals: []string{domain.ErrorAll},
					Next:        StateNotify,
				}},
				Next: StateSucceeded,
			},
			StateNotify: {
				Type:     TypeTask,
				Resource: ResourcePublish,
				Parameters: map[string]any{
					"TopicArn":  p.Topic,
					"Subject":   p.Subject,
					"Message.$": "$",
				},
				Catch: []Catcher{{
					ErrorEquals: []string{domain.ErrorAll},
					ResultPath:  "$.NotificationError",
					Next:        StateFailed,
				}},
				Next: StateFailed,
			},
			StateSucceeded: {Type: TypeSucceed},
			StateFailed: {
				Type:  TypeFail,
				Error: domain.ErrorTaskFailed,
				Cause: "transformation job failed",
			},
		},
	}
}

// Validate checks that every transition names a state and that each state
// can terminate the execution.
func (d Definition) Validate() error {
	if _, ok := d.States[d.StartAt]; !ok {
		return fmt.Errorf("start state %q is not defined", d.StartAt)
	}

	for name, st := range d.States {
		switch st.Type {
		case TypeTask:
			if st.Resource == "" {
				return fmt.Errorf("state %s: task without resource", name)
			}
			if st.Next == "" && !st.End {
				return fmt.Errorf("state %s: task needs Next or End", name)
			}
			if st.Next != "" {
				if _, ok := d.States[st.Next]; !ok {
					return fmt.Errorf("state %s: next state %q is not defined", name, st.Next)
				}
			}
			for _, c := range st.Catch {
				if _, ok := d.States[c.Next]; !ok {
					return fmt.Errorf("state %s: catch target %q is not defined", name, c.Next)
				}
			}
			for _, r := range st.Retry {
				if r.MaxAttempts < 0 || r.BackoffRate < 1.0 || r.IntervalSeconds < 1 {
					return fmt.Errorf("state %s: invalid retrier %+v", name, r)
				}
			}
		case TypeSucceed, TypeFail:
		default:
			return fmt.Errorf("state %s: unsupported type %q", name, st.Type)
		}
	}

	return nil
}

// MarshalASL renders the definition as a States Language document
func (d Definition) MarshalASL() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// ParseASL reads a States Language document
func ParseASL(name string, data []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return Definition{}, fmt.Errorf("failed to parse state machine definition: %w", err)
	}
	d.Name = name
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// matches reports whether errorName is selected by an ErrorEquals list
func matches(errorEquals []string, errorName string) bool {
	for _, e := range errorEquals {
		if e == domain.ErrorAll || e == errorName {
			return true
		}
	}
	return false
}
