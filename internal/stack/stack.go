// Package stack renders the deployable documents of the pipeline: resource
// names, the job, the state machine, the schedule rule and the notification
// target.
package stack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuongbtq/glue-pipeline/internal/bootstrap"
	"github.com/cuongbtq/glue-pipeline/internal/config"
	"github.com/cuongbtq/glue-pipeline/internal/job"
	"github.com/cuongbtq/glue-pipeline/internal/naming"
	"github.com/cuongbtq/glue-pipeline/internal/schedule"
)

// Document file names
const (
	NamesFile        = "names.json"
	JobFile          = "job.json"
	StateMachineFile = "state-machine.asl.json"
	ScheduleFile     = "schedule-rule.json"
	NotificationFile = "notification.json"
)

// JobDocument is the job resource with its timeout in minutes
type JobDocument struct {
	job.Definition
	Timeout int `json:"Timeout"`
}

// Notification is the sink failures are published to
type Notification struct {
	Backend    string `json:"Backend"`
	TopicArn   string `json:"TopicArn"`
	Subject    string `json:"Subject"`
	RoutingKey string `json:"RoutingKey,omitempty"`
}

// StateMachineArn is the handle the schedule rule targets
func StateMachineArn(cfg *config.Config, names naming.Names) string {
	return fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s",
		cfg.Deployment.Region, cfg.Deployment.Account, names.StateMachine)
}

// RoleArn is the handle of an IAM role in the deployment account
func RoleArn(cfg *config.Config, role string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", cfg.Deployment.Account, role)
}

// Render builds every document keyed by file name
func Render(cfg *config.Config) (map[string][]byte, error) {
	names := bootstrap.Names(cfg)

	definition := bootstrap.WorkflowDefinition(cfg, names)
	if err := definition.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state machine: %w", err)
	}
	asl, err := definition.MarshalASL()
	if err != nil {
		return nil, fmt.Errorf("failed to render state machine: %w", err)
	}

	expression, err := schedule.ParseExpression(cfg.Schedule.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	jobDef := job.NewDefinition(cfg, names)

	docs := map[string]any{
		NamesFile: names,
		JobFile:   JobDocument{Definition: jobDef, Timeout: jobDef.TimeoutMinutes()},
		ScheduleFile: schedule.NewRule(names.ScheduleRule, expression, cfg.Schedule.Enabled,
			StateMachineArn(cfg, names), RoleArn(cfg, names.WorkflowRole)),
		NotificationFile: Notification{
			Backend:    cfg.Notification.Backend,
			TopicArn:   cfg.Notification.Topic,
			Subject:    cfg.Notification.Subject,
			RoutingKey: cfg.Notification.RoutingKey,
		},
	}

	out := map[string][]byte{StateMachineFile: asl}
	for file, doc := range docs {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", file, err)
		}
		out[file] = data
	}

	return out, nil
}

// Write stores the documents under dir and returns the written paths sorted
func Write(dir string, docs map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(docs))
	for file, data := range docs {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths, nil
}
