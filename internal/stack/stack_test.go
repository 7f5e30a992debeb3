package stack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/config"
	"github.com/cuongbtq/glue-pipeline/internal/schedule"
	"github.com/cuongbtq/glue-pipeline/internal/workflow"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Deployment = config.DeploymentConfig{Account: "909372601881", Region: "us-east-1", Environment: "dev"}
	cfg.Job.Database = "travel"
	cfg.Job.Table = "complaints"
	cfg.Job.OutputPath = "s3://puneetsd-scratch-bucket/obfconsole-data/complaints-pq/"
	cfg.Notification.Backend = "sns"
	cfg.Notification.Topic = "arn:aws:sns:us-east-1:909372601881:demos-all-dev-useast1-notify-puneetsd"
	return cfg
}

func TestRender(t *testing.T) {
	docs, err := Render(testConfig())
	require.NoError(t, err)
	assert.Len(t, docs, 5)

	var job map[string]any
	require.NoError(t, json.Unmarshal(docs[JobFile], &job))
	assert.Equal(t, "json-to-pq-909372601881-us-east-1-dev", job["Name"])
	assert.Equal(t, "arn:aws:glue:us-east-1:909372601881:job/json-to-pq-909372601881-us-east-1-dev", job["Arn"])
	assert.Equal(t, float64(60), job["Timeout"])
	assert.Equal(t, float64(1), job["MaxConcurrentRuns"])
	assert.Equal(t, "travel", job["DefaultArguments"].(map[string]any)["--dbname"])

	def, err := workflow.ParseASL("stf", docs[StateMachineFile])
	require.NoError(t, err)
	assert.Equal(t, 7200, def.TimeoutSeconds)
	assert.Equal(t, workflow.StateRunJob, def.StartAt)
	retry := def.States[workflow.StateRunJob].Retry
	require.Len(t, retry, 1)
	assert.Equal(t, 3, retry[0].MaxAttempts)
	assert.Equal(t, 10, retry[0].IntervalSeconds)
	assert.Equal(t, 1.0, retry[0].BackoffRate)

	var rule schedule.Rule
	require.NoError(t, json.Unmarshal(docs[ScheduleFile], &rule))
	assert.Equal(t, "stf-hourly-rule-909372601881-us-east-1-dev", rule.Name)
	assert.Equal(t, "cron(20 * * * ? *)", rule.ScheduleExpression)
	assert.Equal(t, schedule.RuleEnabled, rule.State)
	require.Len(t, rule.Targets, 1)
	assert.Equal(t, "arn:aws:states:us-east-1:909372601881:stateMachine:stf-glue-json-to-pq-909372601881-us-east-1-dev", rule.Targets[0].Arn)
	assert.Equal(t, "arn:aws:iam::909372601881:role/step-function-role-909372601881-us-east-1-dev", rule.Targets[0].RoleArn)

	var note Notification
	require.NoError(t, json.Unmarshal(docs[NotificationFile], &note))
	assert.Equal(t, "Glue Job Status", note.Subject)
	assert.Equal(t, "arn:aws:sns:us-east-1:909372601881:demos-all-dev-useast1-notify-puneetsd", note.TopicArn)
}

func TestRender_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.Expression = "cron(20 * * * ? 2030)"

	_, err := Render(cfg)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := Write(dir, map[string][]byte{
		"b.json": []byte(`{}`),
		"a.json": []byte(`[]`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
