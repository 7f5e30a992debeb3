package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

func testParams() Params {
	return Params{
		Name:    "stf-glue-json-to-pq-909372601881-us-east-1-dev",
		JobName: "json-to-pq-909372601881-us-east-1-dev",
		JobArguments: map[string]string{
			"--dbname": "complaints",
		},
		Topic:   "arn:aws:sns:us-east-1:909372601881:glue-notifications",
		Subject: "Glue Job Status",
		Retry:   Retrier{IntervalSeconds: 10, MaxAttempts: 3, BackoffRate: 1.0},
		Timeout: 2 * time.Hour,
	}
}

func TestNewDefinition(t *testing.T) {
	def := NewDefinition(testParams())

	require.NoError(t, def.Validate())
	assert.Equal(t, StateRunJob, def.StartAt)
	assert.Equal(t, 7200, def.TimeoutSeconds)

	run := def.States[StateRunJob]
	assert.Equal(t, ResourceJobRunSync, run.Resource)
	assert.Equal(t, StateSucceeded, run.Next)
	require.Len(t, run.Retry, 1)
	assert.Equal(t, []string{domain.ErrorAll}, run.Retry[0].ErrorEquals)
	assert.Equal(t, 3, run.Retry[0].MaxAttempts)
	assert.Equal(t, 10*time.Second, run.Retry[0].Interval())
	require.Len(t, run.Catch, 1)
	assert.Equal(t, StateNotify, run.Catch[0].Next)

	notify := def.States[StateNotify]
	assert.Equal(t, ResourcePublish, notify.Resource)
	assert.Equal(t, "Glue Job Status", notify.Parameters["Subject"])
	assert.Equal(t, "$", notify.Parameters["Message.$"])
	assert.Equal(t, StateFailed, notify.Next)
	assert.Empty(t, notify.Retry)

	assert.Equal(t, TypeSucceed, def.States[StateSucceeded].Type)
	assert.Equal(t, TypeFail, def.States[StateFailed].Type)
}

func TestDefinition_ASLRoundTrip(t *testing.T) {
	def := NewDefinition(testParams())

	data, err := def.MarshalASL()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, StateRunJob, doc["StartAt"])
	assert.NotContains(t, doc, "Name")

	parsed, err := ParseASL(def.Name, data)
	require.NoError(t, err)
	assert.Equal(t, def.Name, parsed.Name)
	assert.Equal(t, def.States[StateRunJob].Retry, parsed.States[StateRunJob].Retry)
	assert.Equal(t, def.States[StateNotify].Catch, parsed.States[StateNotify].Catch)
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(d *Definition)
		errMsg string
	}{
		{
			name:   "unknown start state",
			modify: func(d *Definition) { d.StartAt = "Nope" },
			errMsg: "start state",
		},
		{
			name: "dangling next",
			modify: func(d *Definition) {
				st := d.States[StateRunJob]
				st.Next = "Nope"
				d.States[StateRunJob] = st
			},
			errMsg: "next state",
		},
		{
			name: "dangling catch",
			modify: func(d *Definition) {
				st := d.States[StateRunJob]
				st.Catch = []Catcher{{ErrorEquals: []string{domain.ErrorAll}, Next: "Nope"}}
				d.States[StateRunJob] = st
			},
			errMsg: "catch target",
		},
		{
			name: "backoff rate below one",
			modify: func(d *Definition) {
				st := d.States[StateRunJob]
				st.Retry = []Retrier{{ErrorEquals: []string{domain.ErrorAll}, IntervalSeconds: 10, MaxAttempts: 3, BackoffRate: 0.5}}
				d.States[StateRunJob] = st
			},
			errMsg: "invalid retrier",
		},
		{
			name: "task without resource",
			modify: func(d *Definition) {
				st := d.States[StateNotify]
				st.Resource = ""
				d.States[StateNotify] = st
			},
			errMsg: "without resource",
		},
		{
			name: "unsupported type",
			modify: func(d *Definition) {
				d.States["Wait"] = State{Type: "Wait"}
			},
			errMsg: "unsupported type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := NewDefinition(testParams())
			tt.modify(&def)

			err := def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseASL_Invalid(t *testing.T) {
	_, err := ParseASL("x", []byte(`{"StartAt":`))
	assert.Error(t, err)

	_, err = ParseASL("x", []byte(`{"StartAt":"A","States":{}}`))
	assert.Error(t, err)
}

func TestRetryBackOff(t *testing.T) {
	tests := []struct {
		name    string
		retrier Retrier
		want    []time.Duration
	}{
		{
			name:    "constant interval",
			retrier: Retrier{IntervalSeconds: 10, MaxAttempts: 3, BackoffRate: 1.0},
			want:    []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second},
		},
		{
			name:    "doubling interval",
			retrier: Retrier{IntervalSeconds: 2, MaxAttempts: 4, BackoffRate: 2.0},
			want:    []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		},
		{
			name:    "no retries",
			retrier: Retrier{IntervalSeconds: 10, MaxAttempts: 0, BackoffRate: 1.0},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := RetryBackOff(tt.retrier)

			var got []time.Duration
			for {
				next := b.NextBackOff()
				if next < 0 {
					break
				}
				got = append(got, next)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
