package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		wantSpec string
		wantErr  bool
	}{
		{name: "wrapped hourly", expr: "cron(20 * * * ? *)", wantSpec: "20 * * * ?"},
		{name: "bare hourly", expr: "20 * * * ? *", wantSpec: "20 * * * ?"},
		{name: "weekdays", expr: "cron(0 8 ? * 2-6 *)", wantSpec: "0 8 ? * 1-5"},
		{name: "named days", expr: "cron(0 8 ? * MON,FRI *)", wantSpec: "0 8 ? * MON,FRI"},
		{name: "rate hours", expr: "rate(2 hours)", wantSpec: "@every 2h0m0s"},
		{name: "rate minute", expr: "rate(1 minute)", wantSpec: "@every 1m0s"},
		{name: "year pinned", expr: "cron(20 * * * ? 2026)", wantErr: true},
		{name: "five fields", expr: "20 * * * ?", wantErr: true},
		{name: "both days set", expr: "cron(0 8 1 * 2 *)", wantErr: true},
		{name: "day out of range", expr: "cron(0 8 ? * 8 *)", wantErr: true},
		{name: "bad minute", expr: "cron(61 * * * ? *)", wantErr: true},
		{name: "rate plural mismatch", expr: "rate(1 hours)", wantErr: true},
		{name: "rate unit", expr: "rate(3 weeks)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSpec, expr.Spec)
		})
	}
}

func TestExpression_NextHourlyAtTwenty(t *testing.T) {
	expr, err := ParseExpression("cron(20 * * * ? *)")
	require.NoError(t, err)

	from := time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC)
	next := expr.Next(from)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 20, 0, 0, time.UTC), next)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 20, 0, 0, time.UTC), expr.Next(next))
}

type fakeStarter struct {
	mu    sync.Mutex
	err   error
	names []string
	input []json.RawMessage
}

func (f *fakeStarter) Start(_ context.Context, name string, input json.RawMessage) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.names = append(f.names, name)
	f.input = append(f.input, input)
	return &domain.Execution{ExecutionID: "ex-1", Name: name}, nil
}

func TestScheduler_Fire(t *testing.T) {
	expr, err := ParseExpression("cron(20 * * * ? *)")
	require.NoError(t, err)

	starter := &fakeStarter{}
	s, err := New("glue-json-to-pq-dev", expr, starter, logger.NewDiscard())
	require.NoError(t, err)

	s.Fire()

	require.Len(t, starter.names, 1)
	assert.Contains(t, starter.names[0], "glue-json-to-pq-dev-")

	var ev Event
	require.NoError(t, json.Unmarshal(starter.input[0], &ev))
	assert.Equal(t, "schedule", ev.Source)
	assert.Equal(t, "glue-json-to-pq-dev", ev.Rule)
}

func TestScheduler_FireStartError(t *testing.T) {
	expr, err := ParseExpression("rate(1 hour)")
	require.NoError(t, err)

	s, err := New("rule", expr, &fakeStarter{err: errors.New("stopped")}, logger.NewDiscard())
	require.NoError(t, err)

	assert.NotPanics(t, s.Fire)
}

func TestScheduler_StartStop(t *testing.T) {
	expr, err := ParseExpression("rate(1 minute)")
	require.NoError(t, err)

	s, err := New("rule", expr, &fakeStarter{}, logger.NewDiscard())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestNewRule(t *testing.T) {
	expr, err := ParseExpression("cron(20 * * * ? *)")
	require.NoError(t, err)

	rule := NewRule("glue-json-to-pq-dev", expr, true, "arn:aws:states:us-east-1:1:stateMachine:x", "arn:aws:iam::1:role/r")
	assert.Equal(t, "cron(20 * * * ? *)", rule.ScheduleExpression)
	assert.Equal(t, RuleEnabled, rule.State)
	require.Len(t, rule.Targets, 1)
	assert.Equal(t, "arn:aws:states:us-east-1:1:stateMachine:x", rule.Targets[0].Arn)

	disabled := NewRule("r", expr, false, "arn", "")
	assert.Equal(t, RuleDisabled, disabled.State)
}
