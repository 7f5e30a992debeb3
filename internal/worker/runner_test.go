package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/job"
	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/job/storage"
	"github.com/cuongbtq/glue-pipeline/internal/transform"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
)

type fakeScript struct {
	err     error
	block   bool
	started chan struct{}
	opts    []transform.Options
}

func (s *fakeScript) Run(ctx context.Context, opts transform.Options) (*transform.Summary, error) {
	s.opts = append(s.opts, opts)
	if s.started != nil {
		close(s.started)
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &transform.Summary{RowsRead: 2, RowsWritten: 2, Output: opts.OutputPath + "/part-x.snappy.parquet"}, nil
}

func validArguments() domain.Arguments {
	return domain.Arguments{
		job.ArgJobName:    "json-to-pq-dev",
		job.ArgDatabase:   "travel",
		job.ArgTable:      "complaints",
		job.ArgOutputPath: "s3://bucket/output",
	}
}

func createRun(t *testing.T, store *storage.MemoryStorage, args domain.Arguments, timeoutSeconds int) string {
	t.Helper()

	run := &domain.JobRun{
		RunID:          domain.NewRunID(),
		JobName:        "json-to-pq-dev",
		Arguments:      args,
		TimeoutSeconds: timeoutSeconds,
	}
	require.NoError(t, store.CreateRun(context.Background(), run, 10))
	return run.RunID
}

func newRunner(store RunStore, script Script) *Runner {
	return NewRunner(&RunnerConfig{
		Logger:            logger.NewDiscard(),
		Store:             store,
		Script:            script,
		WorkerID:          "worker-1",
		JobTimeout:        time.Hour,
		HeartbeatInterval: 5 * time.Millisecond,
	})
}

func TestRunner_ExecuteRun(t *testing.T) {
	tests := []struct {
		name      string
		script    *fakeScript
		args      domain.Arguments
		timeout   int
		wantState string
		wantError string
	}{
		{
			name:      "succeeds",
			script:    &fakeScript{},
			args:      validArguments(),
			wantState: domain.RunStateSucceeded,
		},
		{
			name:      "script fails",
			script:    &fakeScript{err: errors.New("source table is empty")},
			args:      validArguments(),
			wantState: domain.RunStateFailed,
			wantError: "source table is empty",
		},
		{
			name:      "times out",
			script:    &fakeScript{block: true},
			args:      validArguments(),
			timeout:   1,
			wantState: domain.RunStateTimeout,
			wantError: "exceeded its timeout",
		},
		{
			name:      "missing arguments",
			script:    &fakeScript{},
			args:      domain.Arguments{job.ArgDatabase: "travel"},
			wantState: domain.RunStateFailed,
			wantError: "--outputpath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStorage()
			runID := createRun(t, store, tt.args, tt.timeout)

			require.NoError(t, newRunner(store, tt.script).ExecuteRun(ctx, runID))

			run, err := store.GetRun(ctx, runID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, run.State)
			assert.Equal(t, "worker-1", run.WorkerID)
			require.NotNil(t, run.CompletedOn)

			if tt.wantError != "" {
				assert.Contains(t, run.ErrorMessage, tt.wantError)
				return
			}

			var summary transform.Summary
			require.NoError(t, json.Unmarshal([]byte(run.Result), &summary))
			assert.Equal(t, 2, summary.RowsWritten)

			require.Len(t, tt.script.opts, 1)
			assert.Equal(t, transform.Options{
				JobName:    "json-to-pq-dev",
				RunID:      runID,
				Database:   "travel",
				Table:      "complaints",
				OutputPath: "s3://bucket/output",
			}, tt.script.opts[0])
		})
	}
}

func TestRunner_AlreadyClaimed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	runID := createRun(t, store, validArguments(), 0)
	runner := newRunner(store, &fakeScript{})

	require.NoError(t, runner.ExecuteRun(ctx, runID))

	err := runner.ExecuteRun(ctx, runID)
	assert.ErrorIs(t, err, domain.ErrRunAlreadyClaimed)
	assert.False(t, shouldRequeue(err))
}

func TestRunner_UnknownRun(t *testing.T) {
	err := newRunner(storage.NewMemoryStorage(), &fakeScript{}).ExecuteRun(context.Background(), domain.NewRunID())
	require.Error(t, err)
}

func TestRunner_StoppedRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	runID := createRun(t, store, validArguments(), 0)
	script := &fakeScript{block: true, started: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- newRunner(store, script).ExecuteRun(ctx, runID) }()

	<-script.started
	require.NoError(t, store.CompleteRun(ctx, runID, domain.RunStateStopped, "", "job run stopped"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stopped run kept executing")
	}

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateStopped, run.State)
}

func TestOptions_DefaultsJobName(t *testing.T) {
	args := validArguments()
	delete(args, job.ArgJobName)

	opts, err := Options(&domain.JobRun{RunID: "jr_1", JobName: "fallback", Arguments: args})
	require.NoError(t, err)
	assert.Equal(t, "fallback", opts.JobName)

	_, err = Options(&domain.JobRun{Arguments: domain.Arguments{}})
	assert.ErrorIs(t, err, domain.ErrInvalidArguments)
}
