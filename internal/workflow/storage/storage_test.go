package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
	"github.com/cuongbtq/glue-pipeline/shared/database"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
)

type executionStore interface {
	CreateExecution(ctx context.Context, exec *domain.Execution) error
	UpdateExecution(ctx context.Context, exec *domain.Execution) error
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.Execution, error)
	AppendEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, executionID string) ([]*domain.Event, error)
}

func stores(t *testing.T) map[string]executionStore {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "executions.db"),
	}, logger.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Migrate(context.Background(), Schema...))

	return map[string]executionStore{
		"sqlite": NewStorage(client.GetDB(), logger.NewDiscard()),
		"memory": NewMemoryStorage(),
	}
}

func newExecution(id string, start time.Time) *domain.Execution {
	return &domain.Execution{
		ExecutionID:  id,
		Name:         id,
		StateMachine: "stf-glue-json-to-pq-dev",
		Status:       domain.StatusRunning,
		CurrentState: "RunTransformJob",
		Input:        `{}`,
		StartDate:    start,
		UpdatedAt:    start,
	}
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			exec := newExecution("ex-1", now)
			require.NoError(t, store.CreateExecution(ctx, exec))

			exec.Status = domain.StatusFailed
			exec.CurrentState = "Failed"
			exec.Attempts = 4
			exec.RetryCount = 3
			exec.Error = "States.TaskFailed"
			exec.Cause = `{"JobRunState":"FAILED"}`
			exec.Notified = true
			stop := now.Add(time.Minute)
			exec.StopDate = &stop
			require.NoError(t, store.UpdateExecution(ctx, exec))

			got, err := store.GetExecution(ctx, "ex-1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusFailed, got.Status)
			assert.Equal(t, 4, got.Attempts)
			assert.Equal(t, 3, got.RetryCount)
			assert.True(t, got.Notified)
			assert.Equal(t, `{"JobRunState":"FAILED"}`, got.Cause)
			require.NotNil(t, got.StopDate)
			assert.True(t, stop.Equal(*got.StopDate))

			_, err = store.GetExecution(ctx, "missing")
			assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
			assert.ErrorIs(t, store.UpdateExecution(ctx, newExecution("missing", now)), domain.ErrExecutionNotFound)
		})
	}
}

func TestStore_Events(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.CreateExecution(ctx, newExecution("ex-1", time.Now().UTC())))

			for _, typ := range []string{domain.EventExecutionStarted, domain.EventStateEntered, domain.EventExecutionSucceeded} {
				require.NoError(t, store.AppendEvent(ctx, &domain.Event{
					ExecutionID: "ex-1",
					Type:        typ,
					Timestamp:   time.Now().UTC(),
				}))
			}

			events, err := store.ListEvents(ctx, "ex-1")
			require.NoError(t, err)
			require.Len(t, events, 3)
			for i, ev := range events {
				assert.Equal(t, i+1, ev.Sequence)
			}
			assert.Equal(t, domain.EventExecutionSucceeded, events[2].Type)

			none, err := store.ListEvents(ctx, "ex-2")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_ListExecutions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			for i, id := range []string{"ex-1", "ex-2", "ex-3"} {
				exec := newExecution(id, base.Add(time.Duration(i)*time.Second))
				if id == "ex-2" {
					exec.Status = domain.StatusSucceeded
				}
				require.NoError(t, store.CreateExecution(ctx, exec))
			}

			page, err := store.ListExecutions(ctx, domain.ExecutionFilter{PageSize: 1})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "ex-3", page[0].ExecutionID)

			rest, err := store.ListExecutions(ctx, domain.ExecutionFilter{
				PageSize: 10,
				Cursor:   &database.Cursor{At: page[0].StartDate, ID: page[0].ExecutionID},
			})
			require.NoError(t, err)
			require.Len(t, rest, 2)
			assert.Equal(t, "ex-2", rest[0].ExecutionID)
			assert.Equal(t, "ex-1", rest[1].ExecutionID)

			ok, err := store.ListExecutions(ctx, domain.ExecutionFilter{Status: domain.StatusSucceeded, PageSize: 10})
			require.NoError(t, err)
			require.Len(t, ok, 1)
			assert.Equal(t, "ex-2", ok[0].ExecutionID)
		})
	}
}
