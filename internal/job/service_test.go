package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/job/storage"
	"github.com/cuongbtq/glue-pipeline/shared/logger"
	"github.com/cuongbtq/glue-pipeline/shared/rabbitmq"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	runs []*domain.JobRun
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, run *domain.JobRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, run)
	return d.err
}

func TestService_StartJobRun(t *testing.T) {
	ctx := context.Background()
	def := testDefinition()
	store := storage.NewMemoryStorage()
	dispatcher := &recordingDispatcher{}
	svc := NewService(def, store, dispatcher, logger.NewDiscard())

	runID, err := svc.StartJobRun(ctx, def.Name, nil)
	require.NoError(t, err)
	require.NoError(t, domain.ValidateRunID(runID))

	run, err := svc.GetJobRun(ctx, def.Name, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateStarting, run.State)
	assert.Equal(t, "travel", run.Arguments[ArgDatabase])
	assert.Equal(t, "complaints", run.Arguments[ArgTable])
	assert.Equal(t, def.Name, run.Arguments[ArgJobName])
	assert.Equal(t, 3600, run.TimeoutSeconds)

	require.Len(t, dispatcher.runs, 1)
	assert.Equal(t, runID, dispatcher.runs[0].RunID)

	_, err = svc.StartJobRun(ctx, def.Name, nil)
	assert.ErrorIs(t, err, domain.ErrConcurrentRunsExceeded)
	assert.Len(t, dispatcher.runs, 1, "a rejected run is never dispatched")

	require.NoError(t, svc.StopJobRun(ctx, def.Name, runID))
	_, err = svc.StartJobRun(ctx, def.Name, nil)
	assert.NoError(t, err)
}

func TestService_UnknownJob(t *testing.T) {
	svc := NewService(testDefinition(), storage.NewMemoryStorage(), &recordingDispatcher{}, logger.NewDiscard())

	_, err := svc.StartJobRun(context.Background(), "other-job", nil)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = svc.GetJobRun(context.Background(), "other-job", "jr_1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestService_DispatchFailureReleasesSlot(t *testing.T) {
	ctx := context.Background()
	def := testDefinition()
	store := storage.NewMemoryStorage()
	dispatcher := &recordingDispatcher{err: errors.New("broker down")}
	svc := NewService(def, store, dispatcher, logger.NewDiscard())

	_, err := svc.StartJobRun(ctx, def.Name, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	runs, err := svc.ListJobRuns(ctx, domain.RunFilter{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStateFailed, runs[0].State)

	dispatcher.err = nil
	_, err = svc.StartJobRun(ctx, def.Name, nil)
	assert.NoError(t, err)
}

type fakePublisher struct {
	msgs []rabbitmq.Message
	err  error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, msg rabbitmq.Message) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestRabbitMQDispatcher(t *testing.T) {
	publisher := &fakePublisher{}
	d := NewRabbitMQDispatcher(publisher, "job.runs", logger.NewDiscard())

	require.NoError(t, d.Dispatch(context.Background(), &domain.JobRun{RunID: "jr_1", JobName: "json-to-pq-dev"}))
	require.Len(t, publisher.msgs, 1)
	assert.Equal(t, "job.runs", publisher.msgs[0].RoutingKey)
	assert.Equal(t, "application/json", publisher.msgs[0].ContentType)
	assert.JSONEq(t, `{"run_id":"jr_1","job_name":"json-to-pq-dev"}`, string(publisher.msgs[0].Body))

	publisher.err = errors.New("closed")
	assert.Error(t, d.Dispatch(context.Background(), &domain.JobRun{RunID: "jr_2"}))
}

type fakeExecutor struct {
	mu  sync.Mutex
	ids []string
}

func (e *fakeExecutor) ExecuteRun(_ context.Context, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, runID)
	return nil
}

func TestLocalDispatcher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := &fakeExecutor{}
	d := NewLocalDispatcher(ctx, executor, logger.NewDiscard())

	require.NoError(t, d.Dispatch(context.Background(), &domain.JobRun{RunID: "jr_1"}))
	require.NoError(t, d.Dispatch(context.Background(), &domain.JobRun{RunID: "jr_2"}))
	d.Wait()
	assert.ElementsMatch(t, []string{"jr_1", "jr_2"}, executor.ids)

	cancel()
	assert.Error(t, d.Dispatch(context.Background(), &domain.JobRun{RunID: "jr_3"}))
}
