package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// timeoutNotifyLimit bounds the notification sent after an execution timed out
const timeoutNotifyLimit = 30 * time.Second

// Store persists executions and their history
type Store interface {
	CreateExecution(ctx context.Context, exec *domain.Execution) error
	UpdateExecution(ctx context.Context, exec *domain.Execution) error
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.Execution, error)
	AppendEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, executionID string) ([]*domain.Event, error)
}

// Options tune the executor
type Options struct {
	// NotifyOnTimeout runs NotifyState once when an execution times out
	NotifyOnTimeout bool
	// NotifyState is the state run on timeout; defaults to NotifyFailure
	NotifyState string
	// NewTimer supplies retry timers; nil uses real timers
	NewTimer func() backoff.Timer
}

// Executor interprets a Definition
type Executor struct {
	ctx        context.Context
	definition Definition
	tasks      map[string]Task
	store      Store
	opts       Options
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewExecutor validates the definition and checks that every task resource
// has an implementation. Executions started with Start live until ctx is done.
func NewExecutor(ctx context.Context, def Definition, tasks map[string]Task, store Store, opts Options, logger *slog.Logger) (*Executor, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state machine %s: %w", def.Name, err)
	}

	for name, st := range def.States {
		if st.Type == TypeTask {
			if _, ok := tasks[st.Resource]; !ok {
				return nil, fmt.Errorf("state %s: no task registered for %s", name, st.Resource)
			}
		}
	}

	if opts.NotifyState == "" {
		opts.NotifyState = StateNotify
	}
	if opts.NotifyOnTimeout {
		if st, ok := def.States[opts.NotifyState]; !ok || st.Type != TypeTask {
			return nil, fmt.Errorf("notify state %q is not a task", opts.NotifyState)
		}
	}

	return &Executor{
		ctx:        ctx,
		definition: def,
		tasks:      tasks,
		store:      store,
		opts:       opts,
		logger:     logger.With(slog.String("state_machine", def.Name)),
	}, nil
}

// Definition returns the interpreted state machine
func (e *Executor) Definition() Definition {
	return e.definition
}

func (e *Executor) newExecution(ctx context.Context, name string, input json.RawMessage) (*domain.Execution, error) {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if !json.Valid(input) {
		return nil, fmt.Errorf("execution input is not valid JSON")
	}

	id := uuid.NewString()
	if name == "" {
		name = id
	}

	now := time.Now().UTC()
	exec := &domain.Execution{
		ExecutionID:  id,
		Name:         name,
		StateMachine: e.definition.Name,
		Status:       domain.StatusRunning,
		CurrentState: e.definition.StartAt,
		Input:        string(input),
		StartDate:    now,
		UpdatedAt:    now,
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.event(ctx, exec, domain.EventExecutionStarted, "", exec.Input)

	e.logger.Info("Execution started",
		slog.String("execution_id", exec.ExecutionID),
		slog.String("name", exec.Name),
	)

	return exec, nil
}

// Start records an execution and runs it in the background.
func (e *Executor) Start(ctx context.Context, name string, input json.RawMessage) (*domain.Execution, error) {
	if e.ctx.Err() != nil {
		return nil, domain.ErrExecutorStopped
	}

	exec, err := e.newExecution(ctx, name, input)
	if err != nil {
		return nil, err
	}

	snapshot := *exec

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(e.ctx, exec)
	}()

	return &snapshot, nil
}

// Run records an execution and runs it to completion.
func (e *Executor) Run(ctx context.Context, name string, input json.RawMessage) (*domain.Execution, error) {
	exec, err := e.newExecution(ctx, name, input)
	if err != nil {
		return nil, err
	}

	e.run(ctx, exec)
	return exec, nil
}

// Wait blocks until every execution started with Start has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) run(parent context.Context, exec *domain.Execution) {
	ctx := parent
	if e.definition.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, time.Duration(e.definition.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	stateName := e.definition.StartAt
	data := json.RawMessage(exec.Input)

	for {
		st := e.definition.States[stateName]

		exec.CurrentState = stateName
		e.save(ctx, exec)
		e.event(ctx, exec, domain.EventStateEntered, stateName, "")

		switch st.Type {
		case TypeSucceed:
			exec.Output = string(data)
			e.finish(ctx, exec, domain.StatusSucceeded)
			return

		case TypeFail:
			exec.Error = st.Error
			if exec.Cause == "" {
				exec.Cause = st.Cause
			}
			e.finish(ctx, exec, domain.StatusFailed)
			return

		case TypeTask:
			out, err := e.runTask(ctx, exec, stateName, st, data)
			if err == nil {
				data = out
				if st.End {
					exec.Output = string(data)
					e.finish(ctx, exec, domain.StatusSucceeded)
					return
				}
				stateName = st.Next
				continue
			}

			if ctx.Err() != nil {
				e.interrupted(ctx, parent, exec, data)
				return
			}

			te := domain.AsTaskError(err)
			catcher, ok := catcherFor(st.Catch, te.Name)
			if !ok {
				exec.Error, exec.Cause = te.Name, te.Cause
				e.finish(ctx, exec, domain.StatusFailed)
				return
			}

			if exec.Error == "" {
				exec.Error, exec.Cause = te.Name, te.Cause
			}
			data = applyResultPath(data, te.Payload(), catcher.ResultPath)
			stateName = catcher.Next
		}
	}
}

// runTask invokes a task state, retrying per its retriers.
func (e *Executor) runTask(ctx context.Context, exec *domain.Execution, name string, st State, input json.RawMessage) (json.RawMessage, error) {
	task := e.tasks[st.Resource]
	logger := e.logger.With(
		slog.String("execution_id", exec.ExecutionID),
		slog.String("state", name),
	)

	params, err := resolveParameters(st.Parameters, input)
	if err != nil {
		return nil, &domain.TaskError{Name: domain.ErrorRuntime, Cause: err.Error()}
	}

	policy := newRetryPolicy(st.Retry)
	attempt := 0
	var out json.RawMessage

	op := func() error {
		attempt++
		if len(st.Retry) > 0 {
			exec.Attempts++
		}

		var err error
		out, err = task.Run(ctx, params)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		te := domain.AsTaskError(err)
		e.event(ctx, exec, domain.EventTaskFailed, name, te.Error())
		logger.Warn("Task failed",
			slog.Int("attempt", attempt),
			slog.String("error", te.Name),
			slog.String("cause", truncate(te.Cause, 512)),
		)

		if !policy.selectFor(te.Name) {
			return backoff.Permanent(te)
		}
		return te
	}

	notify := func(err error, wait time.Duration) {
		exec.RetryCount++
		e.save(ctx, exec)
		e.event(ctx, exec, domain.EventTaskRetry, name, fmt.Sprintf("retry %d in %s", exec.RetryCount, wait))
		logger.Info("Retrying task",
			slog.Int("retry", exec.RetryCount),
			slog.Duration("retry_after", wait),
		)
	}

	var timer backoff.Timer
	if e.opts.NewTimer != nil {
		timer = e.opts.NewTimer()
	}

	err = backoff.RetryNotifyWithTimer(op, backoff.WithContext(policy, ctx), notify, timer)

	if st.Resource == ResourcePublish {
		if err != nil {
			exec.NotificationError = domain.AsTaskError(err).Error()
		} else {
			exec.Notified = true
		}
	}

	if err != nil {
		return nil, err
	}

	e.event(ctx, exec, domain.EventTaskSucceeded, name, truncate(string(out), 1024))
	return out, nil
}

// interrupted ends an execution whose context finished while a task ran:
// TIMED_OUT when the execution deadline passed, ABORTED when the caller
// went away.
func (e *Executor) interrupted(ctx, parent context.Context, exec *domain.Execution, data json.RawMessage) {
	if parent.Err() != nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		exec.Error = domain.StatusAborted
		exec.Cause = "execution aborted"
		e.finish(ctx, exec, domain.StatusAborted)
		return
	}

	te := &domain.TaskError{
		Name:  domain.ErrorTimeout,
		Cause: fmt.Sprintf("execution timed out after %d seconds in state %s", e.definition.TimeoutSeconds, exec.CurrentState),
	}
	exec.Error, exec.Cause = te.Name, te.Cause

	// a failure notification goes out at most once; the deadline may have
	// passed while NotifyState was already publishing
	attempted := exec.Notified || exec.NotificationError != "" || exec.CurrentState == e.opts.NotifyState

	if e.opts.NotifyOnTimeout && !attempted {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeoutNotifyLimit)
		defer cancel()

		st := e.definition.States[e.opts.NotifyState]
		exec.CurrentState = e.opts.NotifyState
		e.event(notifyCtx, exec, domain.EventStateEntered, e.opts.NotifyState, "")

		// not retried, outcome recorded on the execution
		st.Retry = nil
		_, _ = e.runTask(notifyCtx, exec, e.opts.NotifyState, st, te.Payload())
	}

	e.finish(ctx, exec, domain.StatusTimedOut)
}

func (e *Executor) finish(ctx context.Context, exec *domain.Execution, status string) {
	now := time.Now().UTC()
	exec.Status = status
	exec.StopDate = &now
	e.save(ctx, exec)

	logger := e.logger.With(
		slog.String("execution_id", exec.ExecutionID),
		slog.String("status", status),
		slog.Int("attempts", exec.Attempts),
		slog.Int("retries", exec.RetryCount),
		slog.Bool("notified", exec.Notified),
	)

	switch status {
	case domain.StatusSucceeded:
		e.event(ctx, exec, domain.EventExecutionSucceeded, exec.CurrentState, "")
		logger.Info("Execution succeeded")
	case domain.StatusTimedOut:
		e.event(ctx, exec, domain.EventExecutionTimedOut, exec.CurrentState, exec.Cause)
		logger.Error("Execution timed out", slog.String("notification_error", exec.NotificationError))
	case domain.StatusAborted:
		e.event(ctx, exec, domain.EventExecutionAborted, exec.CurrentState, "")
		logger.Warn("Execution aborted")
	default:
		e.event(ctx, exec, domain.EventExecutionFailed, exec.CurrentState, exec.Error)
		logger.Error("Execution failed",
			slog.String("error", exec.Error),
			slog.String("notification_error", exec.NotificationError),
		)
	}
}

// save persists the execution. Store writes outlive the execution context
// so that timed out and aborted executions are still recorded.
func (e *Executor) save(ctx context.Context, exec *domain.Execution) {
	exec.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateExecution(context.WithoutCancel(ctx), exec); err != nil {
		e.logger.Error("Failed to save execution",
			slog.String("execution_id", exec.ExecutionID),
			slog.Any("error", err),
		)
	}
}

func (e *Executor) event(ctx context.Context, exec *domain.Execution, typ, state, detail string) {
	ev := &domain.Event{
		ExecutionID: exec.ExecutionID,
		Type:        typ,
		State:       state,
		Detail:      detail,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.store.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Error("Failed to record execution event",
			slog.String("execution_id", exec.ExecutionID),
			slog.String("type", typ),
			slog.Any("error", err),
		)
	}
}

func catcherFor(catchers []Catcher, errorName string) (Catcher, bool) {
	for _, c := range catchers {
		if matches(c.ErrorEquals, errorName) {
			return c, true
		}
	}
	return Catcher{}, false
}

// retryPolicy keeps one backoff per retrier; the retrier matching the most
// recent error decides the next wait.
type retryPolicy struct {
	retriers []Retrier
	backoffs []backoff.BackOff
	current  int
}

func newRetryPolicy(retriers []Retrier) *retryPolicy {
	p := &retryPolicy{retriers: retriers, current: -1}
	for _, r := range retriers {
		p.backoffs = append(p.backoffs, RetryBackOff(r))
	}
	return p
}

func (p *retryPolicy) selectFor(errorName string) bool {
	p.current = -1
	for i, r := range p.retriers {
		if matches(r.ErrorEquals, errorName) {
			p.current = i
			return true
		}
	}
	return false
}

func (p *retryPolicy) NextBackOff() time.Duration {
	if p.current < 0 {
		return backoff.Stop
	}
	return p.backoffs[p.current].NextBackOff()
}

func (p *retryPolicy) Reset() {
	p.current = -1
	for _, b := range p.backoffs {
		b.Reset()
	}
}

// RetryBackOff waits Interval before the first retry and multiplies the wait
// by BackoffRate after each one, for at most MaxAttempts retries.
func RetryBackOff(r Retrier) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Interval()
	b.Multiplier = r.BackoffRate
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithMaxRetries(b, uint64(r.MaxAttempts))
}

// resolveParameters replaces "key.$": "$" entries with the state input.
// Only the whole-input path is supported.
func resolveParameters(params map[string]any, input json.RawMessage) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if !strings.HasSuffix(k, ".$") {
			out[k] = v
			continue
		}

		path, _ := v.(string)
		if path != "$" {
			return nil, fmt.Errorf("unsupported path %q for parameter %s", path, k)
		}

		var decoded any
		if err := json.Unmarshal(input, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode state input: %w", err)
		}
		out[strings.TrimSuffix(k, ".$")] = decoded
	}
	return out, nil
}

// applyResultPath places result into input. An empty path or "$" replaces
// the input; "$.Field" sets a top level field of an object input.
func applyResultPath(input, result json.RawMessage, path string) json.RawMessage {
	if path == "" || path == "$" {
		return result
	}

	field := strings.TrimPrefix(path, "$.")
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(input, &obj); err != nil {
		obj = map[string]json.RawMessage{}
	}
	obj[field] = result

	b, err := json.Marshal(obj)
	if err != nil {
		return result
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
