package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
)

// MemoryStorage keeps job runs in process memory. It has the same semantics
// as Storage and is used by tests and single-process runs.
type MemoryStorage struct {
	mu   sync.Mutex
	runs map[string]*domain.JobRun
	now  func() time.Time
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs: make(map[string]*domain.JobRun),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func clone(run *domain.JobRun) *domain.JobRun {
	c := *run
	if run.Arguments != nil {
		c.Arguments = make(domain.Arguments, len(run.Arguments))
		for k, v := range run.Arguments {
			c.Arguments[k] = v
		}
	}
	return &c
}

func active(state string) bool {
	return state == domain.RunStateStarting || state == domain.RunStateRunning
}

func (m *MemoryStorage) CreateRun(_ context.Context, run *domain.JobRun, maxConcurrent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.runs {
		if r.JobName == run.JobName && active(r.State) {
			count++
		}
	}
	if count >= maxConcurrent {
		return domain.ErrConcurrentRunsExceeded
	}
	if _, ok := m.runs[run.RunID]; ok {
		return fmt.Errorf("failed to create job run: duplicate run id %s", run.RunID)
	}

	now := m.now()
	run.State = domain.RunStateStarting
	run.StartedOn = now
	run.LastModifiedOn = now
	m.runs[run.RunID] = clone(run)

	return nil
}

func (m *MemoryStorage) GetRun(_ context.Context, runID string) (*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return clone(run), nil
}

func (m *MemoryStorage) ListRuns(_ context.Context, filter domain.RunFilter) ([]*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []*domain.JobRun
	for _, r := range m.runs {
		if filter.JobName != "" && r.JobName != filter.JobName {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if c := filter.Cursor; c != nil {
			if r.StartedOn.After(c.At) || (r.StartedOn.Equal(c.At) && r.RunID >= c.ID) {
				continue
			}
		}
		runs = append(runs, clone(r))
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedOn.Equal(runs[j].StartedOn) {
			return runs[i].StartedOn.After(runs[j].StartedOn)
		}
		return runs[i].RunID > runs[j].RunID
	})

	if limit := filter.PageSize + 1; len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MemoryStorage) ClaimRun(_ context.Context, runID, workerID string) (*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok || run.State != domain.RunStateStarting {
		return nil, domain.ErrRunAlreadyClaimed
	}

	now := m.now()
	run.State = domain.RunStateRunning
	run.WorkerID = workerID
	run.LastHeartbeatOn = &now
	run.LastModifiedOn = now
	return clone(run), nil
}

func (m *MemoryStorage) CompleteRun(_ context.Context, runID, state, result, errorMessage string) error {
	if !domain.IsTerminal(state) {
		return fmt.Errorf("cannot complete job run with non-terminal state %s", state)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if !active(run.State) {
		return domain.ErrRunNotActive
	}

	now := m.now()
	run.State = state
	run.Result = result
	run.ErrorMessage = errorMessage
	run.CompletedOn = &now
	run.LastModifiedOn = now
	run.ExecutionTime = int(now.Sub(run.StartedOn).Seconds())
	return nil
}

func (m *MemoryStorage) Heartbeat(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run, ok := m.runs[runID]; ok && run.State == domain.RunStateRunning {
		now := m.now()
		run.LastHeartbeatOn = &now
		run.LastModifiedOn = now
	}
	return nil
}

func (m *MemoryStorage) ExpireRuns(_ context.Context, jobName string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.now()
	for _, run := range m.runs {
		if run.JobName == jobName && active(run.State) && run.StartedOn.Before(cutoff) {
			run.State = domain.RunStateTimeout
			run.ErrorMessage = "job run exceeded its timeout"
			run.CompletedOn = &now
			run.LastModifiedOn = now
			n++
		}
	}
	return n, nil
}
