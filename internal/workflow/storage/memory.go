package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
)

// MemoryStorage keeps executions in process memory
type MemoryStorage struct {
	mu     sync.RWMutex
	execs  map[string]*domain.Execution
	events map[string][]*domain.Event
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		execs:  make(map[string]*domain.Execution),
		events: make(map[string][]*domain.Event),
	}
}

func copyExecution(exec *domain.Execution) *domain.Execution {
	c := *exec
	if exec.StopDate != nil {
		t := *exec.StopDate
		c.StopDate = &t
	}
	return &c
}

func (m *MemoryStorage) CreateExecution(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.execs[exec.ExecutionID] = copyExecution(exec)
	return nil
}

func (m *MemoryStorage) UpdateExecution(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.execs[exec.ExecutionID]; !ok {
		return domain.ErrExecutionNotFound
	}
	m.execs[exec.ExecutionID] = copyExecution(exec)
	return nil
}

func (m *MemoryStorage) GetExecution(_ context.Context, executionID string) (*domain.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.execs[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return copyExecution(exec), nil
}

func (m *MemoryStorage) ListExecutions(_ context.Context, filter domain.ExecutionFilter) ([]*domain.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Execution
	for _, e := range m.execs {
		if filter.StateMachine != "" && e.StateMachine != filter.StateMachine {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil {
			if e.StartDate.After(c.At) || (e.StartDate.Equal(c.At) && e.ExecutionID >= c.ID) {
				continue
			}
		}
		out = append(out, copyExecution(e))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ExecutionID > out[j].ExecutionID
	})

	if limit := filter.PageSize + 1; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) AppendEvent(_ context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := *event
	ev.Sequence = len(m.events[event.ExecutionID]) + 1
	event.Sequence = ev.Sequence
	m.events[event.ExecutionID] = append(m.events[event.ExecutionID], &ev)
	return nil
}

func (m *MemoryStorage) ListEvents(_ context.Context, executionID string) ([]*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Event, len(m.events[executionID]))
	for i, ev := range m.events[executionID] {
		c := *ev
		out[i] = &c
	}
	return out, nil
}
