package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for tests and for single-process tools that only need records
// for the lifetime of the process. MemStore is thread-safe.
type MemStore struct {
	mu     sync.RWMutex
	plans  map[string]map[string]Execution // planID -> path -> execution
	closed bool
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		plans: make(map[string]map[string]Execution),
	}
}

// SaveExecution stores exec, replacing any earlier record for the same path.
func (m *MemStore) SaveExecution(_ context.Context, planID string, exec Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, _, err := exec.unixNanos(); err != nil {
		return err
	}
	m.put(planID, exec)
	return nil
}

// SaveExecutions stores every record of execs under one lock acquisition.
func (m *MemStore) SaveExecutions(_ context.Context, planID string, execs []Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, exec := range execs {
		if _, _, err := exec.unixNanos(); err != nil {
			return err
		}
	}
	for _, exec := range execs {
		m.put(planID, exec)
	}
	return nil
}

func (m *MemStore) put(planID string, exec Execution) {
	byPath, ok := m.plans[planID]
	if !ok {
		byPath = make(map[string]Execution)
		m.plans[planID] = byPath
	}
	byPath[exec.Path] = exec
}

// LoadExecutions returns the executions of planID ordered by start, then path.
func (m *MemStore) LoadExecutions(_ context.Context, planID string) ([]Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	byPath := m.plans[planID]
	if len(byPath) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Execution, 0, len(byPath))
	for _, exec := range byPath {
		out = append(out, exec)
	}
	slices.SortFunc(out, compareExecutions)
	return out, nil
}

// Close drops all records.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.plans = nil
	return nil
}

func compareExecutions(a, b Execution) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.Path, b.Path)
}
