package engine

import (
	"fmt"
	"sync"
)

// ResultStore maps step IDs to their terminal results for one run.
// Each key is written at most once.
type ResultStore struct {
	mu      sync.RWMutex
	results map[StepID]Result
}

// NewResultStore creates an empty store
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[StepID]Result),
	}
}

// Put records the result of a step. Recording the same step twice is a
// scheduling bug and fails with ErrResultExists.
func (s *ResultStore) Put(id StepID, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[id]; exists {
		return fmt.Errorf("%w: %s", ErrResultExists, id)
	}
	s.results[id] = result
	return nil
}

// Get returns the result of a step, if present
func (s *ResultStore) Get(id StepID) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	return r, ok
}

// AllPresent reports whether every id has a result, whatever its status
func (s *ResultStore) AllPresent(ids []StepID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		if _, ok := s.results[id]; !ok {
			return false
		}
	}
	return true
}

// AllSucceeded reports whether every id has a SUCCESS result
func (s *ResultStore) AllSucceeded(ids []StepID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		if r, ok := s.results[id]; !ok || r.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Len returns the number of recorded results
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// View returns a read-only view limited to the given step IDs
func (s *ResultStore) View(ids []StepID) Dependencies {
	declared := make(map[StepID]bool, len(ids))
	order := make([]StepID, len(ids))
	for i, id := range ids {
		declared[id] = true
		order[i] = id
	}
	return &storeView{store: s, declared: declared, order: order}
}

// Dependencies is the read-only access a step body has to its predecessors
type Dependencies interface {
	// Output returns the output of a declared predecessor
	Output(id StepID) (any, error)
	// Declared returns the declared predecessors in declaration order
	Declared() []StepID
}

type storeView struct {
	store    *ResultStore
	declared map[StepID]bool
	order    []StepID
}

func (v *storeView) Output(id StepID) (any, error) {
	if !v.declared[id] {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredDependency, id)
	}

	r, ok := v.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultMissing, id)
	}
	if r.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: %s: %v", ErrStepFailed, id, r.Err)
	}
	return r.Output, nil
}

func (v *storeView) Declared() []StepID {
	out := make([]StepID, len(v.order))
	copy(out, v.order)
	return out
}

// OutputAs reads a predecessor output and asserts its type
func OutputAs[T any](deps Dependencies, id StepID) (T, error) {
	var zero T

	out, err := deps.Output(id)
	if err != nil {
		return zero, err
	}

	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s produced %T, want %T", ErrOutputType, id, out, zero)
	}
	return typed, nil
}
