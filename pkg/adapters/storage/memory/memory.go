package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

type entry struct {
	record    *domain.RunRecord
	expiresAt time.Time
}

// InMemoryRunArchive implements RunArchive with an in-memory map
type InMemoryRunArchive struct {
	runs map[string]entry
	ttl  time.Duration
	now  func() time.Time
	mu   sync.RWMutex
}

// NewInMemoryRunArchive creates an archive whose records expire after ttl.
// A zero ttl keeps records until they are deleted.
func NewInMemoryRunArchive(ttl time.Duration) *InMemoryRunArchive {
	return &InMemoryRunArchive{
		runs: make(map[string]entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// SaveRun stores a copy of the record, replacing any previous version
func (s *InMemoryRunArchive) SaveRun(ctx context.Context, record *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{record: record.Clone()}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.runs[record.RunID] = e
	s.purgeLocked()
	return nil
}

// GetRun returns a copy of a stored record
func (s *InMemoryRunArchive) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[runID]
	if !ok || s.expired(e) {
		return nil, ports.ErrRunNotFound
	}
	return e.record.Clone(), nil
}

// ListRuns returns up to limit records, newest submission first
func (s *InMemoryRunArchive) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.RunRecord, 0, len(s.runs))
	for _, e := range s.runs {
		if !s.expired(e) {
			records = append(records, e.record.Clone())
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DeleteRun removes a record
func (s *InMemoryRunArchive) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}

func (s *InMemoryRunArchive) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func (s *InMemoryRunArchive) purgeLocked() {
	for id, e := range s.runs {
		if s.expired(e) {
			delete(s.runs, id)
		}
	}
}
