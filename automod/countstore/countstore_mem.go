package countstore

import (
	"context"
	"sync"
	"time"
)

// In-process counters. Safe for concurrent use.
type MemCountStore struct {
	mu     sync.Mutex
	counts map[string]int
	// overridable in tests
	now func() time.Time
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts: make(map[string]int),
		now:    time.Now,
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[bucketKey(name, val, period, s.now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, p := range AllPeriods {
		s.counts[bucketKey(name, val, p, now)]++
	}
	return nil
}

func (s *MemCountStore) IncrementPeriod(ctx context.Context, name, val, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[bucketKey(name, val, period, s.now())]++
	return nil
}
