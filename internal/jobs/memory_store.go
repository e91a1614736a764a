package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/jo-hoe/podify/internal/util"
)

// MemoryStore keeps jobs in process memory. It is the cache layer of
// CachedStore and the whole store for single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	capacity Capacity
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store that admits jobs up to capacity.
func NewMemoryStore(capacity Capacity) *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*Job),
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (*Job, error) {
	job := newJob(util.NewID(), s.now())
	s.put(job)
	return cloneJob(job), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(j), true
}

func (s *MemoryStore) Update(ctx context.Context, id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	p.Apply(j)
	return nil
}

func (s *MemoryStore) IsAtCapacity(ctx context.Context) (bool, error) {
	return s.ActiveCount() >= s.capacity.Limit, nil
}

// ActiveCount returns the number of jobs counting toward admission.
func (s *MemoryStore) ActiveCount() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if s.capacity.counts(j, now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Close() error { return nil }

// put stores a copy of job, replacing any existing record.
func (s *MemoryStore) put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}
