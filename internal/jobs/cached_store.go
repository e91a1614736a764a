package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CachedStore fronts a durable Store with an in-process cache. The cache is
// authoritative when it holds a job; the durable store is consulted on a miss
// and receives every write, so several processes sharing one durable backend
// see each other's jobs.
type CachedStore struct {
	cache   *MemoryStore
	durable Store
	log     *slog.Logger
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore fronts durable with an in-memory cache. log may be nil.
func NewCachedStore(durable Store, capacity Capacity, log *slog.Logger) *CachedStore {
	return &CachedStore{
		cache:   NewMemoryStore(capacity),
		durable: durable,
		log:     log,
	}
}

func (s *CachedStore) Create(ctx context.Context) (*Job, error) {
	job, err := s.durable.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.cache.put(job)
	return cloneJob(job), nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Job, bool) {
	if job, ok := s.cache.Get(ctx, id); ok {
		return job, true
	}
	job, ok := s.durable.Get(ctx, id)
	if !ok {
		return nil, false
	}
	s.cache.put(job)
	return job, true
}

func (s *CachedStore) Update(ctx context.Context, id string, p Patch) error {
	cacheErr := s.cache.Update(ctx, id, p)
	err := s.durable.Update(ctx, id, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound) && cacheErr == nil:
		// Known locally only; the durable copy was lost or never written.
		if s.log != nil {
			s.log.Warn("job missing from durable store", "job_id", id)
		}
		return nil
	default:
		return fmt.Errorf("update job: %w", err)
	}
}

// IsAtCapacity asks the durable store, which sees jobs from every process.
func (s *CachedStore) IsAtCapacity(ctx context.Context) (bool, error) {
	return s.durable.IsAtCapacity(ctx)
}

func (s *CachedStore) Close() error {
	return s.durable.Close()
}
