package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/podcast"
)

// WorkItem is one background generation run. CallbackURL, when set,
// receives the terminal job state as JSON.
type WorkItem struct {
	JobID       string
	Config      podcast.PodcastConfig
	CallbackURL string
	Cleanup     func() error
}

// Processor runs a WorkItem to completion.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Failure is published on the queue's error channel for every item whose
// processing returned an error or panicked.
type Failure struct {
	JobID string
	Err   error
}

var (
	ErrQueueFull       = errors.New("queue is full")
	ErrQueueNotStarted = errors.New("queue not started")
)

// Queue is an in-memory bounded queue for WorkItems with a worker pool.
// It decouples generation runs from the request that submitted them.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	failures   chan Failure
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	closed     bool
	mu         sync.Mutex
}

// NewQueue creates a new Queue with the given capacity and worker count.
func NewQueue(logger *slog.Logger, capacity int, workers int) *Queue {
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:      logger,
		ch:       make(chan WorkItem, capacity),
		failures: make(chan Failure, capacity),
		workers:  workers,
	}
}

// Failures returns the error channel. Sends never block; failures arriving
// while the channel is full are logged and dropped.
func (q *Queue) Failures() <-chan Failure {
	return q.failures
}

// Start launches worker goroutines that consume WorkItems and process them using the provided Processor.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case item, ok := <-q.ch:
			if !ok {
				log.Debug("queue closed, worker exiting")
				return
			}
			jobLog := log.With("job_id", item.JobID)
			jobLog.Info("processing job", "title", item.Config.Title)
			start := time.Now()
			if err := q.run(ctx, p, item); err != nil {
				jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
				q.publish(Failure{JobID: item.JobID, Err: err})
			} else {
				jobLog.Info("job processed", "duration", time.Since(start))
			}
			// Ensure cleanup is attempted regardless of outcome.
			if item.Cleanup != nil {
				if err := item.Cleanup(); err != nil {
					jobLog.Warn("cleanup failed", "err", err)
				}
			}
		}
	}
}

// run shields the worker goroutine from a panicking processor.
func (q *Queue) run(ctx context.Context, p Processor, item WorkItem) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processor panic: %v", rec)
		}
	}()
	return p.Process(ctx, item)
}

func (q *Queue) publish(f Failure) {
	select {
	case q.failures <- f:
	default:
		q.log.Warn("failure channel full, dropping", "job_id", f.JobID, "err", f.Err)
	}
}

// Enqueue adds a WorkItem to the queue without blocking.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.closed {
		return ErrQueueNotStarted
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown gracefully stops accepting work and waits for workers to finish current items up to the provided deadline.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		// close channel to unblock workers if they are waiting on receive
		close(q.ch)
		q.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline > 0 {
			timer := time.NewTimer(deadline)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				q.log.Warn("queue shutdown deadline reached; cancelling running jobs")
			}
		} else {
			<-done
		}
		if q.cancel != nil {
			q.cancel()
		}
	})
}
