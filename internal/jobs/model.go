package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Active reports whether a job in this status counts toward admission.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Job describes one episode generation request.
type Job struct {
	ID        string                 `json:"id"`
	Status    Status                 `json:"status"`
	Progress  int                    `json:"progress"`
	Stage     podcast.Stage          `json:"stage,omitempty"` // empty until the first stage starts
	Message   string                 `json:"message"`
	CreatedAt time.Time              `json:"createdAt"`
	Config    *podcast.PodcastConfig `json:"config,omitempty"`
	Result    *podcast.Result        `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Patch is a partial update. Nil fields leave the stored value unchanged.
type Patch struct {
	Status   *Status
	Progress *int
	Stage    *podcast.Stage
	Message  *string
	Config   *podcast.PodcastConfig
	Result   *podcast.Result
	Error    *string
}

// Apply merges p into j.
func (p Patch) Apply(j *Job) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.Stage != nil {
		j.Stage = *p.Stage
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.Config != nil {
		c := *p.Config
		j.Config = &c
	}
	if p.Result != nil {
		r := *p.Result
		j.Result = &r
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }

// ErrNotFound is returned by Update for unknown ids.
var ErrNotFound = errors.New("job not found")

// Capacity is the admission rule: at most Limit active jobs, where a job stops
// counting once it is older than StaleAfter even if it never reached a
// terminal status.
type Capacity struct {
	Limit      int
	StaleAfter time.Duration
}

// DefaultCapacity allows three concurrent jobs with a five minute staleness window.
var DefaultCapacity = Capacity{Limit: 3, StaleAfter: 5 * time.Minute}

// counts reports whether j is active for admission purposes at now.
func (c Capacity) counts(j *Job, now time.Time) bool {
	return j.Status.Active() && now.Sub(j.CreatedAt) < c.StaleAfter
}

// Store persists jobs and answers admission queries.
//
// Concurrent updates to the same id are last-writer-wins; callers must not
// issue overlapping updates for one job.
type Store interface {
	Create(ctx context.Context) (*Job, error)
	// Get returns a copy of the job. Backend failures are reported as not found.
	Get(ctx context.Context, id string) (*Job, bool)
	Update(ctx context.Context, id string, p Patch) error
	// IsAtCapacity is advisory: check it again immediately before starting work.
	IsAtCapacity(ctx context.Context) (bool, error)
	Close() error
}

func newJob(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    StatusPending,
		Progress:  0,
		Message:   "Queued",
		CreatedAt: now.UTC(),
	}
}

func cloneJob(j *Job) *Job {
	c := *j
	if j.Config != nil {
		cfg := *j.Config
		c.Config = &cfg
	}
	if j.Result != nil {
		r := *j.Result
		r.Transcript = append([]podcast.ScriptLine(nil), j.Result.Transcript...)
		c.Result = &r
	}
	return &c
}
