package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/jobs"
	"github.com/jo-hoe/podify/internal/pipeline"
	"github.com/jo-hoe/podify/internal/podcast"
)

// Generator runs one episode. Implemented by pipeline.Orchestrator.
type Generator interface {
	GenerateEpisode(ctx context.Context, cfg podcast.PodcastConfig, outputDir string, onProgress pipeline.ProgressFunc) (*podcast.Result, error)
}

// Worker implements jobs.Processor by running the pipeline and mirroring its
// progress into the job store.
type Worker struct {
	Log       *slog.Logger
	Store     jobs.Store
	Gen       Generator
	OutputDir string
	Retries   int
	Backoff   time.Duration
	HTTP      *http.Client
}

// Ensure Worker implements jobs.Processor
var _ jobs.Processor = (*Worker)(nil)

func New(log *slog.Logger, cfg *config.Config, store jobs.Store, gen Generator) *Worker {
	return &Worker{
		Log:       log,
		Store:     store,
		Gen:       gen,
		OutputDir: cfg.Feed.OutputDir,
		Retries:   cfg.Server.CallbackRetries,
		Backoff:   cfg.Server.CallbackBackoff,
		HTTP:      http.DefaultClient,
	}
}

func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) error {
	res, err := w.Run(ctx, item.JobID, item.Config)
	if item.CallbackURL != "" {
		if cbErr := w.sendCallbackWithRetry(ctx, item.CallbackURL, newCallbackPayload(item.JobID, res, err)); cbErr != nil {
			w.Log.Warn("callback failed after retries", "job_id", item.JobID, "err", cbErr)
		}
	}
	return err
}

// Run generates the episode for jobID and leaves the job in a terminal
// status: complete with the result, or error with the failure text.
func (w *Worker) Run(ctx context.Context, jobID string, cfg podcast.PodcastConfig) (*podcast.Result, error) {
	t := &tracker{store: w.Store, id: jobID, log: w.Log.With("job_id", jobID)}
	if err := w.Store.Update(ctx, jobID, jobs.Patch{
		Status:  jobs.Ptr(jobs.StatusProcessing),
		Message: jobs.Ptr("Starting generation..."),
	}); err != nil {
		return nil, fmt.Errorf("mark job processing: %w", err)
	}

	res, err := w.Gen.GenerateEpisode(ctx, cfg, w.OutputDir, t.observe)
	if err != nil {
		t.finish(ctx, jobs.Patch{
			Status:  jobs.Ptr(jobs.StatusError),
			Message: jobs.Ptr("Generation failed"),
			Error:   jobs.Ptr(err.Error()),
		})
		return nil, err
	}
	t.finish(ctx, jobs.Patch{
		Status:   jobs.Ptr(jobs.StatusComplete),
		Progress: jobs.Ptr(100),
		Stage:    jobs.Ptr(podcast.StageComplete),
		Message:  jobs.Ptr("Episode complete!"),
		Result:   res,
	})
	return res, nil
}

// tracker serializes progress writes for one job. Neither progress nor stage
// moves backwards, and nothing is written after the terminal update. Late
// intra-stage events can arrive after the next boundary.
type tracker struct {
	mu    sync.Mutex
	store jobs.Store
	id    string
	log   *slog.Logger
	last  int
	stage podcast.Stage
	done  bool
}

func (t *tracker) observe(ctx context.Context, ev podcast.ProgressEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || ev.Percent < t.last || ev.Stage.Order() < t.stage.Order() {
		return nil
	}
	t.last, t.stage = ev.Percent, ev.Stage
	return t.store.Update(ctx, t.id, jobs.Patch{
		Status:   jobs.Ptr(jobs.StatusProcessing),
		Progress: jobs.Ptr(ev.Percent),
		Stage:    jobs.Ptr(ev.Stage),
		Message:  jobs.Ptr(ev.Message),
	})
}

func (t *tracker) finish(ctx context.Context, p jobs.Patch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	// The run may have been cancelled; the terminal write must still land.
	if err := t.store.Update(context.WithoutCancel(ctx), t.id, p); err != nil {
		t.log.Error("saving terminal job state failed", "err", err)
	}
}

type callbackPayload struct {
	JobID  string          `json:"jobId"`
	Status string          `json:"status"` // complete|error
	Error  *string         `json:"error,omitempty"`
	Result *podcast.Result `json:"result,omitempty"`
}

func newCallbackPayload(jobID string, res *podcast.Result, err error) callbackPayload {
	p := callbackPayload{JobID: jobID, Status: string(jobs.StatusComplete), Result: res}
	if err != nil {
		msg := err.Error()
		p.Status = string(jobs.StatusError)
		p.Error = &msg
		p.Result = nil
	}
	return p
}

func (w *Worker) sendCallbackWithRetry(ctx context.Context, url string, payload callbackPayload) error {
	max := w.Retries
	if max <= 0 {
		max = 3
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if err := w.postJSON(ctx, url, payload); err != nil {
			lastErr = err
			if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			if attempt < max {
				select {
				case <-ctx.Done():
					return err
				case <-time.After(time.Duration(attempt) * backoff):
				}
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (w *Worker) postJSON(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)

	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}
