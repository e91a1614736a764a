package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/podify/internal/podcast"
)

// ProgressFunc observes a run. Boundary events are awaited and an error
// aborts the run; intra-stage events are fire-and-forget and their errors are
// discarded.
type ProgressFunc func(ctx context.Context, ev podcast.ProgressEvent) error

// Reporter delivers progress events to an optional ProgressFunc.
type Reporter struct {
	fn  ProgressFunc
	log *slog.Logger
}

// NewReporter wraps fn, which may be nil.
func NewReporter(fn ProgressFunc, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reporter{fn: fn, log: log}
}

// Boundary delivers ev and returns once the observer has returned. An
// observer error or panic is returned so the caller can abort the run.
func (r *Reporter) Boundary(ctx context.Context, ev podcast.ProgressEvent) error {
	if r.fn == nil {
		return nil
	}
	if err := r.call(ctx, ev); err != nil {
		return fmt.Errorf("deliver %s progress: %w", ev.Stage, err)
	}
	return nil
}

// Notify delivers ev in the background.
func (r *Reporter) Notify(ctx context.Context, ev podcast.ProgressEvent) {
	if r.fn == nil {
		return
	}
	go func() {
		if err := r.call(ctx, ev); err != nil {
			r.log.Debug("progress notification dropped", "stage", ev.Stage, "percent", ev.Percent, "err", err)
		}
	}()
}

// Stage returns a podcast.Notify that tags intra-stage events with stage.
func (r *Reporter) Stage(ctx context.Context, stage podcast.Stage) podcast.Notify {
	return func(message string, percent int) {
		r.Notify(ctx, podcast.ProgressEvent{Stage: stage, Message: message, Percent: percent})
	}
}

func (r *Reporter) call(ctx context.Context, ev podcast.ProgressEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("progress observer panic: %v", rec)
		}
	}()
	return r.fn(ctx, ev)
}
