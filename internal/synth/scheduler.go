package synth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/tts"
)

// DefaultConcurrency is the number of synthesis calls in flight per run.
const DefaultConcurrency = 6

const (
	audioStartPercent = 30
	audioSpanPercent  = 50
)

// Scheduler fans script lines out to a Synthesizer with bounded concurrency
// and returns the clips in script order.
type Scheduler struct {
	synth       tts.Synthesizer
	concurrency int
	log         *slog.Logger
}

// NewScheduler returns a Scheduler that runs at most concurrency
// synthesis calls at once. A non-positive concurrency means
// DefaultConcurrency.
func NewScheduler(s tts.Synthesizer, concurrency int, log *slog.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{synth: s, concurrency: concurrency, log: log}
}

// Run synthesizes every line into clipsDir. Failed lines are logged and
// skipped; the remaining clips keep their relative order. It returns
// podcast.ErrNoClips when nothing succeeded. notify may be nil.
func (s *Scheduler) Run(ctx context.Context, lines []podcast.ScriptLine, voices podcast.Voices, clipsDir string, notify podcast.Notify) ([]podcast.AudioClip, error) {
	if notify == nil {
		notify = func(string, int) {}
	}
	if err := os.MkdirAll(clipsDir, 0o750); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}
	s.log.Info("synthesizing clips",
		"count", len(lines),
		"concurrency", s.concurrency,
		"provider", s.synth.Name(),
		"host_a_voice", voices.VoiceFor(podcast.HostA),
		"host_b_voice", voices.VoiceFor(podcast.HostB),
	)

	n := len(lines)
	results := make([]*podcast.AudioClip, n)
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i := range lines {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			clip, err := s.one(ctx, idx, lines[idx], voices, clipsDir)
			if err != nil {
				s.log.Warn("clip failed", "clip", idx, "speaker", lines[idx].Speaker, "err", err)
			} else {
				results[idx] = clip
			}

			mu.Lock()
			done++
			d := done
			mu.Unlock()
			pct := audioStartPercent + int(math.Round(float64(d)/float64(n)*audioSpanPercent))
			notify(fmt.Sprintf("Generating audio clip %d/%d", d, n), pct)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clips := make([]podcast.AudioClip, 0, n)
	for _, c := range results {
		if c != nil {
			clips = append(clips, *c)
		}
	}
	if len(clips) == 0 {
		return nil, podcast.ErrNoClips
	}
	s.log.Info("clips generated", "ok", len(clips), "failed", n-len(clips))
	return clips, nil
}

func (s *Scheduler) one(ctx context.Context, idx int, line podcast.ScriptLine, voices podcast.Voices, clipsDir string) (*podcast.AudioClip, error) {
	voice := voices.VoiceFor(line.Speaker)
	audio, err := s.synth.Synthesize(ctx, tts.PrepareForSpeech(line.Text), voice)
	if err != nil {
		return nil, &podcast.ProviderError{Provider: s.synth.Name(), Err: err}
	}
	ext := audio.Ext
	if ext == "" {
		ext = "mp3"
	}
	path := filepath.Join(clipsDir, ClipName(idx, line.Speaker, ext))
	if err := os.WriteFile(path, audio.Data, 0o600); err != nil {
		return nil, fmt.Errorf("write clip: %w", err)
	}
	return &podcast.AudioClip{
		Speaker:  line.Speaker,
		Path:     path,
		Duration: tts.EstimateDuration(line.Text),
	}, nil
}

// ClipName is the on-disk name of the clip for script line idx.
func ClipName(idx int, speaker podcast.Speaker, ext string) string {
	return fmt.Sprintf("clip_%03d_%s.%s", idx, speaker, ext)
}
