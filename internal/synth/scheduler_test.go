package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/tts"
)

// fakeSynth records concurrency and can fail on chosen texts.
type fakeSynth struct {
	inFlight int32
	maxSeen  int32
	failOn   map[string]bool
	jitter   bool

	mu     sync.Mutex
	voices map[string]string
}

func (f *fakeSynth) Name() string { return "fake" }
func (f *fakeSynth) Ready() error { return nil }

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxSeen, prev, cur) {
			break
		}
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	} else {
		time.Sleep(5 * time.Millisecond)
	}
	f.mu.Lock()
	if f.voices == nil {
		f.voices = map[string]string{}
	}
	f.voices[text] = voice
	f.mu.Unlock()
	if f.failOn[text] {
		return tts.Audio{}, errors.New("synthesis failed")
	}
	return tts.Audio{Data: []byte(text), Ext: "wav"}, nil
}

func script(n int) []podcast.ScriptLine {
	lines := make([]podcast.ScriptLine, n)
	for i := range lines {
		sp := podcast.HostA
		if i%2 == 1 {
			sp = podcast.HostB
		}
		lines[i] = podcast.ScriptLine{Speaker: sp, Text: fmt.Sprintf("line %d", i)}
	}
	return lines
}

var voices = podcast.Voices{
	HostA: podcast.Voice{ID: "af_heart", Name: "Luna"},
	HostB: &podcast.Voice{ID: "am_michael", Name: "Sol"},
}

func TestRun_PreservesOrderAndBoundsConcurrency(t *testing.T) {
	fs := &fakeSynth{jitter: true}
	s := NewScheduler(fs, 6, nil)
	dir := filepath.Join(t.TempDir(), "clips")

	clips, err := s.Run(context.Background(), script(20), voices, dir, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(clips) != 20 {
		t.Fatalf("expected 20 clips, got %d", len(clips))
	}
	for i, c := range clips {
		want := filepath.Join(dir, ClipName(i, c.Speaker, "wav"))
		if c.Path != want {
			t.Fatalf("clip %d out of order: %s", i, c.Path)
		}
	}
	if m := atomic.LoadInt32(&fs.maxSeen); m > 6 {
		t.Fatalf("unexpected max in-flight %d", m)
	}
}

func TestRun_SkipsFailedSegments(t *testing.T) {
	fs := &fakeSynth{failOn: map[string]bool{"line 2": true}}
	s := NewScheduler(fs, 6, nil)
	clips, err := s.Run(context.Background(), script(5), voices, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips, got %d", len(clips))
	}
	for _, c := range clips {
		if strings.Contains(c.Path, "clip_002_") {
			t.Fatalf("failed clip present: %s", c.Path)
		}
	}
	if !strings.Contains(clips[2].Path, "clip_003_") {
		t.Fatalf("relative order lost: %s", clips[2].Path)
	}
}

func TestRun_AllFailIsNoClips(t *testing.T) {
	fs := &fakeSynth{failOn: map[string]bool{"line 0": true, "line 1": true}}
	s := NewScheduler(fs, 2, nil)
	if _, err := s.Run(context.Background(), script(2), voices, t.TempDir(), nil); !errors.Is(err, podcast.ErrNoClips) {
		t.Fatalf("expected ErrNoClips, got %v", err)
	}
	if _, err := s.Run(context.Background(), nil, voices, t.TempDir(), nil); !errors.Is(err, podcast.ErrNoClips) {
		t.Fatalf("empty script: expected ErrNoClips, got %v", err)
	}
}

func TestRun_ProgressAndVoices(t *testing.T) {
	fs := &fakeSynth{}
	s := NewScheduler(fs, 3, nil)

	var mu sync.Mutex
	var percents []int
	notify := func(msg string, pct int) {
		mu.Lock()
		percents = append(percents, pct)
		mu.Unlock()
	}
	noB := podcast.Voices{HostA: podcast.Voice{ID: "bf_emma", Name: "Narrator"}}
	if _, err := s.Run(context.Background(), script(4), noB, t.TempDir(), notify); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(percents) != 4 {
		t.Fatalf("expected one notification per clip, got %v", percents)
	}
	max := 0
	for _, p := range percents {
		if p < 30 || p > 80 {
			t.Fatalf("percent out of audio range: %d", p)
		}
		if p > max {
			max = p
		}
	}
	if max != 80 {
		t.Fatalf("final clip should report 80, got %d", max)
	}
	if fs.voices["line 1"] != "bf_emma" {
		t.Fatalf("HOST_B should fall back to HOST_A voice, got %q", fs.voices["line 1"])
	}
}

func TestRun_PronunciationOnlyAffectsProviderText(t *testing.T) {
	fs := &fakeSynth{}
	s := NewScheduler(fs, 1, nil)
	lines := []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "The grimoire"}}
	if _, err := s.Run(context.Background(), lines, voices, t.TempDir(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := fs.voices["The grim-wahr"]; !ok {
		t.Fatalf("provider did not receive respelled text: %v", fs.voices)
	}
	if lines[0].Text != "The grimoire" {
		t.Fatalf("script text mutated: %q", lines[0].Text)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScheduler(&fakeSynth{}, 1, nil)
	if _, err := s.Run(ctx, script(3), voices, t.TempDir(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
