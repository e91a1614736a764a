package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/audio"
	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/llm"
	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/tts"
)

const sourceText = "Black holes are regions of spacetime where gravity is so strong that nothing escapes."

type llmMock struct {
	script   string
	err      error
	ready    error
	describe string
}

func (m *llmMock) Name() string { return "mock" }
func (m *llmMock) Ready() error { return m.ready }
func (m *llmMock) Complete(ctx context.Context, system, user string) (string, error) {
	if !strings.Contains(user, "<source_content>") {
		if m.describe == "" {
			return "", errors.New("no description")
		}
		return m.describe, nil
	}
	return m.script, m.err
}

type synthMock struct {
	mu     sync.Mutex
	calls  int
	failOn string
	onCall func()
}

func (s *synthMock) Name() string { return "mock" }
func (s *synthMock) Ready() error { return nil }
func (s *synthMock) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return tts.Audio{}, errors.New("synthesis failed")
	}
	return tts.Audio{Data: []byte("RIFF"), Ext: "wav"}, nil
}

// toolMock writes placeholder files for every output.
type toolMock struct {
	mu         sync.Mutex
	normalized int
}

func touch(path string) error { return os.WriteFile(path, []byte("x"), 0o600) }

func (t *toolMock) Normalize(ctx context.Context, in, out string) error {
	t.mu.Lock()
	t.normalized++
	t.mu.Unlock()
	return touch(out)
}
func (t *toolMock) Silence(ctx context.Context, d time.Duration, out string) error { return touch(out) }
func (t *toolMock) Concat(ctx context.Context, list, out string, enc audio.Encoding) error {
	return touch(out)
}
func (t *toolMock) Mix(ctx context.Context, dialogue, music string, volume float64, out string) error {
	return touch(out)
}
func (t *toolMock) Copy(src, dst string) error { return touch(dst) }
func (t *toolMock) Probe(ctx context.Context, path string) (float64, error) { return 12.5, nil }

type fixture struct {
	orch     *Orchestrator
	llm      *llmMock
	synth    *synthMock
	tool     *toolMock
	registry *feed.Registry
	out      string
}

func newFixture(t *testing.T, script []podcast.ScriptLine) *fixture {
	t.Helper()
	b, err := json.Marshal(script)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		llm:   &llmMock{script: string(b), describe: "An episode about black holes."},
		synth: &synthMock{},
		tool:  &toolMock{},
		out:   t.TempDir(),
	}
	llms := llm.NewRegistry()
	llms.Add(f.llm)
	synths := tts.NewRegistry()
	synths.Add(f.synth)
	f.registry = feed.NewRegistry(feed.NewFileStore(config.DefaultShow()), feed.Options{})
	f.orch = New(Deps{
		LLM:       llms,
		TTS:       synths,
		Assembler: audio.NewAssembler(f.tool, audio.Assets{}, nil),
		Registry:  f.registry,
	})
	return f
}

func testConfig() podcast.PodcastConfig {
	return podcast.PodcastConfig{
		Content:     sourceText,
		Title:       "Black Holes",
		LLMProvider: podcast.LLMMock,
		TTSProvider: podcast.TTSMock,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []podcast.ProgressEvent
}

func (r *recorder) observe(ctx context.Context, ev podcast.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) sawStage(s podcast.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Stage == s {
			return true
		}
	}
	return false
}

func TestGenerateEpisodeTwoLines(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{
		{Speaker: podcast.HostA, Text: "Hello there friends"},
		{Speaker: podcast.HostB, Text: "Nice to see you"},
	})
	rec := &recorder{}

	res, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, rec.observe)
	if err != nil {
		t.Fatalf("GenerateEpisode: %v", err)
	}
	if len(res.Transcript) != 2 {
		t.Fatalf("transcript length = %d", len(res.Transcript))
	}
	if res.WordCount != 7 {
		t.Fatalf("word count = %d, want 7", res.WordCount)
	}
	if res.DurationSeconds != 12.5 {
		t.Fatalf("duration = %v", res.DurationSeconds)
	}
	chars := len("Hello there friends") + len("Nice to see you")
	if want := podcast.EstimateCost(podcast.TTSMock, chars); res.CostUSD != want {
		t.Fatalf("cost = %v, want %v", res.CostUSD, want)
	}
	if !strings.HasPrefix(res.Slug, "black-holes-") {
		t.Fatalf("slug = %q", res.Slug)
	}

	episodeDir := filepath.Dir(res.AudioPath)
	if _, err := os.Stat(filepath.Join(episodeDir, common.WorkDirName)); !os.IsNotExist(err) {
		t.Fatalf("work dir not removed: %v", err)
	}
	txt, err := os.ReadFile(filepath.Join(episodeDir, common.TranscriptTextName))
	if err != nil {
		t.Fatal(err)
	}
	if string(txt) != "Luna: Hello there friends\n\nSol: Nice to see you" {
		t.Fatalf("readable transcript = %q", txt)
	}
	if _, err := os.Stat(filepath.Join(episodeDir, common.TranscriptJSONName)); err != nil {
		t.Fatalf("transcript.json: %v", err)
	}

	ep, ok, err := f.registry.Find(context.Background(), f.out, res.Slug)
	if err != nil || !ok {
		t.Fatalf("episode not registered: %v", err)
	}
	if ep.Description != "An episode about black holes." || ep.WordCount != 7 || ep.DirName != filepath.Base(episodeDir) {
		t.Fatalf("unexpected entry %+v", ep)
	}

	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if last.Stage != podcast.StageComplete || last.Percent != 100 {
		t.Fatalf("last event = %+v", last)
	}
}

func TestBoundaryDeliveredBeforeStageWork(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{
		{Speaker: podcast.HostA, Text: "One"},
		{Speaker: podcast.HostB, Text: "Two"},
	})
	rec := &recorder{}
	var early bool
	var once sync.Once
	f.synth.onCall = func() {
		once.Do(func() { early = !rec.sawStage(podcast.StageAudio) })
	}
	slow := func(ctx context.Context, ev podcast.ProgressEvent) error {
		if ev.Stage == podcast.StageAudio && ev.Percent == percentAudio {
			time.Sleep(50 * time.Millisecond)
		}
		return rec.observe(ctx, ev)
	}

	if _, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, slow); err != nil {
		t.Fatalf("GenerateEpisode: %v", err)
	}
	if early {
		t.Fatalf("synthesis started before the audio boundary was delivered")
	}
}

func TestPartialSynthesisFailureStillSucceeds(t *testing.T) {
	var script []podcast.ScriptLine
	for i := 1; i <= 5; i++ {
		script = append(script, podcast.ScriptLine{Speaker: podcast.HostA, Text: fmt.Sprintf("segment %d", i)})
	}
	f := newFixture(t, script)
	f.synth.failOn = "segment 3"

	res, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, nil)
	if err != nil {
		t.Fatalf("GenerateEpisode: %v", err)
	}
	if f.tool.normalized != 4 {
		t.Fatalf("normalized %d clips, want 4", f.tool.normalized)
	}
	if len(res.Transcript) != 5 {
		t.Fatalf("transcript keeps every line, got %d", len(res.Transcript))
	}
}

func TestAllSynthesisFailingAborts(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "only line"}})
	f.synth.failOn = "only"

	_, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, nil)
	if !errors.Is(err, podcast.ErrNoClips) {
		t.Fatalf("err = %v, want ErrNoClips", err)
	}
	m, _ := f.registry.List(context.Background(), f.out)
	if len(m.Episodes) != 0 {
		t.Fatalf("failed run was registered")
	}
}

func TestConfigurationErrorBeforeAnyStage(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "x"}})
	f.llm.ready = errors.New("OPENROUTER_API_KEY not set")
	rec := &recorder{}

	_, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, rec.observe)
	if !podcast.IsConfiguration(err) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("progress delivered before configuration check: %+v", rec.events)
	}
	if f.synth.calls != 0 {
		t.Fatalf("synthesizer called")
	}
	entries, _ := os.ReadDir(f.out)
	if len(entries) != 0 {
		t.Fatalf("output dir touched: %d entries", len(entries))
	}

	cfg := testConfig()
	cfg.TTSProvider = podcast.TTSOpenAI
	f.llm.ready = nil
	if _, err := f.orch.GenerateEpisode(context.Background(), cfg, f.out, nil); !podcast.IsConfiguration(err) {
		t.Fatalf("unknown tts provider: err = %v", err)
	}
}

func TestScriptFailureIsProviderError(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.script = "not json"

	_, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, nil)
	if !podcast.IsProvider(err) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	dirs, _ := filepath.Glob(filepath.Join(f.out, "*", common.WorkDirName))
	if len(dirs) != 0 {
		t.Fatalf("work dir left behind: %v", dirs)
	}
}

func isBoundary(ev podcast.ProgressEvent) bool {
	switch {
	case ev.Stage == podcast.StageScripting && ev.Percent == percentScripting,
		ev.Stage == podcast.StageAudio && ev.Percent == percentAudio,
		ev.Stage == podcast.StageAssembly && ev.Percent == percentAssembly,
		ev.Stage == podcast.StageComplete && ev.Percent == percentComplete:
		return true
	}
	return false
}

func TestIntraStageObserverFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "hello"}})
	f.llm.describe = ""
	observer := func(ctx context.Context, ev podcast.ProgressEvent) error {
		if isBoundary(ev) {
			return nil
		}
		if ev.Percent%5 == 0 {
			panic("observer exploded")
		}
		return errors.New("observer unavailable")
	}

	res, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, observer)
	if err != nil {
		t.Fatalf("GenerateEpisode: %v", err)
	}
	ep, ok, _ := f.registry.Find(context.Background(), f.out, res.Slug)
	if !ok || ep.Description != "hello" {
		t.Fatalf("fallback description not used: %+v", ep)
	}
}

func TestRejectedBoundaryAbortsRun(t *testing.T) {
	rejectAt := []podcast.Stage{podcast.StageScripting, podcast.StageAudio}
	for _, stage := range rejectAt {
		t.Run(string(stage), func(t *testing.T) {
			f := newFixture(t, []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "hello"}})
			rejected := errors.New("observer rejected boundary")
			observer := func(ctx context.Context, ev podcast.ProgressEvent) error {
				if isBoundary(ev) && ev.Stage == stage {
					return rejected
				}
				return nil
			}

			res, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, observer)
			if !errors.Is(err, rejected) || res != nil {
				t.Fatalf("expected rejection error, got res=%v err=%v", res, err)
			}
			if f.synth.calls != 0 {
				t.Fatalf("synthesis ran after rejected %s boundary: %d calls", stage, f.synth.calls)
			}
			m, _ := f.registry.List(context.Background(), f.out)
			if len(m.Episodes) != 0 {
				t.Fatalf("episode registered after rejection: %+v", m.Episodes)
			}
		})
	}
}

func TestBoundaryPanicAbortsRun(t *testing.T) {
	f := newFixture(t, []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "hello"}})
	observer := func(ctx context.Context, ev podcast.ProgressEvent) error {
		if isBoundary(ev) && ev.Stage == podcast.StageAssembly {
			panic("observer exploded")
		}
		return nil
	}
	if _, err := f.orch.GenerateEpisode(context.Background(), testConfig(), f.out, observer); err == nil {
		t.Fatal("expected panic at the assembly boundary to abort the run")
	}
	if f.tool.normalized != 0 {
		t.Fatalf("assembly ran after rejected boundary: %d clips normalized", f.tool.normalized)
	}
}
