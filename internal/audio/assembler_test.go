package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
)

// fakeTool records calls and writes placeholder outputs.
type fakeTool struct {
	mu        sync.Mutex
	calls     []string
	gaps      []time.Duration
	lists     map[string]string
	failStep  string
	duration  float64
	probeFail bool
	probeErr  error
}

func (f *fakeTool) record(step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
	if f.failStep == step {
		return errors.New(step + " failed")
	}
	return nil
}

func touch(path string) error { return os.WriteFile(path, []byte("x"), 0o600) }

func (f *fakeTool) Normalize(ctx context.Context, in, out string) error {
	if err := f.record("normalize"); err != nil {
		return err
	}
	return touch(out)
}

func (f *fakeTool) Silence(ctx context.Context, d time.Duration, out string) error {
	if err := f.record("silence"); err != nil {
		return err
	}
	f.mu.Lock()
	f.gaps = append(f.gaps, d)
	f.mu.Unlock()
	return touch(out)
}

func (f *fakeTool) Concat(ctx context.Context, listPath, out string, enc Encoding) error {
	step := "concat-dialogue"
	if enc == EncodeFinal {
		step = "concat-final"
	}
	if err := f.record(step); err != nil {
		return err
	}
	b, _ := os.ReadFile(listPath)
	f.mu.Lock()
	if f.lists == nil {
		f.lists = map[string]string{}
	}
	f.lists[step] = string(b)
	f.mu.Unlock()
	return touch(out)
}

func (f *fakeTool) Mix(ctx context.Context, dialogue, music string, volume float64, out string) error {
	if err := f.record("mix"); err != nil {
		return err
	}
	return touch(out)
}

func (f *fakeTool) Copy(src, dst string) error {
	if err := f.record("copy"); err != nil {
		return err
	}
	return copyFile(src, dst)
}

func (f *fakeTool) Probe(ctx context.Context, path string) (float64, error) {
	_ = f.record("probe")
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	if f.probeFail {
		return 0, errors.New("no ffprobe")
	}
	return f.duration, nil
}

func clipsFor(t *testing.T, speakers ...podcast.Speaker) []podcast.AudioClip {
	t.Helper()
	dir := t.TempDir()
	out := make([]podcast.AudioClip, len(speakers))
	for i, s := range speakers {
		p := filepath.Join(dir, "clip"+string(rune('a'+i))+".wav")
		if err := touch(p); err != nil {
			t.Fatal(err)
		}
		out[i] = podcast.AudioClip{Speaker: s, Path: p}
	}
	return out
}

func TestGap(t *testing.T) {
	if Gap(podcast.HostA, podcast.HostB) != 800*time.Millisecond {
		t.Fatalf("speaker change gap should be 800ms")
	}
	if Gap(podcast.HostB, podcast.HostB) != 300*time.Millisecond {
		t.Fatalf("same speaker gap should be 300ms")
	}
}

func TestAssemble_DialogueOnly(t *testing.T) {
	tool := &fakeTool{duration: 42.5}
	a := NewAssembler(tool, Assets{}, nil)
	work := t.TempDir()
	out := filepath.Join(t.TempDir(), "ep.mp3")

	clips := clipsFor(t, podcast.HostA, podcast.HostB, podcast.HostB)
	var percents []int
	d, err := a.Assemble(context.Background(), clips, true, work, out, func(m string, p int) { percents = append(percents, p) })
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if d != 42.5 {
		t.Fatalf("duration mismatch: %v", d)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if len(tool.gaps) != 2 || tool.gaps[0] != SpeakerChangeGap || tool.gaps[1] != SameSpeakerGap {
		t.Fatalf("unexpected gaps: %v", tool.gaps)
	}
	list := tool.lists["concat-dialogue"]
	if n := strings.Count(list, "file '"); n != 5 {
		t.Fatalf("expected 5 concat entries (3 clips + 2 gaps), got %d:\n%s", n, list)
	}
	if !strings.Contains(list, "c000.wav") || strings.Index(list, "g000.wav") > strings.Index(list, "c001.wav") {
		t.Fatalf("concat order wrong:\n%s", list)
	}
	for _, c := range tool.calls {
		if c == "mix" || c == "concat-final" {
			t.Fatalf("optional step ran without assets: %v", tool.calls)
		}
	}
	if len(percents) != 2 || percents[0] != 82 || percents[1] != 87 {
		t.Fatalf("unexpected progress: %v", percents)
	}
}

func TestAssemble_WithMusicAndIntroOutro(t *testing.T) {
	assets := t.TempDir()
	music := filepath.Join(assets, "music.mp3")
	intro := filepath.Join(assets, "intro.mp3")
	outro := filepath.Join(assets, "outro.mp3")
	for _, p := range []string{music, intro, outro} {
		if err := touch(p); err != nil {
			t.Fatal(err)
		}
	}
	tool := &fakeTool{duration: 10}
	a := NewAssembler(tool, Assets{Music: music, Intro: intro, Outro: outro}, nil)
	out := filepath.Join(t.TempDir(), "ep.mp3")

	if _, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA), true, t.TempDir(), out, nil); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := strings.Join(tool.calls, ",")
	if got != "normalize,concat-dialogue,mix,concat-final,probe" {
		t.Fatalf("unexpected call sequence: %s", got)
	}
	final := tool.lists["concat-final"]
	if !strings.HasPrefix(final, "file '"+intro+"'") || !strings.HasSuffix(final, "file '"+outro+"'") || !strings.Contains(final, "mixed.mp3") {
		t.Fatalf("final list wrong:\n%s", final)
	}
}

func TestAssemble_MusicNotRequestedOrFailing(t *testing.T) {
	music := filepath.Join(t.TempDir(), "music.mp3")
	_ = touch(music)

	tool := &fakeTool{}
	a := NewAssembler(tool, Assets{Music: music}, nil)
	if _, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA), false, t.TempDir(), filepath.Join(t.TempDir(), "o.mp3"), nil); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, c := range tool.calls {
		if c == "mix" {
			t.Fatalf("music mixed although not requested")
		}
	}

	failing := &fakeTool{failStep: "mix"}
	a = NewAssembler(failing, Assets{Music: music}, nil)
	if _, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA), true, t.TempDir(), filepath.Join(t.TempDir(), "o.mp3"), nil); err != nil {
		t.Fatalf("mix failure must not fail assembly: %v", err)
	}
}

func TestAssemble_DialogueFailureIsAssemblyError(t *testing.T) {
	tool := &fakeTool{failStep: "normalize"}
	a := NewAssembler(tool, Assets{}, nil)
	_, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA, podcast.HostB), false, t.TempDir(), filepath.Join(t.TempDir(), "o.mp3"), nil)
	if !podcast.IsAssembly(err) {
		t.Fatalf("expected AssemblyError, got %v", err)
	}
	if _, err := a.Assemble(context.Background(), nil, false, t.TempDir(), "x", nil); !podcast.IsAssembly(err) {
		t.Fatalf("empty clips: expected AssemblyError, got %v", err)
	}
}

func TestAssemble_ProbeFailureYieldsZero(t *testing.T) {
	tool := &fakeTool{probeFail: true, duration: 99}
	a := NewAssembler(tool, Assets{}, nil)
	d, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA), false, t.TempDir(), filepath.Join(t.TempDir(), "o.mp3"), nil)
	if err != nil || d != 0 {
		t.Fatalf("expected 0 duration and no error, got %v %v", d, err)
	}
}

func TestAssemble_ArtifactWithoutAudioIsRejected(t *testing.T) {
	tool := &fakeTool{probeErr: fmt.Errorf("ffprobe o.mp3: %w", ErrNoAudioStream)}
	a := NewAssembler(tool, Assets{}, nil)
	_, err := a.Assemble(context.Background(), clipsFor(t, podcast.HostA), false, t.TempDir(), filepath.Join(t.TempDir(), "o.mp3"), nil)
	var ae *podcast.AssemblyError
	if !errors.As(err, &ae) || ae.Op != "verify" {
		t.Fatalf("expected verify AssemblyError, got %v", err)
	}
	if !errors.Is(err, ErrNoAudioStream) {
		t.Fatalf("expected ErrNoAudioStream in chain, got %v", err)
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "list.txt")
	if err := writeConcatList(p, []string{"/a/it's.wav", "/b/c.wav"}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(p)
	want := "file '/a/it'\\''s.wav'\nfile '/b/c.wav'"
	if string(b) != want {
		t.Fatalf("got %q want %q", b, want)
	}
}

func TestParseProbe(t *testing.T) {
	res, err := ParseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"123.456","size":"1000"}}`))
	if err != nil {
		t.Fatalf("ParseProbe: %v", err)
	}
	if res.DurationSeconds() != 123.456 || res.AudioStreamCount() != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	res, _ = ParseProbe([]byte(`{"format":{"duration":"N/A"}}`))
	if res.DurationSeconds() != 0 {
		t.Fatalf("unparseable duration should be 0")
	}
	if _, err := ParseProbe([]byte("not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAudioDuration(t *testing.T) {
	res, err := ParseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"12.5"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if d, err := res.AudioDuration(); err != nil || d != 12.5 {
		t.Fatalf("got %v %v", d, err)
	}

	res, err = ParseProbe([]byte(`{"streams":[{"codec_type":"video","codec_name":"mjpeg"}],"format":{"duration":"12.5"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.AudioDuration(); !errors.Is(err, ErrNoAudioStream) {
		t.Fatalf("expected ErrNoAudioStream, got %v", err)
	}
}
