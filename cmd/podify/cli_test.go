package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/podcast"
)

func TestReadBatchList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	data := "# notes to convert\nfirst.md\n\n  second.txt  \n#skipped.md\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := readBatchList(path)
	if err != nil {
		t.Fatalf("readBatchList: %v", err)
	}
	want := []string{"first.md", "second.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, err := readBatchList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing batch file")
	}
}

func TestTitleFromPath(t *testing.T) {
	cases := map[string]string{
		"notes/deep-space.md":    "deep space",
		"kitchen-witch.txt":      "kitchen witch",
		"/tmp/plain":             "plain",
		"dir/black-holes-101.md": "black holes 101",
	}
	for in, want := range cases {
		if got := titleFromPath(in); got != want {
			t.Errorf("titleFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateOptionsContent(t *testing.T) {
	if _, _, err := (generateOptions{}).content(); err == nil {
		t.Fatal("expected error without a source")
	}
	content, source, err := generateOptions{text: "hello there"}.content()
	if err != nil || content != "hello there" || source != "text" {
		t.Fatalf("text source: %q %q %v", content, source, err)
	}
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# Notes"), 0o600); err != nil {
		t.Fatal(err)
	}
	content, source, err = generateOptions{file: path}.content()
	if err != nil || content != "# Notes" || source != "file" {
		t.Fatalf("file source: %q %q %v", content, source, err)
	}
}

func TestGenerateOptionsConfig(t *testing.T) {
	opts := generateOptions{format: "interview", tone: "casual", voices: "british_pair", music: true, instructions: "  keep it short "}
	cfg := opts.config("body", "Title", "text")
	if cfg.Format != podcast.FormatInterview || cfg.Tone != podcast.ToneCasual || !cfg.IncludeMusic {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Voices.HostA.ID != "bf_emma" || cfg.CustomInstructions != "keep it short" {
		t.Fatalf("unexpected voices/instructions %+v", cfg)
	}
}

func TestRenderEpisodes(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	out := renderEpisodes([]feed.EpisodeMeta{
		{Slug: "webb", Title: "Webb", PubDate: now.Add(-48 * time.Hour), DurationSeconds: 125, FileSizeBytes: 2 * 1024 * 1024, WordCount: 1234},
		{Slug: "remote", Title: "Remote", PubDate: now, BlobURL: "https://blob.test/a.mp3"},
	}, now)
	for _, want := range []string{"webb", "2:05", "2.0 MiB", "1,234", "2 days ago", "remote"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBatchSummary(t *testing.T) {
	out := renderBatchSummary([]batchOutcome{
		{source: "a.md", result: &podcast.Result{Slug: "a-123456", CostUSD: 0.5}},
		{source: "b.md", err: errors.New("no audio clips generated")},
	})
	for _, want := range []string{"a-123456", "failed", "no audio clips generated", "1/2", "$0.5000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
