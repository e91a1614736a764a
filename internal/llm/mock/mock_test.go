package mock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/llm"
	"github.com/jo-hoe/podify/internal/podcast"
)

func TestMockLLM_ScriptParses(t *testing.T) {
	c := New(config.MockLLMSettings{Lines: 4})
	cfg := podcast.PodcastConfig{Title: "T", Content: strings.Repeat("x", 60)}.WithDefaults()
	w := llm.NewScriptWriter(c, llm.Options{}, nil)

	lines, err := w.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[0].Speaker != podcast.HostA || lines[1].Speaker != podcast.HostB {
		t.Fatalf("speakers should alternate: %+v", lines)
	}
}

func TestMockLLM_SoloUsesHostAOnly(t *testing.T) {
	c := New(config.MockLLMSettings{Lines: 3})
	cfg := podcast.PodcastConfig{Title: "T", Content: "c", Format: podcast.FormatSoloNarration}.WithDefaults()
	w := llm.NewScriptWriter(c, llm.Options{}, nil)
	lines, err := w.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, l := range lines {
		if l.Speaker != podcast.HostA {
			t.Fatalf("solo narration produced %s", l.Speaker)
		}
	}
}

func TestMockLLM_Describe(t *testing.T) {
	w := llm.NewScriptWriter(New(config.MockLLMSettings{}), llm.Options{}, nil)
	desc, err := w.Describe(context.Background(), "T", []podcast.ScriptLine{{Speaker: podcast.HostA, Text: "hi"}})
	if err != nil || desc == "" {
		t.Fatalf("Describe: %q %v", desc, err)
	}
}

func TestMockLLM_RespectsContextCancel(t *testing.T) {
	c := New(config.MockLLMSettings{Delay: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	if _, err := c.Complete(ctx, "s", "u"); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
