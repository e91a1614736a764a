package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jo-hoe/podify/internal/podcast"
)

// Options customise the generated show.
type Options struct {
	ShowName     string
	CallToAction string
}

// ScriptWriter turns source content into a two-host script with one Client.
type ScriptWriter struct {
	client Client
	opts   Options
	log    *slog.Logger
}

func NewScriptWriter(client Client, opts Options, log *slog.Logger) *ScriptWriter {
	if strings.TrimSpace(opts.ShowName) == "" {
		opts.ShowName = "The Podcast"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ScriptWriter{client: client, opts: opts, log: log}
}

// Generate asks the model for a script and parses it. notify may be nil.
func (w *ScriptWriter) Generate(ctx context.Context, cfg podcast.PodcastConfig, notify podcast.Notify) ([]podcast.ScriptLine, error) {
	if notify == nil {
		notify = func(string, int) {}
	}
	notify(fmt.Sprintf("Generating script (%s, %s, %s)...", cfg.Format, cfg.Duration, cfg.Tone), 5)

	raw, err := w.client.Complete(ctx, w.SystemPrompt(cfg), UserPrompt(cfg))
	if err != nil {
		return nil, &podcast.ProviderError{Provider: w.client.Name(), Err: err}
	}

	notify("Parsing script...", 25)
	lines, err := ParseScript(raw)
	if err != nil {
		w.log.Error("script parse failed", "provider", w.client.Name(), "raw", truncate(raw, 500))
		return nil, &podcast.ProviderError{Provider: w.client.Name(), Err: err}
	}

	words := podcast.WordCount(lines)
	w.log.Info("script generated", "lines", len(lines), "words", words)
	notify(fmt.Sprintf("Script generated: %d lines, %d words", len(lines), words), 30)
	return lines, nil
}

// Describe asks the model for a short episode summary.
func (w *ScriptWriter) Describe(ctx context.Context, title string, lines []podcast.ScriptLine) (string, error) {
	raw, err := w.client.Complete(ctx, describeSystemPrompt, describeUserPrompt(title, lines))
	if err != nil {
		return "", &podcast.ProviderError{Provider: w.client.Name(), Err: err}
	}
	desc := strings.Trim(strings.TrimSpace(raw), `"`)
	if desc == "" {
		return "", &podcast.ProviderError{Provider: w.client.Name(), Err: errors.New("empty description")}
	}
	return desc, nil
}

var reFence = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// ParseScript decodes a JSON array of {speaker, text} objects, tolerating a
// surrounding markdown code fence, and cleans each text for speech.
func ParseScript(raw string) ([]podcast.ScriptLine, error) {
	cleaned := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}

	var parsed []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("script parsing failed: %w", err)
	}
	if len(parsed) == 0 {
		return nil, errors.New("script parsing failed: empty script")
	}

	out := make([]podcast.ScriptLine, 0, len(parsed))
	for i, l := range parsed {
		if l.Speaker == "" || l.Text == "" {
			return nil, fmt.Errorf("script parsing failed: line %d missing speaker or text", i)
		}
		sp := podcast.Speaker(strings.ToUpper(strings.TrimSpace(l.Speaker)))
		if !sp.Valid() {
			return nil, fmt.Errorf("script parsing failed: line %d has unknown speaker %q", i, l.Speaker)
		}
		text := CleanForSpeech(l.Text)
		if text == "" {
			continue
		}
		out = append(out, podcast.ScriptLine{Speaker: sp, Text: text})
	}
	if len(out) == 0 {
		return nil, errors.New("script parsing failed: no speakable lines")
	}
	return out, nil
}

var (
	reLaugh     = regexp.MustCompile(`(?i)\[laughs?\]`)
	rePause     = regexp.MustCompile(`(?i)\[pause\]`)
	reDirection = regexp.MustCompile(`\[.*?\]`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips bracketed stage directions, turning [pause] into an
// ellipsis, and collapses whitespace.
func CleanForSpeech(text string) string {
	text = reLaugh.ReplaceAllString(text, "")
	text = rePause.ReplaceAllString(text, "...")
	text = reDirection.ReplaceAllString(text, "")
	text = reSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
