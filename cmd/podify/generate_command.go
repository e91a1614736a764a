package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/pipeline"
	"github.com/jo-hoe/podify/internal/podcast"
)

type generateOptions struct {
	text         string
	file         string
	batch        string
	title        string
	format       string
	duration     string
	tone         string
	voices       string
	tts          string
	llm          string
	music        bool
	instructions string
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one episode, or a batch of episodes, from local text",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.buildApp()
			if err != nil {
				return err
			}
			if err := a.ffmpeg.Check(); err != nil {
				return err
			}
			runCtx := cmd.Context()
			out := cmd.OutOrStdout()
			if opts.batch != "" {
				return runBatch(runCtx, a, opts, out)
			}
			content, source, err := opts.content()
			if err != nil {
				return err
			}
			title := opts.title
			if title == "" && opts.file != "" {
				title = titleFromPath(opts.file)
			}
			res, err := generateOne(runCtx, a, opts.config(content, title, source), out)
			if err != nil {
				return err
			}
			printResult(out, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.text, "text", "", "Raw source text")
	f.StringVar(&opts.file, "file", "", "Local text or markdown file")
	f.StringVar(&opts.batch, "batch", "", "File listing source files, one per line (# comments allowed)")
	f.StringVar(&opts.title, "title", "", "Episode title")
	f.StringVar(&opts.format, "format", "", "conversation | interview | solo_narration | study_notes")
	f.StringVar(&opts.duration, "duration", "", "5min | 10min | 15min")
	f.StringVar(&opts.tone, "tone", "", "educational | casual | deep_dive | mystical")
	f.StringVar(&opts.voices, "voices", "", "Voice preset name")
	f.StringVar(&opts.tts, "tts", "", "Speech provider (defaults to tts.provider)")
	f.StringVar(&opts.llm, "llm", "", "Script provider (defaults to llm.provider)")
	f.BoolVar(&opts.music, "music", false, "Mix background music under the dialogue")
	f.StringVar(&opts.instructions, "instructions", "", "Extra instructions for the script writer")
	cmd.MarkFlagsMutuallyExclusive("text", "file", "batch")
	return cmd
}

func (o generateOptions) content() (string, string, error) {
	switch {
	case strings.TrimSpace(o.text) != "":
		return o.text, "text", nil
	case o.file != "":
		b, err := os.ReadFile(o.file) // #nosec G304 - user supplied path on the command line
		if err != nil {
			return "", "", fmt.Errorf("read source: %w", err)
		}
		return string(b), "file", nil
	default:
		return "", "", errors.New("provide --text, --file or --batch")
	}
}

func (o generateOptions) config(content, title, source string) podcast.PodcastConfig {
	return podcast.PodcastConfig{
		Content:            content,
		Title:              title,
		Format:             podcast.Format(o.format),
		Duration:           podcast.Duration(o.duration),
		Tone:               podcast.Tone(o.tone),
		Voices:             podcast.PresetVoices(o.voices),
		TTSProvider:        podcast.TTSProvider(o.tts),
		LLMProvider:        podcast.LLMProvider(o.llm),
		IncludeMusic:       o.music,
		CustomInstructions: strings.TrimSpace(o.instructions),
		Source:             source,
	}
}

func generateOne(ctx context.Context, a *app, cfg podcast.PodcastConfig, out io.Writer) (*podcast.Result, error) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = podcast.LLMProvider(a.cfg.LLM.Provider)
	}
	if cfg.TTSProvider == "" {
		cfg.TTSProvider = podcast.TTSProvider(a.cfg.TTS.Provider)
	}
	progress, finish := progressReporter(out)
	res, err := a.orchestrator.GenerateEpisode(ctx, cfg, a.cfg.Feed.OutputDir, progress)
	finish()
	return res, err
}

// progressReporter draws a bar on terminals and prints stage lines otherwise.
func progressReporter(out io.Writer) (pipeline.ProgressFunc, func()) {
	if !isTerminal(out) {
		return func(_ context.Context, ev podcast.ProgressEvent) error {
			_, err := fmt.Fprintf(out, "[%3d%%] %s\n", ev.Percent, ev.Message)
			return err
		}, func() {}
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionClearOnFinish(),
	)
	report := func(_ context.Context, ev podcast.ProgressEvent) error {
		bar.Describe(ev.Message)
		return bar.Set(ev.Percent)
	}
	return report, func() { _ = bar.Finish() }
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printResult(out io.Writer, res *podcast.Result) {
	size := "unknown size"
	if info, err := os.Stat(res.AudioPath); err == nil {
		size = humanize.IBytes(uint64(info.Size())) // #nosec G115 - file sizes are non-negative
	}
	fmt.Fprintf(out, "Episode:  %s\n", res.Slug)
	fmt.Fprintf(out, "Audio:    %s (%s, %s)\n", res.AudioPath, feed.FormatDuration(res.DurationSeconds), size)
	if res.RemoteURL != "" {
		fmt.Fprintf(out, "Remote:   %s\n", res.RemoteURL)
	}
	fmt.Fprintf(out, "Words:    %s\n", humanize.Comma(int64(res.WordCount)))
	fmt.Fprintf(out, "Cost:     $%.4f\n", res.CostUSD)
}

type batchOutcome struct {
	source string
	result *podcast.Result
	err    error
}

// runBatch generates one episode per listed source file, sequentially. A
// failing entry does not stop the batch.
func runBatch(ctx context.Context, a *app, opts generateOptions, out io.Writer) error {
	sources, err := readBatchList(opts.batch)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Batch: %d episodes to generate\n", len(sources))

	outcomes := make([]batchOutcome, 0, len(sources))
	for i, src := range sources {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(sources), src)
		o := batchOutcome{source: src}
		switch {
		case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
			o.err = errors.New("remote sources are not supported; save the text locally")
		default:
			b, readErr := os.ReadFile(src) // #nosec G304 - paths come from the operator's batch file
			if readErr != nil {
				o.err = fmt.Errorf("read source: %w", readErr)
				break
			}
			title := titleFromPath(src)
			if title == "" {
				title = fmt.Sprintf("Episode %d", i+1)
			}
			o.result, o.err = generateOne(ctx, a, opts.config(string(b), title, "file"), out)
		}
		if o.err != nil {
			a.log.Error("batch entry failed", "source", src, "err", o.err)
		}
		outcomes = append(outcomes, o)
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderBatchSummary(outcomes))
	return ctx.Err()
}

func readBatchList(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - user supplied path on the command line
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer func() { _ = f.Close() }()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return out, nil
}

// titleFromPath derives a title from a file name: "deep-space.md" becomes "deep space".
func titleFromPath(p string) string {
	base := filepath.Base(p)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(base, "-", " "))
}
