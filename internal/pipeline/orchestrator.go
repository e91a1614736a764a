package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/podify/internal/audio"
	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/llm"
	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/synth"
	"github.com/jo-hoe/podify/internal/tts"
	"github.com/jo-hoe/podify/internal/util"
)

// Stage boundary percentages.
const (
	percentScripting = 0
	percentAudio     = 30
	percentAssembly  = 80
	percentFinalize  = 95
	percentComplete  = 100

	slugSuffixLength = 6
)

// Deps are the collaborators of an Orchestrator. Registry is optional.
type Deps struct {
	LLM         *llm.Registry
	TTS         *tts.Registry
	Assembler   *audio.Assembler
	Registry    *feed.Registry
	Script      llm.Options
	Concurrency int
	Log         *slog.Logger
}

// Orchestrator runs one episode through scripting, synthesis and assembly,
// then records it in the registry.
type Orchestrator struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

func New(deps Deps) *Orchestrator {
	if deps.Log == nil {
		deps.Log = slog.New(slog.DiscardHandler)
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = synth.DefaultConcurrency
	}
	return &Orchestrator{deps: deps, log: deps.Log, now: time.Now}
}

// GenerateEpisode produces an episode under outputDir. Each stage boundary is
// delivered to onProgress, and awaited, before the stage starts; a boundary
// the observer rejects aborts the run like a stage failure. Registration,
// cleanup and intra-stage delivery failures are only logged.
func (o *Orchestrator) GenerateEpisode(ctx context.Context, cfg podcast.PodcastConfig, outputDir string, onProgress ProgressFunc) (*podcast.Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := o.deps.LLM.Resolve(cfg.LLMProvider)
	if err != nil {
		return nil, err
	}
	synthesizer, err := o.deps.TTS.Resolve(cfg.TTSProvider)
	if err != nil {
		return nil, err
	}

	start := o.now()
	slug := podcast.Slugify(cfg.Title) + "-" + util.ShortID(slugSuffixLength)
	dirName := feed.EpisodeDirName(start, slug)
	episodeDir := filepath.Join(outputDir, dirName)
	workDir := filepath.Join(episodeDir, common.WorkDirName)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer o.cleanup(workDir)

	log := o.log.With("slug", slug)
	log.Info("generating episode",
		"title", cfg.Title,
		"format", cfg.Format,
		"duration", cfg.Duration,
		"tone", cfg.Tone,
		"llm", client.Name(),
		"tts", synthesizer.Name(),
		"content_chars", len(cfg.Content),
	)
	progress := NewReporter(onProgress, log)

	// Scripting
	if err := progress.Boundary(ctx, podcast.ProgressEvent{Stage: podcast.StageScripting, Message: "Generating script...", Percent: percentScripting}); err != nil {
		return nil, err
	}
	writer := llm.NewScriptWriter(client, o.deps.Script, log)
	lines, err := writer.Generate(ctx, cfg, progress.Stage(ctx, podcast.StageScripting))
	if err != nil {
		return nil, err
	}
	if err := writeTranscripts(episodeDir, lines, cfg.Voices); err != nil {
		return nil, err
	}

	// Synthesis
	if err := progress.Boundary(ctx, podcast.ProgressEvent{Stage: podcast.StageAudio, Message: "Generating audio clips...", Percent: percentAudio}); err != nil {
		return nil, err
	}
	scheduler := synth.NewScheduler(synthesizer, o.deps.Concurrency, log)
	clips, err := scheduler.Run(ctx, lines, cfg.Voices, filepath.Join(workDir, common.ClipsDirName), progress.Stage(ctx, podcast.StageAudio))
	if err != nil {
		if errors.Is(err, podcast.ErrNoClips) {
			return nil, fmt.Errorf("%w: check the %s speech provider", err, synthesizer.Name())
		}
		return nil, err
	}

	// Assembly
	if err := progress.Boundary(ctx, podcast.ProgressEvent{Stage: podcast.StageAssembly, Message: "Assembling podcast...", Percent: percentAssembly}); err != nil {
		return nil, err
	}
	audioName := slug + common.AudioExtension
	outputPath := filepath.Join(episodeDir, audioName)
	duration, err := o.deps.Assembler.Assemble(ctx, clips, cfg.IncludeMusic, workDir, outputPath, progress.Stage(ctx, podcast.StageAssembly))
	if err != nil {
		return nil, err
	}

	words := podcast.WordCount(lines)
	cost := podcast.EstimateCost(cfg.TTSProvider, podcast.CharCount(lines))
	result := &podcast.Result{
		AudioPath:       outputPath,
		Slug:            slug,
		Transcript:      lines,
		DurationSeconds: duration,
		WordCount:       words,
		CostUSD:         cost,
	}

	progress.Notify(ctx, podcast.ProgressEvent{Stage: podcast.StageAssembly, Message: "Registering episode...", Percent: percentFinalize})
	description := o.describe(ctx, writer, cfg.Title, lines)
	if err := o.register(ctx, outputDir, dirName, audioName, cfg, description, start, result); err != nil {
		log.Warn("episode registration failed", "err", err)
	}

	log.Info("episode complete",
		"path", outputPath,
		"duration", time.Duration(duration*float64(time.Second)).Round(time.Second),
		"words", words,
		"cost_usd", fmt.Sprintf("%.4f", cost),
		"elapsed", o.now().Sub(start).Round(100*time.Millisecond),
	)
	if err := progress.Boundary(ctx, podcast.ProgressEvent{Stage: podcast.StageComplete, Message: "Episode complete!", Percent: percentComplete}); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) describe(ctx context.Context, writer *llm.ScriptWriter, title string, lines []podcast.ScriptLine) string {
	desc, err := writer.Describe(ctx, title, lines)
	if err != nil {
		o.log.Warn("description generation failed, using transcript excerpt", "err", err)
		return podcast.FallbackDescription(podcast.JoinText(lines))
	}
	return desc
}

// register uploads the audio when a blob store is configured and appends the
// episode to the manifest. Failures come back as RegistrationError.
func (o *Orchestrator) register(ctx context.Context, outputDir, dirName, audioName string, cfg podcast.PodcastConfig, description string, pubDate time.Time, result *podcast.Result) error {
	if o.deps.Registry == nil {
		return nil
	}
	info, err := os.Stat(result.AudioPath)
	if err != nil {
		return &podcast.RegistrationError{Op: "stat", Err: err}
	}
	ep := feed.EpisodeMeta{
		GUID:            util.NewID(),
		Slug:            result.Slug,
		DirName:         dirName,
		Title:           cfg.Title,
		Description:     description,
		PubDate:         pubDate.UTC(),
		DurationSeconds: result.DurationSeconds,
		FileSizeBytes:   info.Size(),
		AudioFileName:   audioName,
		WordCount:       result.WordCount,
		CostUSD:         result.CostUSD,
		Source:          cfg.Source,
	}

	url, err := o.deps.Registry.UploadAudio(ctx, result.Slug, pubDate, result.AudioPath)
	if err != nil {
		o.log.Warn("audio upload failed", "slug", result.Slug, "err", &podcast.RegistrationError{Op: "upload", Err: err})
	} else if url != "" {
		ep.BlobURL = url
		result.RemoteURL = url
		o.log.Info("audio uploaded", "slug", result.Slug, "url", url, "size", humanize.IBytes(uint64(info.Size())))
	}

	stored, err := o.deps.Registry.Append(ctx, outputDir, ep)
	if err != nil {
		return &podcast.RegistrationError{Op: "append", Err: err}
	}
	result.Slug = stored.Slug
	return nil
}

func (o *Orchestrator) cleanup(workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		o.log.Warn("work dir cleanup failed", "err", &podcast.CleanupError{Path: workDir, Err: err})
	}
}

// writeTranscripts stores the script as indented JSON and as readable text.
func writeTranscripts(dir string, lines []podcast.ScriptLine, voices podcast.Voices) error {
	b, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, common.TranscriptJSONName), b, 0o600); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	text := podcast.ReadableTranscript(lines, voices)
	if err := os.WriteFile(filepath.Join(dir, common.TranscriptTextName), []byte(text), 0o600); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
