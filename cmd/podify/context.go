package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jo-hoe/podify/internal/audio"
	"github.com/jo-hoe/podify/internal/blob"
	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/jobs"
	"github.com/jo-hoe/podify/internal/llm"
	llminference "github.com/jo-hoe/podify/internal/llm/inference"
	llmmock "github.com/jo-hoe/podify/internal/llm/mock"
	"github.com/jo-hoe/podify/internal/llm/openrouter"
	"github.com/jo-hoe/podify/internal/logging"
	"github.com/jo-hoe/podify/internal/pipeline"
	"github.com/jo-hoe/podify/internal/tts"
	"github.com/jo-hoe/podify/internal/tts/deepinfra"
	ttsinference "github.com/jo-hoe/podify/internal/tts/inference"
	ttsmock "github.com/jo-hoe/podify/internal/tts/mock"
	"github.com/jo-hoe/podify/internal/tts/openai"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
		if err != nil {
			c.configErr = err
			return
		}
		slog.SetDefault(logger)
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

// app holds the collaborators shared by every command.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	ffmpeg       *audio.FFmpeg
	registry     *feed.Registry
	orchestrator *pipeline.Orchestrator
}

func (c *commandContext) buildApp() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log := c.logger
	if err := os.MkdirAll(cfg.Feed.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	blobStore, err := blob.New(cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	var manifests feed.ManifestStore = feed.NewFileStore(cfg.Feed.Show)
	if cfg.Feed.Manifest == "blob" {
		manifests = feed.NewBlobStore(blobStore, cfg.Feed.Show)
	}

	ff := audio.NewFFmpeg(cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath)
	registry := feed.NewRegistry(manifests, feed.Options{
		MaxEpisodes: cfg.Feed.MaxEpisodes,
		Blob:        blobStore,
		Prober:      ff,
		Log:         log.With("component", "feed"),
	})

	llms := llm.NewRegistry()
	llms.Add(openrouter.New(cfg.LLM.OpenRouter))
	llms.Add(llminference.New(cfg.LLM.Inference))
	llms.Add(llmmock.New(cfg.LLM.Mock))

	voices := tts.NewRegistry()
	voices.Add(deepinfra.New(cfg.TTS.DeepInfra))
	voices.Add(openai.New(cfg.TTS.OpenAI))
	voices.Add(ttsinference.New(cfg.TTS.Inference))
	voices.Add(ttsmock.New(cfg.TTS.Mock))

	asset := func(name string) string {
		if name == "" {
			return ""
		}
		return filepath.Join(cfg.Audio.AssetsDir, name)
	}
	assembler := audio.NewAssembler(ff, audio.Assets{
		Music:  asset(cfg.Audio.MusicFile),
		Intro:  asset(cfg.Audio.IntroFile),
		Outro:  asset(cfg.Audio.OutroFile),
		Volume: cfg.Audio.MusicVolume,
	}, log.With("component", "audio"))

	orch := pipeline.New(pipeline.Deps{
		LLM:         llms,
		TTS:         voices,
		Assembler:   assembler,
		Registry:    registry,
		Script:      llm.Options{ShowName: cfg.Feed.Show.Title},
		Concurrency: cfg.TTS.Concurrency,
		Log:         log.With("component", "pipeline"),
	})
	return &app{cfg: cfg, log: log, ffmpeg: ff, registry: registry, orchestrator: orch}, nil
}

// openJobStore returns the configured job backend. SQLite is fronted by an
// in-process cache.
func (a *app) openJobStore() (jobs.Store, error) {
	capacity := jobs.Capacity{Limit: a.cfg.Jobs.MaxConcurrent, StaleAfter: a.cfg.Jobs.StaleAfter}
	switch a.cfg.Jobs.Backend {
	case "sqlite":
		durable, err := jobs.NewSQLiteStore(a.cfg.Jobs.DatabasePath, capacity, a.log)
		if err != nil {
			return nil, fmt.Errorf("open job store: %w", err)
		}
		return jobs.NewCachedStore(durable, capacity, a.log), nil
	default:
		return jobs.NewMemoryStore(capacity), nil
	}
}
