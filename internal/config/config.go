package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Jobs   JobsConfig   `yaml:"jobs"`
	LLM    LLMConfig    `yaml:"llm"`
	TTS    TTSConfig    `yaml:"tts"`
	Audio  AudioConfig  `yaml:"audio"`
	Feed   FeedConfig   `yaml:"feed"`
	Blob   BlobConfig   `yaml:"blob"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxUploadSize   ByteSize      `yaml:"maxUploadSize"`
	WorkerCount     int           `yaml:"workerCount"`
	QueueCapacity   int           `yaml:"queueCapacity"`
	APIKey          string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	BaseURL         string        `yaml:"baseUrl"`       // public base used to build audio URLs
	CORSOrigins     []string      `yaml:"corsOrigins"`   // allowed origins; empty disables CORS headers
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"` // time to wait for workers before forced stop
	LogLevel        string        `yaml:"logLevel"`      // debug|info|warn|error
	LogFormat       string        `yaml:"logFormat"`     // text|json
	CallbackRetries int           `yaml:"callbackRetries"`
	CallbackBackoff time.Duration `yaml:"callbackBackoff"`
}

// JobsConfig selects the job store backend and admission limits.
type JobsConfig struct {
	Backend       string        `yaml:"backend"`       // memory|sqlite
	DatabasePath  string        `yaml:"databasePath"`  // defaults to <outputDir>/podify.db
	MaxConcurrent int           `yaml:"maxConcurrent"` // admission limit
	StaleAfter    time.Duration `yaml:"staleAfter"`    // active jobs older than this stop counting
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider   string             `yaml:"provider"` // openrouter|inference|mock
	OpenRouter OpenRouterSettings `yaml:"openrouter"`
	Inference  InferenceSettings  `yaml:"inference"`
	Mock       MockLLMSettings    `yaml:"mock"`
}

// OpenRouterSettings config for an OpenAI-compatible chat completions endpoint.
type OpenRouterSettings struct {
	BaseURL     string  `yaml:"baseUrl"`
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	Referer     string  `yaml:"referer"`
	AppTitle    string  `yaml:"appTitle"`
}

// InferenceSettings config for the inference.sh run API, shared by LLM and TTS.
type InferenceSettings struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	App     string `yaml:"app"`
}

// MockLLMSettings config for the deterministic script generator.
type MockLLMSettings struct {
	Delay time.Duration `yaml:"delay"`
	Lines int           `yaml:"lines"`
}

// TTSConfig selects the speech provider and scheduler concurrency.
type TTSConfig struct {
	Provider    string            `yaml:"provider"` // deepinfra|inference|openai|mock
	Concurrency int               `yaml:"concurrency"`
	DeepInfra   DeepInfraSettings `yaml:"deepinfra"`
	OpenAI      OpenAISettings    `yaml:"openai"`
	Inference   InferenceSettings `yaml:"inference"`
	Mock        MockTTSSettings   `yaml:"mock"`
}

type DeepInfraSettings struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

type OpenAISettings struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

type MockTTSSettings struct {
	Delay time.Duration `yaml:"delay"`
}

// AudioConfig locates the external audio tool and optional assets.
type AudioConfig struct {
	FFmpegPath  string  `yaml:"ffmpegPath"`
	FFprobePath string  `yaml:"ffprobePath"`
	AssetsDir   string  `yaml:"assetsDir"`
	MusicFile   string  `yaml:"musicFile"`
	IntroFile   string  `yaml:"introFile"`
	OutroFile   string  `yaml:"outroFile"`
	MusicVolume float64 `yaml:"musicVolume"`
}

// FeedConfig configures the episode registry.
type FeedConfig struct {
	OutputDir   string     `yaml:"outputDir"`
	MaxEpisodes int        `yaml:"maxEpisodes"`
	Manifest    string     `yaml:"manifest"` // file|blob
	Show        ShowConfig `yaml:"show"`
}

// ShowConfig is the show-level part of the manifest.
type ShowConfig struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Link        string `yaml:"link" json:"link"`
	Language    string `yaml:"language" json:"language"`
	Author      string `yaml:"author" json:"author"`
	Email       string `yaml:"email" json:"email"`
	ImageURL    string `yaml:"imageUrl" json:"imageUrl"`
	Category    string `yaml:"category" json:"category"`
	Explicit    bool   `yaml:"explicit" json:"explicit"`
}

// BlobConfig selects the durable object store for audio and manifest.
type BlobConfig struct {
	Type string           `yaml:"type"` // none|fs|http
	FS   FSBlobSettings   `yaml:"fs"`
	HTTP HTTPBlobSettings `yaml:"http"`
}

type FSBlobSettings struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"baseUrl"`
}

type HTTPBlobSettings struct {
	BaseURL string        `yaml:"baseUrl"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// ResolvePath picks the config file: explicit path, then PODIFY_CONFIG, then "config.yaml".
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("PODIFY_CONFIG"); env != "" {
		return env
	}
	return "config.yaml"
}

// Load reads YAML config from path, expands environment variables, and validates it.
// A missing default config file yields the built-in defaults.
func Load(path string) (*Config, error) {
	explicit := path != "" || os.Getenv("PODIFY_CONFIG") != ""
	cleanPath := filepath.Clean(ResolvePath(path))
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvCredentials(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Feed.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure outputDir: %w", err)
	}
	if cfg.Jobs.DatabasePath == "" {
		cfg.Jobs.DatabasePath = filepath.Join(cfg.Feed.OutputDir, "podify.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3456"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Synchronous generation keeps the connection open for the whole run.
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(2 * 1024 * 1024)
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = 2
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = 32
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.CallbackRetries <= 0 {
		cfg.Server.CallbackRetries = 3
	}
	if cfg.Server.CallbackBackoff == 0 {
		cfg.Server.CallbackBackoff = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Server.LogFormat) == "" {
		cfg.Server.LogFormat = "text"
	}
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:3456"
	}

	// Jobs
	if cfg.Jobs.Backend == "" {
		cfg.Jobs.Backend = "memory"
	}
	if cfg.Jobs.MaxConcurrent <= 0 {
		cfg.Jobs.MaxConcurrent = 3
	}
	if cfg.Jobs.StaleAfter == 0 {
		cfg.Jobs.StaleAfter = 5 * time.Minute
	}

	// LLM
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openrouter"
	}
	if cfg.LLM.OpenRouter.BaseURL == "" {
		cfg.LLM.OpenRouter.BaseURL = "https://openrouter.ai/api"
	}
	if cfg.LLM.OpenRouter.Model == "" {
		cfg.LLM.OpenRouter.Model = "anthropic/claude-sonnet-4"
	}
	if cfg.LLM.OpenRouter.Temperature == 0 {
		cfg.LLM.OpenRouter.Temperature = 0.8
	}
	if cfg.LLM.OpenRouter.MaxTokens == 0 {
		cfg.LLM.OpenRouter.MaxTokens = 4096
	}
	if cfg.LLM.Inference.BaseURL == "" {
		cfg.LLM.Inference.BaseURL = "https://api.inference.sh"
	}
	if cfg.LLM.Inference.App == "" {
		cfg.LLM.Inference.App = "openrouter/claude-sonnet-45"
	}
	if cfg.LLM.Mock.Lines <= 0 {
		cfg.LLM.Mock.Lines = 6
	}

	// TTS
	if cfg.TTS.Provider == "" {
		cfg.TTS.Provider = "deepinfra"
	}
	if cfg.TTS.Concurrency <= 0 {
		cfg.TTS.Concurrency = 6
	}
	if cfg.TTS.DeepInfra.BaseURL == "" {
		cfg.TTS.DeepInfra.BaseURL = "https://api.deepinfra.com"
	}
	if cfg.TTS.DeepInfra.Model == "" {
		cfg.TTS.DeepInfra.Model = "hexgrad/Kokoro-82M"
	}
	if cfg.TTS.OpenAI.BaseURL == "" {
		cfg.TTS.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.TTS.OpenAI.Model == "" {
		cfg.TTS.OpenAI.Model = "tts-1"
	}
	if cfg.TTS.Inference.BaseURL == "" {
		cfg.TTS.Inference.BaseURL = "https://api.inference.sh"
	}
	if cfg.TTS.Inference.App == "" {
		cfg.TTS.Inference.App = "infsh/kokoro-tts"
	}

	// Audio
	if cfg.Audio.AssetsDir == "" {
		cfg.Audio.AssetsDir = filepath.Join("public", "audio")
	}
	if cfg.Audio.MusicFile == "" {
		cfg.Audio.MusicFile = "ambient-cosmic.mp3"
	}
	if cfg.Audio.IntroFile == "" {
		cfg.Audio.IntroFile = "intro.mp3"
	}
	if cfg.Audio.OutroFile == "" {
		cfg.Audio.OutroFile = "outro.mp3"
	}
	if cfg.Audio.MusicVolume == 0 {
		cfg.Audio.MusicVolume = 0.10
	}

	// Feed
	if cfg.Feed.OutputDir == "" {
		cfg.Feed.OutputDir = ".podify-output"
	}
	if cfg.Feed.MaxEpisodes <= 0 {
		cfg.Feed.MaxEpisodes = 60
	}
	if cfg.Feed.Manifest == "" {
		cfg.Feed.Manifest = "file"
	}
	applyShowDefaults(&cfg.Feed.Show)

	// Blob
	if cfg.Blob.Type == "" {
		cfg.Blob.Type = "none"
	}
	if cfg.Blob.HTTP.Timeout == 0 {
		cfg.Blob.HTTP.Timeout = 2 * time.Minute
	}
}

// DefaultShow is the show block written into a fresh manifest.
func DefaultShow() ShowConfig {
	var s ShowConfig
	applyShowDefaults(&s)
	return s
}

func applyShowDefaults(s *ShowConfig) {
	if s.Title == "" {
		s.Title = "Podify Podcast"
	}
	if s.Description == "" {
		s.Description = "AI-generated podcast episodes"
	}
	if s.Link == "" {
		s.Link = "https://example.com"
	}
	if s.Language == "" {
		s.Language = "en"
	}
	if s.Author == "" {
		s.Author = "Podify"
	}
	if s.Email == "" {
		s.Email = "podcast@example.com"
	}
	if s.Category == "" {
		s.Category = "Education"
	}
}

// applyEnvCredentials fills provider keys from the conventional environment
// variables when the file leaves them empty.
func applyEnvCredentials(cfg *Config) {
	fill := func(dst *string, env string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&cfg.LLM.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	fill(&cfg.LLM.Inference.APIKey, "INFERENCE_API_KEY")
	fill(&cfg.TTS.DeepInfra.APIKey, "DEEPINFRA_API_KEY")
	fill(&cfg.TTS.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&cfg.TTS.Inference.APIKey, "INFERENCE_API_KEY")
	fill(&cfg.Blob.HTTP.Token, "BLOB_READ_WRITE_TOKEN")
}

func validate(cfg *Config) error {
	switch cfg.Jobs.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("jobs.backend %q not supported", cfg.Jobs.Backend)
	}
	switch cfg.LLM.Provider {
	case "openrouter", "inference", "mock":
	default:
		return fmt.Errorf("llm.provider %q not supported", cfg.LLM.Provider)
	}
	switch cfg.TTS.Provider {
	case "deepinfra", "inference", "openai", "mock":
	default:
		return fmt.Errorf("tts.provider %q not supported", cfg.TTS.Provider)
	}
	switch cfg.Feed.Manifest {
	case "file":
	case "blob":
		if cfg.Blob.Type == "none" {
			return errors.New("feed.manifest=blob requires a blob store")
		}
	default:
		return fmt.Errorf("feed.manifest %q not supported", cfg.Feed.Manifest)
	}
	switch cfg.Blob.Type {
	case "none":
	case "fs":
		if strings.TrimSpace(cfg.Blob.FS.Root) == "" {
			return errors.New("blob.fs.root is required")
		}
	case "http":
		if strings.TrimSpace(cfg.Blob.HTTP.BaseURL) == "" {
			return errors.New("blob.http.baseUrl is required")
		}
		if strings.TrimSpace(cfg.Blob.HTTP.Token) == "" {
			return errors.New("blob.http.token is required")
		}
	default:
		return fmt.Errorf("blob.type %q not supported", cfg.Blob.Type)
	}
	if cfg.Audio.MusicVolume < 0 || cfg.Audio.MusicVolume > 1 {
		return fmt.Errorf("audio.musicVolume must be within [0,1], got %v", cfg.Audio.MusicVolume)
	}
	return nil
}
