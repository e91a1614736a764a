package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"3GiB", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseByteSize("bad"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("TEST_BLOB_TOKEN", "secret123")
	t.Setenv("OPENROUTER_API_KEY", "or-key")

	yaml := `
server:
  address: ":0"
  readTimeout: 1s
  writeTimeout: 2s
  idleTimeout: 3s
  maxUploadSize: 1Mi
  workerCount: 1
  apiKey: "key123"
  baseUrl: "https://pods.example.com/"

jobs:
  backend: sqlite
  maxConcurrent: 5
  staleAfter: 10m

llm:
  provider: "openrouter"

tts:
  provider: "mock"
  concurrency: 3

feed:
  outputDir: "` + escapeBackslashes(filepath.Join(dir, "out")) + `"
  maxEpisodes: 10
  manifest: blob
  show:
    title: "My Show"

blob:
  type: http
  http:
    baseUrl: "https://blob.example.com"
    token: "${TEST_BLOB_TOKEN}"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Server.Addr != ":0" {
		t.Fatalf("address = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 1*time.Second || cfg.Server.WriteTimeout != 2*time.Second || cfg.Server.IdleTimeout != 3*time.Second {
		t.Fatalf("timeouts not parsed correctly")
	}
	if uint64(cfg.Server.MaxUploadSize) != 1024*1024 {
		t.Fatalf("maxUploadSize not parsed: %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.BaseURL != "https://pods.example.com" {
		t.Fatalf("baseUrl should be trimmed, got %q", cfg.Server.BaseURL)
	}
	if cfg.Jobs.Backend != "sqlite" || cfg.Jobs.MaxConcurrent != 5 || cfg.Jobs.StaleAfter != 10*time.Minute {
		t.Fatalf("jobs config mismatch: %+v", cfg.Jobs)
	}
	if cfg.TTS.Concurrency != 3 {
		t.Fatalf("tts concurrency = %d", cfg.TTS.Concurrency)
	}
	if cfg.LLM.OpenRouter.APIKey != "or-key" {
		t.Fatalf("openrouter key should come from env, got %q", cfg.LLM.OpenRouter.APIKey)
	}
	if cfg.Blob.HTTP.Token != "secret123" {
		t.Fatalf("env expansion for blob token failed")
	}
	if cfg.Feed.Show.Title != "My Show" || cfg.Feed.Show.Language != "en" {
		t.Fatalf("show defaults not merged: %+v", cfg.Feed.Show)
	}
	if _, err := os.Stat(cfg.Feed.OutputDir); err != nil {
		t.Fatalf("outputDir should be created: %v", err)
	}

	matched, _ := regexp.MatchString(`podify\.db$`, cfg.Jobs.DatabasePath)
	if !matched {
		t.Fatalf("databasePath should end with podify.db, got %s", cfg.Jobs.DatabasePath)
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Jobs.MaxConcurrent != 3 || cfg.Jobs.StaleAfter != 5*time.Minute {
		t.Fatalf("admission defaults = %d/%s", cfg.Jobs.MaxConcurrent, cfg.Jobs.StaleAfter)
	}
	if cfg.TTS.Concurrency != 6 {
		t.Fatalf("tts concurrency default = %d", cfg.TTS.Concurrency)
	}
	if cfg.Feed.MaxEpisodes != 60 || cfg.Audio.MusicVolume != 0.10 {
		t.Fatalf("feed/audio defaults mismatch")
	}
}

func TestParse_RejectsUnknownProviders(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := []string{
		"llm:\n  provider: gpt\n",
		"tts:\n  provider: espeak\n",
		"jobs:\n  backend: redis\n",
		"feed:\n  manifest: blob\n",
		"blob:\n  type: http\n",
		"audio:\n  musicVolume: 1.5\n",
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Fatalf("expected error for config %q", c)
		}
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}
