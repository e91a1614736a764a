package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
)

type stubSynth struct {
	name  string
	ready error
}

func (s stubSynth) Name() string { return s.name }
func (s stubSynth) Ready() error { return s.ready }
func (s stubSynth) Synthesize(ctx context.Context, text, voice string) (Audio, error) {
	return Audio{}, nil
}

func TestPrepareForSpeech(t *testing.T) {
	in := "Open the Grimoire at Samhain, then walk deosil. Grimoires stay."
	want := "Open the grim-wahr at sow-in, then walk jess-ul. Grimoires stay."
	if got := PrepareForSpeech(in); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEstimateDuration(t *testing.T) {
	if d := EstimateDuration(string(make([]byte, 500))); d != 30*time.Second {
		t.Fatalf("expected 30s, got %v", d)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Add(stubSynth{name: "mock"})
	r.Add(stubSynth{name: "deepinfra", ready: errors.New("DEEPINFRA_API_KEY not set")})

	if _, err := r.Resolve(podcast.TTSMock); err != nil {
		t.Fatalf("Resolve mock: %v", err)
	}
	if _, err := r.Resolve(podcast.TTSDeepInfra); !podcast.IsConfiguration(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if _, err := r.Resolve(podcast.TTSOpenAI); !podcast.IsConfiguration(err) {
		t.Fatalf("expected ConfigurationError for unregistered provider, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer ts.Close()

	b, err := Download(context.Background(), ts.Client(), ts.URL+"/a.wav")
	if err != nil || string(b) != "audio" {
		t.Fatalf("Download: %q %v", b, err)
	}
	if _, err := Download(context.Background(), ts.Client(), ts.URL+"/missing"); err == nil {
		t.Fatalf("expected error on 404")
	}
}

func TestExtFromContentType(t *testing.T) {
	for ct, want := range map[string]string{
		"audio/mpeg":               "mp3",
		"audio/wav":                "wav",
		"audio/x-wav; charset=foo": "wav",
		"audio/ogg":                "ogg",
		"application/octet-stream": "bin",
	} {
		if got := ExtFromContentType(ct, "bin"); got != want {
			t.Fatalf("%s: got %s want %s", ct, got, want)
		}
	}
}
