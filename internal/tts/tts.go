package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
)

// Audio is one synthesized utterance.
type Audio struct {
	Data []byte
	Ext  string // file extension without the dot, e.g. "wav"
}

// Synthesizer converts text to speech with a provider voice.
type Synthesizer interface {
	Name() string
	// Ready reports missing credentials without making a request.
	Ready() error
	Synthesize(ctx context.Context, text, voice string) (Audio, error)
}

// EstimateDuration approximates spoken length at 1000 characters per minute.
func EstimateDuration(text string) time.Duration {
	return time.Duration(float64(len(text)) / 1000 * float64(time.Minute))
}

type pronunciation struct {
	re   *regexp.Regexp
	with string
}

func word(w string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + w + `\b`)
}

var pronunciations = []pronunciation{
	{word("grimoire"), "grim-wahr"},
	{word("gibbous"), "gib-us"},
	{word("samhain"), "sow-in"},
	{word("mabon"), "may-bon"},
	{word("imbolc"), "im-olk"},
	{word("litha"), "lee-thah"},
	{word("ostara"), "oh-star-ah"},
	{word("beltane"), "bell-tayn"},
	{word("athame"), "ah-thah-may"},
	{word("deosil"), "jess-ul"},
	{word("widdershins"), "wid-er-shinz"},
}

// PrepareForSpeech respells words the speech models mispronounce. Only the
// text sent to the provider is rewritten; transcripts keep the original.
func PrepareForSpeech(text string) string {
	for _, p := range pronunciations {
		text = p.re.ReplaceAllString(text, p.with)
	}
	return text
}

// Registry holds initialized synthesizers by provider name.
type Registry struct {
	byName map[string]Synthesizer
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Synthesizer)}
}

func (r *Registry) Add(s Synthesizer) {
	r.byName[s.Name()] = s
}

func (r *Registry) Get(name string) (Synthesizer, bool) {
	s, ok := r.byName[name]
	return s, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the synthesizer for provider or a ConfigurationError.
func (r *Registry) Resolve(provider podcast.TTSProvider) (Synthesizer, error) {
	s, ok := r.Get(string(provider))
	if !ok {
		return nil, &podcast.ConfigurationError{Op: "tts", Err: fmt.Errorf("provider %q not configured", provider)}
	}
	if err := s.Ready(); err != nil {
		return nil, &podcast.ConfigurationError{Op: "tts " + s.Name(), Err: err}
	}
	return s, nil
}

// Download fetches an audio file referenced by a provider response.
func Download(ctx context.Context, c *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("download audio: empty body")
	}
	return b, nil
}

// ExtFromContentType maps an audio MIME type to a file extension.
func ExtFromContentType(ct, fallback string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "audio/mpeg"), strings.Contains(ct, "audio/mp3"):
		return "mp3"
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "audio/ogg"):
		return "ogg"
	case strings.Contains(ct, "audio/flac"):
		return "flac"
	default:
		return fallback
	}
}
