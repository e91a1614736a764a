package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/tts"
)

var _ tts.Synthesizer = (*Client)(nil)

const (
	endpointSpeech    = "v1/audio/speech"
	defaultTimeout    = 120 * time.Second
	errorSnippetLimit = 400
	defaultVoice      = "nova"
)

// voiceMap translates Kokoro voice ids into OpenAI voice names.
var voiceMap = map[string]string{
	"af_heart":   "nova",
	"af_sarah":   "shimmer",
	"am_michael": "echo",
	"am_adam":    "onyx",
	"bf_emma":    "fable",
	"bm_george":  "alloy",
}

// MapVoice returns the OpenAI voice for a Kokoro id, defaulting to nova.
func MapVoice(id string) string {
	if v, ok := voiceMap[id]; ok {
		return v
	}
	return defaultVoice
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func New(cfg config.OpenAISettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return errors.New("OPENAI_API_KEY not set")
	}
	return nil
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	body, err := json.Marshal(request{
		Model:          c.model,
		Voice:          MapVoice(voice),
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("marshal request: %w", err)
	}
	u, err := url.JoinPath(c.baseURL, endpointSpeech)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return tts.Audio{}, ctx.Err()
		}
		return tts.Audio{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tts.Audio{}, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(b), errorSnippetLimit))
	}
	if len(b) == 0 {
		return tts.Audio{}, errors.New("openai returned empty audio")
	}
	return tts.Audio{Data: b, Ext: "mp3"}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type request struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}
