package deepinfra

import (
	"bytes"
	"context"
	"encoding/base64"
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
	endpointInference = "v1/inference"
	defaultTimeout    = 120 * time.Second
	errorSnippetLimit = 400
	outputFormat      = "wav"
)

// Client calls the DeepInfra inference endpoint for a Kokoro model.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func New(cfg config.DeepInfraSettings) *Client {
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

func (c *Client) Name() string { return "deepinfra" }

func (c *Client) Ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return errors.New("DEEPINFRA_API_KEY not set")
	}
	return nil
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	body, err := json.Marshal(request{Text: text, Voice: voice, OutputFormat: outputFormat})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("marshal request: %w", err)
	}
	u, err := url.JoinPath(c.baseURL, endpointInference, c.model)
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

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return tts.Audio{}, fmt.Errorf("deepinfra status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "audio/") {
		return tts.Audio{Data: respBytes, Ext: tts.ExtFromContentType(ct, outputFormat)}, nil
	}
	data, err := c.decodeJSON(ctx, respBytes)
	if err != nil {
		return tts.Audio{}, err
	}
	return tts.Audio{Data: data, Ext: outputFormat}, nil
}

// decodeJSON handles the JSON response shapes: top-level audio, nested
// output.audio (both base64, optionally as data URIs) or output.url.
func (c *Client) decodeJSON(ctx context.Context, b []byte) ([]byte, error) {
	var r response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	switch {
	case r.Audio != "":
		return decodeBase64(r.Audio)
	case r.Output != nil && r.Output.Audio != "":
		return decodeBase64(r.Output.Audio)
	case r.Output != nil && r.Output.URL != "":
		return tts.Download(ctx, c.httpClient, r.Output.URL)
	default:
		return nil, errors.New("unexpected deepinfra response format")
	}
}

func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ","); i >= 0 {
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type request struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	OutputFormat string `json:"output_format"`
}

type response struct {
	Audio  string `json:"audio"`
	Output *struct {
		Audio string `json:"audio"`
		URL   string `json:"url"`
	} `json:"output"`
}
