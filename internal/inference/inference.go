// Package inference is a small client for the inference.sh run API shared by
// the script and speech providers.
package inference

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
)

const (
	endpointRun       = "v1/run"
	defaultTimeout    = 120 * time.Second
	errorSnippetLimit = 400
)

// Client posts {app, input} to the run endpoint and returns the output field.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	app        string
}

func New(cfg config.InferenceSettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		app:        cfg.App,
	}
}

// WithHTTPClient allows tests to inject a custom HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// Ready reports a missing API key.
func (c *Client) Ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return errors.New("INFERENCE_API_KEY not set")
	}
	return nil
}

func (c *Client) App() string { return c.app }

// Run executes the configured app with input and returns the raw output value.
func (c *Client) Run(ctx context.Context, input any) (json.RawMessage, error) {
	body, err := json.Marshal(runRequest{App: c.app, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	u, err := url.JoinPath(c.baseURL, endpointRun)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("inference.sh status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}
	var out runResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(out.Output) == 0 || string(out.Output) == "null" {
		return nil, errors.New("empty output")
	}
	return out.Output, nil
}

// Text interprets output as either a bare string or an object with a text field.
func Text(output json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(output, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(output, &obj); err != nil {
		return "", fmt.Errorf("decode output: %w", err)
	}
	if obj.Text == "" {
		return "", errors.New("output has no text")
	}
	return obj.Text, nil
}

// AudioURL extracts the audio location from an output object.
func AudioURL(output json.RawMessage) (string, error) {
	var obj struct {
		AudioURL string `json:"audio_url"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(output, &obj); err != nil {
		return "", fmt.Errorf("decode output: %w", err)
	}
	if obj.AudioURL != "" {
		return obj.AudioURL, nil
	}
	if obj.URL != "" {
		return obj.URL, nil
	}
	return "", errors.New("no audio url in output")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type runRequest struct {
	App   string `json:"app"`
	Input any    `json:"input"`
}

type runResponse struct {
	Output json.RawMessage `json:"output"`
}
