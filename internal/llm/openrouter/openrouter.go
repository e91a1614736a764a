package openrouter

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
	"github.com/jo-hoe/podify/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	completionsPath = "v1/chat/completions"

	// OpenRouter attribution headers.
	headerReferer = "HTTP-Referer"
	headerTitle   = "X-Title"

	requestTimeout = 180 * time.Second
	maxErrorBody   = 400

	finishLength = "length"
)

// ErrTruncated is returned when the model stopped at the token limit. A cut
// off script is not valid JSON, so the caller should not try to parse it.
var ErrTruncated = errors.New("completion truncated at max tokens")

// Client implements llm.Client against OpenRouter's OpenAI-compatible chat
// completions API.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	referer  string
	appTitle string
	params   sampling
}

type sampling struct {
	model       string
	temperature float32
	maxTokens   int
}

func New(cfg config.OpenRouterSettings) *Client {
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		endpoint: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		referer:  cfg.Referer,
		appTitle: cfg.AppTitle,
		params: sampling{
			model:       cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		},
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Name() string { return "openrouter" }

func (c *Client) Ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return errors.New("OPENROUTER_API_KEY not set")
	}
	return nil
}

// Complete sends the system and user prompts and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	target, err := url.JoinPath(c.endpoint, completionsPath)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	payload, err := json.Marshal(c.request(system, user))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set(headerReferer, c.referer)
	}
	if c.appTitle != "" {
		req.Header.Set(headerTitle, c.appTitle)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, snippet(body))
	}
	return decodeCompletion(body)
}

func (c *Client) request(system, user string) completionRequest {
	req := completionRequest{
		Model: c.params.model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if c.params.temperature != 0 {
		t := c.params.temperature
		req.Temperature = &t
	}
	if c.params.maxTokens != 0 {
		n := c.params.maxTokens
		req.MaxTokens = &n
	}
	return req
}

// decodeCompletion extracts the text of the first choice. OpenRouter may
// report upstream failures inside a 200 response, so an error object wins
// over any choices.
func decodeCompletion(body []byte) (string, error) {
	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openrouter error %v: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	choice := out.Choices[0]
	if choice.FinishReason == finishLength {
		return "", ErrTruncated
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", errors.New("empty completion")
	}
	return choice.Message.Content, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
