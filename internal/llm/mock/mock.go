package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/llm"
	"github.com/jo-hoe/podify/internal/podcast"
)

var _ llm.Client = (*Client)(nil)

// Client is a deterministic offline stand-in. Script requests get a JSON
// script of the configured length, anything else a one-line description.
type Client struct {
	delay time.Duration
	lines int
}

func New(cfg config.MockLLMSettings) *Client {
	n := cfg.Lines
	if n <= 0 {
		n = 6
	}
	return &Client{delay: cfg.Delay, lines: n}
}

func (c *Client) Name() string { return "mock" }

func (c *Client) Ready() error { return nil }

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	if !strings.Contains(user, "<source_content>") {
		return "A short mock episode generated for testing.", nil
	}

	solo := strings.Contains(system, "all entries as HOST_A")
	lines := make([]podcast.ScriptLine, 0, c.lines)
	for i := 0; i < c.lines; i++ {
		sp := podcast.HostA
		if !solo && i%2 == 1 {
			sp = podcast.HostB
		}
		lines = append(lines, podcast.ScriptLine{Speaker: sp, Text: fmt.Sprintf("Mock line number %d.", i+1)})
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
