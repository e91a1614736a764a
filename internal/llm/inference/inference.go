package inference

import (
	"context"

	"github.com/jo-hoe/podify/internal/config"
	infsh "github.com/jo-hoe/podify/internal/inference"
	"github.com/jo-hoe/podify/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client runs a chat app on inference.sh.
type Client struct {
	run *infsh.Client
}

func New(cfg config.InferenceSettings) *Client {
	return &Client{run: infsh.New(cfg)}
}

// WithRunner swaps the underlying run API client, for tests.
func (c *Client) WithRunner(r *infsh.Client) *Client {
	c.run = r
	return c
}

func (c *Client) Name() string { return "inference" }

func (c *Client) Ready() error { return c.run.Ready() }

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := c.run.Run(ctx, map[string]string{
		"system": system,
		"prompt": user,
	})
	if err != nil {
		return "", err
	}
	return infsh.Text(out)
}
