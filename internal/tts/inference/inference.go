package inference

import (
	"context"
	"net/http"
	"time"

	"github.com/jo-hoe/podify/internal/config"
	infsh "github.com/jo-hoe/podify/internal/inference"
	"github.com/jo-hoe/podify/internal/tts"
)

var _ tts.Synthesizer = (*Client)(nil)

// Client runs a speech app on inference.sh and downloads the resulting file.
type Client struct {
	run      *infsh.Client
	download *http.Client
}

func New(cfg config.InferenceSettings) *Client {
	return &Client{
		run:      infsh.New(cfg),
		download: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithHTTPClient routes both the run call and the download through h.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.run.WithHTTPClient(h)
	c.download = h
	return c
}

func (c *Client) Name() string { return "inference" }

func (c *Client) Ready() error { return c.run.Ready() }

func (c *Client) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	out, err := c.run.Run(ctx, map[string]string{"text": text, "voice": voice})
	if err != nil {
		return tts.Audio{}, err
	}
	u, err := infsh.AudioURL(out)
	if err != nil {
		return tts.Audio{}, err
	}
	data, err := tts.Download(ctx, c.download, u)
	if err != nil {
		return tts.Audio{}, err
	}
	return tts.Audio{Data: data, Ext: "wav"}, nil
}
