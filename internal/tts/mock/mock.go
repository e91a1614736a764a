package mock

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/tts"
)

var _ tts.Synthesizer = (*Client)(nil)

const (
	sampleRate    = 16000
	bitsPerSample = 16
	channels      = 1
)

// Client produces silent WAV files sized to the estimated speaking time.
type Client struct {
	delay time.Duration
}

func New(cfg config.MockTTSSettings) *Client {
	return &Client{delay: cfg.Delay}
}

func (c *Client) Name() string { return "mock" }

func (c *Client) Ready() error { return nil }

func (c *Client) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return tts.Audio{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return tts.Audio{}, err
	}
	d := tts.EstimateDuration(text)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return tts.Audio{Data: SilentWAV(d), Ext: "wav"}, nil
}

// SilentWAV renders d of 16 kHz mono PCM silence.
func SilentWAV(d time.Duration) []byte {
	samples := int(d.Seconds() * sampleRate)
	dataLen := samples * channels * bitsPerSample / 8
	var b bytes.Buffer
	b.Grow(44 + dataLen)
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bitsPerSample))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}
