package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	sampleRate  = "44100"
	channels    = "2"
	pcmCodec    = "pcm_s16le"
	mp3Codec    = "libmp3lame"
	mp3Bitrate  = "192k"
	mp3VBRLevel = "2"
)

// Encoding selects the MP3 settings used when concatenating.
type Encoding int

const (
	// EncodeDialogue resamples to 44.1 kHz stereo at 192 kbps CBR.
	EncodeDialogue Encoding = iota
	// EncodeFinal uses VBR quality 2 and keeps the input layout.
	EncodeFinal
)

// Tool is the set of audio operations the assembler needs.
type Tool interface {
	Normalize(ctx context.Context, in, out string) error
	Silence(ctx context.Context, d time.Duration, out string) error
	// Concat joins the files named in an ffmpeg concat list.
	Concat(ctx context.Context, listPath, out string, enc Encoding) error
	// Mix loops music under dialogue at volume, cut to the dialogue length.
	Mix(ctx context.Context, dialogue, music string, volume float64, out string) error
	Copy(src, dst string) error
	// Probe returns the duration in seconds.
	Probe(ctx context.Context, path string) (float64, error)
}

// FFmpeg implements Tool with the ffmpeg and ffprobe command line programs.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
}

var _ Tool = (*FFmpeg)(nil)

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpeg:  defaultBinary(ffmpegPath, "ffmpeg"),
		ffprobe: defaultBinary(ffprobePath, "ffprobe"),
	}
}

func defaultBinary(configured, name string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	return name
}

// Check reports whether both binaries can be resolved.
func (f *FFmpeg) Check() error {
	for _, bin := range []string{f.ffmpeg, f.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("binary %q not found", bin)
		}
	}
	return nil
}

func (f *FFmpeg) Normalize(ctx context.Context, in, out string) error {
	return run(ctx, f.ffmpeg, "-y", "-i", in, "-ar", sampleRate, "-ac", channels, "-c:a", pcmCodec, out)
}

func (f *FFmpeg) Silence(ctx context.Context, d time.Duration, out string) error {
	return run(ctx, f.ffmpeg,
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r="+sampleRate+":cl=stereo",
		"-t", strconv.FormatFloat(d.Seconds(), 'f', 3, 64),
		"-c:a", pcmCodec,
		out,
	)
}

func (f *FFmpeg) Concat(ctx context.Context, listPath, out string, enc Encoding) error {
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath}
	switch enc {
	case EncodeDialogue:
		args = append(args, "-ar", sampleRate, "-ac", channels, "-c:a", mp3Codec, "-b:a", mp3Bitrate)
	default:
		args = append(args, "-c:a", mp3Codec, "-q:a", mp3VBRLevel)
	}
	return run(ctx, f.ffmpeg, append(args, out)...)
}

func (f *FFmpeg) Mix(ctx context.Context, dialogue, music string, volume float64, out string) error {
	filter := fmt.Sprintf("[1:a]volume=%s[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=3",
		strconv.FormatFloat(volume, 'f', -1, 64))
	return run(ctx, f.ffmpeg,
		"-y",
		"-i", dialogue,
		"-stream_loop", "-1",
		"-i", music,
		"-filter_complex", filter,
		"-c:a", mp3Codec,
		"-q:a", mp3VBRLevel,
		out,
	)
}

func (f *FFmpeg) Copy(src, dst string) error {
	return copyFile(src, dst)
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	res, err := Inspect(ctx, f.ffprobe, path)
	if err != nil {
		return 0, err
	}
	d, err := res.AudioDuration()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return d, nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, lastLines(stderr.String(), 5))
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's chatty output, where the error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths are produced by the assembler
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
