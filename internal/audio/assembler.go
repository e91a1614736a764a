package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/podify/internal/podcast"
)

const (
	// SpeakerChangeGap separates turns by different speakers.
	SpeakerChangeGap = 800 * time.Millisecond
	// SameSpeakerGap separates consecutive turns by one speaker.
	SameSpeakerGap = 300 * time.Millisecond

	DefaultMusicVolume = 0.10

	normDirName = "norm"
)

// Assets are optional files mixed into every episode. Empty or missing paths
// are skipped.
type Assets struct {
	Music  string
	Intro  string
	Outro  string
	Volume float64
}

// Assembler turns ordered clips into one MP3.
type Assembler struct {
	tool   Tool
	assets Assets
	log    *slog.Logger
}

// NewAssembler returns an Assembler driving tool. A non-positive music
// volume falls back to DefaultMusicVolume.
func NewAssembler(tool Tool, assets Assets, log *slog.Logger) *Assembler {
	if assets.Volume <= 0 {
		assets.Volume = DefaultMusicVolume
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Assembler{tool: tool, assets: assets, log: log}
}

// Gap returns the pause inserted after a turn by from when to speaks next.
func Gap(from, to podcast.Speaker) time.Duration {
	if from != to {
		return SpeakerChangeGap
	}
	return SameSpeakerGap
}

// Assemble builds outputPath from clips and returns its measured duration in
// seconds. Only the dialogue track is mandatory; music and intro/outro are
// skipped with a warning when they fail. notify may be nil.
func (a *Assembler) Assemble(ctx context.Context, clips []podcast.AudioClip, includeMusic bool, workDir, outputPath string, notify podcast.Notify) (float64, error) {
	if notify == nil {
		notify = func(string, int) {}
	}
	if len(clips) == 0 {
		return 0, &podcast.AssemblyError{Op: "dialogue", Err: podcast.ErrNoClips}
	}
	notify("Assembling podcast...", 82)

	dialogue := filepath.Join(workDir, "dialogue.mp3")
	if err := a.buildDialogue(ctx, clips, workDir, dialogue); err != nil {
		return 0, &podcast.AssemblyError{Op: "dialogue", Err: err}
	}
	a.log.Info("dialogue track assembled", "clips", len(clips))
	notify("Dialogue track assembled", 87)

	track := dialogue
	if includeMusic {
		if music, ok := exists(a.assets.Music); ok {
			mixed := filepath.Join(workDir, "mixed.mp3")
			if err := a.tool.Mix(ctx, dialogue, music, a.assets.Volume, mixed); err != nil {
				a.log.Warn("music mix failed, continuing without music", "err", err)
			} else {
				track = mixed
				notify("Background music mixed", 90)
			}
		} else {
			a.log.Warn("no background music found, skipping", "path", a.assets.Music)
		}
	}

	if err := a.wrap(ctx, track, workDir, outputPath); err != nil {
		return 0, &podcast.AssemblyError{Op: "finalize", Err: err}
	}

	duration, err := a.tool.Probe(ctx, outputPath)
	if errors.Is(err, ErrNoAudioStream) {
		return 0, &podcast.AssemblyError{Op: "verify", Err: err}
	}
	if err != nil {
		a.log.Warn("duration probe failed", "path", outputPath, "err", err)
		duration = 0
	}
	a.log.Info("podcast assembled", "path", outputPath, "duration", time.Duration(duration*float64(time.Second)).Round(time.Second))
	return duration, nil
}

func (a *Assembler) buildDialogue(ctx context.Context, clips []podcast.AudioClip, workDir, out string) error {
	normDir := filepath.Join(workDir, normDirName)
	if err := os.MkdirAll(normDir, 0o750); err != nil {
		return fmt.Errorf("create norm dir: %w", err)
	}

	parts := make([]string, 0, 2*len(clips))
	for i, c := range clips {
		norm, err := filepath.Abs(filepath.Join(normDir, fmt.Sprintf("c%03d.wav", i)))
		if err != nil {
			return err
		}
		if err := a.tool.Normalize(ctx, c.Path, norm); err != nil {
			return fmt.Errorf("normalize clip %d: %w", i, err)
		}
		parts = append(parts, norm)

		if i < len(clips)-1 {
			gap, err := filepath.Abs(filepath.Join(normDir, fmt.Sprintf("g%03d.wav", i)))
			if err != nil {
				return err
			}
			if err := a.tool.Silence(ctx, Gap(c.Speaker, clips[i+1].Speaker), gap); err != nil {
				return fmt.Errorf("silence %d: %w", i, err)
			}
			parts = append(parts, gap)
		}
	}

	list := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(list, parts); err != nil {
		return err
	}
	return a.tool.Concat(ctx, list, out, EncodeDialogue)
}

// wrap adds intro and outro around track, or copies track through when
// neither is available.
func (a *Assembler) wrap(ctx context.Context, track, workDir, out string) error {
	intro, hasIntro := exists(a.assets.Intro)
	outro, hasOutro := exists(a.assets.Outro)
	if !hasIntro && !hasOutro {
		return a.tool.Copy(track, out)
	}

	absTrack, err := filepath.Abs(track)
	if err != nil {
		return err
	}
	var parts []string
	if hasIntro {
		parts = append(parts, intro)
	}
	parts = append(parts, absTrack)
	if hasOutro {
		parts = append(parts, outro)
	}
	list := filepath.Join(workDir, "final_concat.txt")
	if err := writeConcatList(list, parts); err != nil {
		return err
	}
	if err := a.tool.Concat(ctx, list, out, EncodeFinal); err != nil {
		a.log.Warn("intro/outro concat failed, using main track", "err", err)
		return a.tool.Copy(track, out)
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer list of absolute paths.
func writeConcatList(path string, files []string) error {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		// Single quotes inside a quoted path are escaped as '\''.
		fmt.Fprintf(&b, "file '%s'", strings.ReplaceAll(f, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func exists(path string) (string, bool) {
	if strings.TrimSpace(path) == "" {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	return abs, true
}
