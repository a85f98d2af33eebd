package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNoValidClips = errors.New("no valid clips to assemble")

// Assembler concatenates ordered scene clips into one output artifact with
// the external media tool in stream-copy mode, so clips are never
// re-encoded.
type Assembler struct {
	FFmpegBin string
	OutputDir string
}

// Run filters out missing clips and produces the final artifact. One valid
// clip is copied directly; several are concatenated via an ordered manifest.
// Scene order is preserved exactly; skipped scenes are simply absent.
func (a *Assembler) Run(ctx context.Context, clips []string) (string, error) {
	valid := make([]string, 0, len(clips))
	for _, p := range clips {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			log.Ctx(ctx).Warn().Str("clip", p).Msg("clip file missing, dropped from assembly")
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return "", ErrNoValidClips
	}

	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return "", err
	}
	outPath := filepath.Join(a.OutputDir, fmt.Sprintf("combined_video_%s.mp4", time.Now().Format("20060102_150405")))

	if len(valid) == 1 {
		// No re-encode needed for a single clip, just materialize it under
		// the final name.
		if err := copyFile(valid[0], outPath); err != nil {
			return "", fmt.Errorf("copy single clip: %w", err)
		}
		log.Ctx(ctx).Info().Str("output", outPath).Msg("single clip promoted to final video")
		return outPath, nil
	}

	if err := a.concat(ctx, valid, outPath); err != nil {
		return "", err
	}
	log.Ctx(ctx).Info().Int("clips", len(valid)).Str("output", outPath).Msg("clips concatenated")
	return outPath, nil
}

func (a *Assembler) concat(ctx context.Context, clips []string, outPath string) error {
	manifest, err := a.writeManifest(clips)
	if err != nil {
		return err
	}
	defer func() {
		// The manifest is transient; failing to remove it is not an error.
		if err := os.Remove(manifest); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("manifest", manifest).Msg("could not remove concat manifest")
		}
	}()

	cmd := exec.CommandContext(ctx, a.FFmpegBin, "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		outPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func (a *Assembler) writeManifest(clips []string) (string, error) {
	var b strings.Builder
	for _, p := range clips {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}

	path := filepath.Join(a.OutputDir, "concat_list.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
