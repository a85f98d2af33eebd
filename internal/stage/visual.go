// Package stage holds the pipeline stages. Stages return plain positional
// results; an empty slot marks a scene whose generation exhausted its
// retries. Task-state bookkeeping belongs to the orchestrator, not here.
package stage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"genserver/internal/config"
	"genserver/internal/domain"
	"genserver/internal/ports"
	"genserver/internal/script"

	"github.com/rs/zerolog/log"
)

// Visual generates one reference-consistent image per scene, strictly in
// scene order: each request carries the previous scene's image as a style
// anchor, so scenes cannot be generated in parallel.
type Visual struct {
	Images  ports.ImageProvider
	TempDir string
	Cfg     config.Pipeline

	// OnScene, when set, is called after each scene attempt completes
	// (success or exhausted retries) with the number of scenes done.
	OnScene func(done, total int)
}

// Run returns image paths index-aligned to scenes. A slot is empty when that
// scene's generation permanently failed; the reference chain then resets to
// none for the following scene instead of carrying a stale anchor.
func (v *Visual) Run(ctx context.Context, scenes []domain.Scene) []string {
	paths := make([]string, len(scenes))
	ref := ""

	for i, sc := range scenes {
		name := fmt.Sprintf("image_%02d.png", i+1)
		path := filepath.Join(v.TempDir, name)

		log.Ctx(ctx).Info().
			Int("scene", sc.Number).
			Int("total", len(scenes)).
			Msg("generating scene image")

		if err := v.generateOne(ctx, sc, ref, path); err != nil {
			log.Ctx(ctx).Error().Err(err).Int("scene", sc.Number).Msg("scene image skipped after retries")
			ref = ""
		} else {
			paths[i] = path
			if uri, err := dataURI(path); err != nil {
				log.Ctx(ctx).Warn().Err(err).Int("scene", sc.Number).Msg("could not encode reference image")
				ref = ""
			} else {
				ref = uri
			}
		}

		if v.OnScene != nil {
			v.OnScene(i+1, len(scenes))
		}

		// Rate-limit courtesy between scenes, skipped after the last one.
		if i < len(scenes)-1 {
			sleep(ctx, v.Cfg.ImageDelay)
		}
	}

	log.Ctx(ctx).Info().
		Int("successful", countNonEmpty(paths)).
		Int("total", len(scenes)).
		Msg("visual stage finished")
	return paths
}

func (v *Visual) generateOne(ctx context.Context, sc domain.Scene, ref, path string) error {
	prompt := script.RealismDirective + sc.Description

	var lastErr error
	for attempt := 1; attempt <= v.Cfg.MaxRetries; attempt++ {
		url, err := v.Images.GenerateImage(ctx, prompt, ref)
		if err == nil {
			if err = fetchToFile(ctx, url, path); err == nil {
				return nil
			}
		}
		lastErr = err
		log.Ctx(ctx).Warn().Err(err).
			Int("scene", sc.Number).
			Int("attempt", attempt).
			Int("max", v.Cfg.MaxRetries).
			Msg("image generation attempt failed")

		if attempt < v.Cfg.MaxRetries {
			// Shorter pause than the clip stage; image tasks settle faster.
			sleep(ctx, v.Cfg.RetryDelay/2)
		}
	}
	return fmt.Errorf("image generation failed after %d attempts: %w", v.Cfg.MaxRetries, lastErr)
}

func countNonEmpty(paths []string) int {
	n := 0
	for _, p := range paths {
		if p != "" {
			n++
		}
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
