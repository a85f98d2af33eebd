package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"genserver/internal/config"
	"genserver/internal/domain"
	"genserver/internal/ports"

	"github.com/rs/zerolog/log"
)

// Clip generates one short video clip per scene, seeded with the scene's
// image and driven by a motion prompt derived from its description.
type Clip struct {
	Script    ports.ScriptProvider
	Videos    ports.VideoProvider
	OutputDir string
	Cfg       config.Pipeline

	OnScene func(done, total int)
}

// Run returns clip paths index-aligned to scenes. Scenes with no image, and
// scenes whose clip generation exhausts its retries, get empty slots; the
// whole stage never fails on partial results.
func (c *Clip) Run(ctx context.Context, scenes []domain.Scene, images []string) []string {
	paths := make([]string, len(scenes))

	for i, sc := range scenes {
		ok := false
		if images[i] == "" {
			log.Ctx(ctx).Warn().Int("scene", sc.Number).Msg("no scene image, skipping clip")
		} else {
			name := fmt.Sprintf("video_%02d.mp4", i+1)
			path := filepath.Join(c.OutputDir, name)
			if err := c.generateOne(ctx, sc, images[i], path); err != nil {
				log.Ctx(ctx).Error().Err(err).Int("scene", sc.Number).Msg("scene clip skipped after retries")
			} else {
				paths[i] = path
				ok = true
			}
		}

		if c.OnScene != nil {
			c.OnScene(i+1, len(scenes))
		}

		// Delay only after a successful generation, never after a skip or
		// the final scene.
		if ok && i < len(scenes)-1 {
			sleep(ctx, c.Cfg.ClipDelay)
		}
	}

	log.Ctx(ctx).Info().
		Int("successful", countNonEmpty(paths)).
		Int("total", len(scenes)).
		Msg("clip stage finished")
	return paths
}

func (c *Clip) generateOne(ctx context.Context, sc domain.Scene, imagePath, outPath string) error {
	motion, err := c.Script.MotionPrompt(ctx, sc.Description)
	if err != nil {
		// Fall back to the raw description rather than losing the scene.
		log.Ctx(ctx).Warn().Err(err).Int("scene", sc.Number).Msg("motion prompt generation failed, using scene description")
		motion = sc.Description
	}

	seed, err := dataURI(imagePath)
	if err != nil {
		return fmt.Errorf("encode seed image: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.Cfg.MaxRetries; attempt++ {
		url, err := c.Videos.GenerateClip(ctx, seed, motion, sc.Duration)
		if err == nil {
			if err = fetchToFile(ctx, url, outPath); err == nil {
				return nil
			}
		}
		lastErr = err
		log.Ctx(ctx).Warn().Err(err).
			Int("scene", sc.Number).
			Int("attempt", attempt).
			Int("max", c.Cfg.MaxRetries).
			Msg("clip generation attempt failed")

		if attempt < c.Cfg.MaxRetries {
			sleep(ctx, c.Cfg.RetryDelay)
		}
	}
	return fmt.Errorf("clip generation failed after %d attempts: %w", c.Cfg.MaxRetries, lastErr)
}
