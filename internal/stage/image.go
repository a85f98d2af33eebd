package stage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"genserver/internal/config"
	"genserver/internal/ports"

	"github.com/rs/zerolog/log"
)

// Image produces a single standalone image straight from the task prompt,
// with the same retry discipline as the per-scene visual stage.
type Image struct {
	Images    ports.ImageProvider
	OutputDir string
	Cfg       config.Pipeline
}

func (s *Image) Run(ctx context.Context, prompt string) (string, error) {
	outPath := filepath.Join(s.OutputDir, fmt.Sprintf("generated_image_%s.png", time.Now().Format("20060102_150405")))

	var lastErr error
	for attempt := 1; attempt <= s.Cfg.MaxRetries; attempt++ {
		url, err := s.Images.GenerateImage(ctx, prompt, "")
		if err == nil {
			if err = fetchToFile(ctx, url, outPath); err == nil {
				return outPath, nil
			}
		}
		lastErr = err
		log.Ctx(ctx).Warn().Err(err).
			Int("attempt", attempt).
			Int("max", s.Cfg.MaxRetries).
			Msg("standalone image attempt failed")

		if attempt < s.Cfg.MaxRetries {
			sleep(ctx, s.Cfg.RetryDelay/2)
		}
	}
	return "", fmt.Errorf("image generation failed after %d attempts: %w", s.Cfg.MaxRetries, lastErr)
}
