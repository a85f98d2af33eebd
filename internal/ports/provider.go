package ports

import (
	"context"
	"errors"

	"genserver/internal/domain"
)

// ErrGenerationFailed is the provider-side "generation task failed" signal.
// It is retried by the stages exactly like transport failures.
var ErrGenerationFailed = errors.New("provider generation task failed")

// ScriptProvider writes scripts and rewrites scene descriptions into motion
// prompts for clip generation.
type ScriptProvider interface {
	GenerateScript(ctx context.Context, prompt string) (string, error)
	MotionPrompt(ctx context.Context, sceneDescription string) (string, error)
}

// ImageProvider turns a text prompt, plus an optional reference image given
// as a data URI (empty means none), into a fetchable image URL.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt, refImage string) (string, error)
}

// VideoProvider turns a seed image (data URI) and a motion prompt into a
// fetchable clip URL of roughly the requested duration.
type VideoProvider interface {
	GenerateClip(ctx context.Context, seedImage, motionPrompt string, duration float64) (string, error)
}

// Notifier fans a task snapshot out to progress observers. Delivery is
// best-effort; the registry remains the source of truth.
type Notifier interface {
	Publish(taskID string, t domain.Task)
}
