// Package pipeline sequences the generation stages for one task and is the
// single writer of that task's registry record. Stages return plain results;
// all status/progress bookkeeping and bus emits happen here.
package pipeline

import (
	"context"
	"fmt"

	"genserver/internal/config"
	"genserver/internal/domain"
	"genserver/internal/ports"
	"genserver/internal/registry"
	"genserver/internal/script"
	"genserver/internal/stage"

	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Store    *registry.Store
	Notifier ports.Notifier
	Script   ports.ScriptProvider
	Images   ports.ImageProvider
	Videos   ports.VideoProvider
	Cfg      *config.Config
}

func New(store *registry.Store, notifier ports.Notifier, scriptP ports.ScriptProvider, images ports.ImageProvider, videos ports.VideoProvider, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Notifier: notifier,
		Script:   scriptP,
		Images:   images,
		Videos:   videos,
		Cfg:      cfg,
	}
}

// Submit registers a new task and starts its pipeline in the background.
// The returned task is the pending record; callers poll or subscribe for
// progress. The pipeline keeps running after the submitting request ends.
func (o *Orchestrator) Submit(ctx context.Context, kind domain.TaskKind, prompt string) (domain.Task, error) {
	if !kind.Valid() {
		return domain.Task{}, fmt.Errorf("unknown task kind %q", kind)
	}

	t := o.Store.Create(kind)
	go o.run(context.WithoutCancel(ctx), t.ID, kind, prompt)
	return t, nil
}

// Run executes the pipeline synchronously; used by the one-shot CLI mode.
func (o *Orchestrator) Run(ctx context.Context, kind domain.TaskKind, prompt string) (domain.Task, error) {
	if !kind.Valid() {
		return domain.Task{}, fmt.Errorf("unknown task kind %q", kind)
	}

	t := o.Store.Create(kind)
	o.run(ctx, t.ID, kind, prompt)
	return o.Store.Get(t.ID)
}

func (o *Orchestrator) run(ctx context.Context, id string, kind domain.TaskKind, prompt string) {
	ctx = log.With().Str("task_id", id).Str("kind", string(kind)).Logger().WithContext(ctx)
	log.Ctx(ctx).Info().Msg("pipeline started")

	o.set(id, running(5, "Initializing generation pipeline..."))

	var err error
	switch kind {
	case domain.KindVideo:
		err = o.runVideo(ctx, id, prompt)
	case domain.KindImage:
		err = o.runImage(ctx, id, prompt)
	case domain.KindDocument:
		err = o.runDocument(ctx, id, prompt)
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("pipeline failed")
		o.fail(id, err)
		return
	}
	log.Ctx(ctx).Info().Msg("pipeline completed")
}

func (o *Orchestrator) runVideo(ctx context.Context, id, prompt string) error {
	scenes, images, err := o.scriptAndVisuals(ctx, id, prompt, 30)
	if err != nil {
		return err
	}

	clips := stage.Clip{
		Script:    o.Script,
		Videos:    o.Videos,
		OutputDir: o.Cfg.Storage.OutputDir,
		Cfg:       o.Cfg.Pipeline,
		OnScene: func(done, total int) {
			o.set(id, running(60+20*done/total, fmt.Sprintf("Generating scene clips (%d/%d)...", done, total)))
		},
	}
	clipPaths := clips.Run(ctx, scenes, images)

	o.set(id, running(90, "Combining scene clips into the final video..."))
	asm := stage.Assembler{FFmpegBin: o.Cfg.Storage.FFmpegBin, OutputDir: o.Cfg.Storage.OutputDir}
	out, err := asm.Run(ctx, clipPaths)
	if err != nil {
		return err
	}

	o.complete(id, out, "Video generation completed successfully")
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, id, prompt string) error {
	o.set(id, running(10, "Generating image..."))

	img := stage.Image{Images: o.Images, OutputDir: o.Cfg.Storage.OutputDir, Cfg: o.Cfg.Pipeline}
	out, err := img.Run(ctx, prompt)
	if err != nil {
		return err
	}

	o.complete(id, out, "Image generation completed successfully")
	return nil
}

func (o *Orchestrator) runDocument(ctx context.Context, id, prompt string) error {
	scenes, images, err := o.scriptAndVisuals(ctx, id, prompt, 50)
	if err != nil {
		return err
	}

	o.set(id, running(90, "Rendering document..."))
	doc := stage.Document{OutputDir: o.Cfg.Storage.OutputDir}
	out, err := doc.Run(ctx, prompt, scenes, images)
	if err != nil {
		return err
	}

	o.complete(id, out, "Document generation completed successfully")
	return nil
}

// scriptAndVisuals runs the shared front of the pipeline: script writing,
// scene decomposition and per-scene image generation. visualSpan is how much
// progress the visual stage covers starting from the 30% parse milestone.
func (o *Orchestrator) scriptAndVisuals(ctx context.Context, id, prompt string, visualSpan int) ([]domain.Scene, []string, error) {
	o.set(id, running(10, "Generating script and scene breakdown..."))
	text, err := o.Script.GenerateScript(ctx, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("script generation: %w", err)
	}

	scenes, err := script.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	o.set(id, running(30, fmt.Sprintf("Parsed %d scenes (%.0f seconds total)", len(scenes), domain.TotalDuration(scenes))))

	visuals := stage.Visual{
		Images:  o.Images,
		TempDir: o.Cfg.Storage.TempDir,
		Cfg:     o.Cfg.Pipeline,
		OnScene: func(done, total int) {
			o.set(id, running(30+visualSpan*done/total, fmt.Sprintf("Generating scene visuals (%d/%d)...", done, total)))
		},
	}
	images := visuals.Run(ctx, scenes)

	ok := 0
	for _, p := range images {
		if p != "" {
			ok++
		}
	}
	if ok == 0 {
		return nil, nil, fmt.Errorf("no scene images were generated")
	}
	return scenes, images, nil
}

func running(progress int, msg string) registry.Patch {
	state := domain.StateRunning
	return registry.Patch{State: &state, Progress: &progress, Message: &msg}
}

func (o *Orchestrator) complete(id, result, msg string) {
	state := domain.StateCompleted
	progress := 100
	o.set(id, registry.Patch{State: &state, Progress: &progress, Message: &msg, Result: &result})
}

// fail records the terminal failed state and emits the final bus event; no
// raw stage error ever crosses above the orchestrator.
func (o *Orchestrator) fail(id string, cause error) {
	state := domain.StateFailed
	msg := "Generation failed"
	errMsg := cause.Error()
	o.set(id, registry.Patch{State: &state, Message: &msg, Error: &errMsg})
}

// set is the single emit path: registry first, then best-effort fan-out.
func (o *Orchestrator) set(id string, p registry.Patch) {
	t, err := o.Store.Update(id, p)
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("task update rejected")
		return
	}
	if o.Notifier != nil {
		o.Notifier.Publish(id, t)
	}
}
