package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"genserver/internal/config"
	"genserver/internal/domain"
	"genserver/internal/infra/openai"
	"genserver/internal/infra/runway"
	"genserver/internal/pipeline"
	"genserver/internal/registry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var kind string
	var command = &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run one generation pipeline to completion and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg := config.Load()

			for _, dir := range []string{cfg.Storage.OutputDir, cfg.Storage.TempDir} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := registry.New(cfg.Storage.Retention)
			scripts := openai.New(cfg.OpenAI)
			media := runway.New(cfg.Runway)
			orch := pipeline.New(store, nil, scripts, media, media, cfg)

			t, err := orch.Run(ctx, domain.TaskKind(kind), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if t.State == domain.StateFailed {
				return fmt.Errorf("generation failed: %s", t.Error)
			}

			log.Info().Str("result", t.Result).Msg("generation finished")
			fmt.Println(t.Result)
			return nil
		},
	}

	command.Flags().StringVar(&kind, "kind", string(domain.KindVideo), "Content kind: video, image or document")
	return command
}
