package cmd

import (
	"context"
	"os"

	"genserver/internal/api"
	"genserver/internal/bus"
	"genserver/internal/config"
	"genserver/internal/infra/openai"
	"genserver/internal/infra/runway"
	"genserver/internal/pipeline"
	"genserver/internal/registry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the generation API server",
		Run: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg := config.Load()

			for _, dir := range []string{cfg.Storage.OutputDir, cfg.Storage.TempDir} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
				}
			}
			if cfg.OpenAI.APIKey == "" || cfg.Runway.APIKey == "" {
				log.Warn().Msg("provider API keys missing; generation requests will fail")
			}

			ctx := context.Background()
			store := registry.New(cfg.Storage.Retention)
			hub := bus.NewHub()
			go hub.Run(ctx)
			go store.RunSweeper(ctx, cfg.Storage.SweepInterval)

			scripts := openai.New(cfg.OpenAI)
			media := runway.New(cfg.Runway)
			orch := pipeline.New(store, hub, scripts, media, media, cfg)

			log.Info().
				Str("output", cfg.Storage.OutputDir).
				Dur("retention", cfg.Storage.Retention).
				Msg("generation server starting")

			server := api.NewServer(orch, store, hub, cfg.Storage.OutputDir)
			server.Run(port)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
