package cmd

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Run() {
	// Local dev convenience; deployed environments set real env vars.
	_ = godotenv.Load()

	var command = &cobra.Command{
		Use:   "genserver",
		Short: "Prompt-to-video generation server",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(serveCmd())
	command.AddCommand(generateCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}
