package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"postergen/internal/infra"
)

type commandContext struct {
	envFile string
	verbose bool
}

func (c *commandContext) logger() *infra.Logger {
	logger := infra.NewLogger("cli")
	if c.verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return &logger
}

func (c *commandContext) config() (*infra.Config, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return nil, err
		}
	} else {
		_ = godotenv.Load()
	}
	return infra.LoadConfig()
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "poster",
		Short:         "Generate character posters from a portrait",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "Load environment from this file instead of .env")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log pipeline progress")

	rootCmd.AddCommand(newCharactersCommand())
	rootCmd.AddCommand(newNormalizeCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))

	return rootCmd
}
