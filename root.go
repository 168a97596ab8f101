package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RubachokBoss/video-submission-checker/internal/config"
	"github.com/RubachokBoss/video-submission-checker/pkg/logger"
)

// commandContext loads configuration once per invocation.
type commandContext struct {
	configFile string
	cfg        *config.Config
	log        zerolog.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.Load(c.configFile)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.log = logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{log: logger.New()}

	serve := newServeCommand(ctx)

	rootCmd := &cobra.Command{
		Use:           "submission-service",
		Short:         "Video submission duplicate and anomaly checker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		// serve is the default
		RunE: serve.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFile, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
