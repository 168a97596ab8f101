package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/RubachokBoss/video-submission-checker/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume submissions and serve the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.log

			runCtx := cmd.Context()
			application, err := app.New(runCtx, cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("Failed to create application")
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run(runCtx)
			}()

			// Ожидание сигнала завершения или ошибки сервера
			var runErr error
			select {
			case <-runCtx.Done():
				log.Info().Msg("Shutdown signal received")
			case runErr = <-errCh:
				if runErr != nil {
					log.Error().Err(runErr).Msg("Application stopped with error")
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := application.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown gracefully")
				if runErr == nil {
					runErr = err
				}
			}

			return runErr
		},
	}
}
