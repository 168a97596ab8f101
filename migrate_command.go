package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RubachokBoss/video-submission-checker/internal/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var force int

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back ledger migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			direction := "up"
			if len(args) > 0 {
				direction = args[0]
			}

			migrator, err := database.NewMigrator(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("force") {
				if err := migrator.Force(force); err != nil {
					return err
				}
				ctx.log.Info().Int("version", force).Msg("Migration version forced")
				return nil
			}

			switch direction {
			case "up":
				if err := migrator.Up(); err != nil {
					return err
				}
				ctx.log.Info().Msg("Migrations applied successfully")
			case "down":
				if err := migrator.Down(); err != nil {
					return err
				}
				ctx.log.Info().Msg("Migrations rolled back successfully")
			case "version":
				version, dirty, err := migrator.Version()
				if err != nil {
					return err
				}
				suffix := ""
				if dirty {
					suffix = " (dirty)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatUint(uint64(version), 10)+suffix)
			default:
				return fmt.Errorf("invalid migration direction %q, use up, down or version", direction)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&force, "force", 0, "Force the schema version without running migrations")
	return cmd
}
