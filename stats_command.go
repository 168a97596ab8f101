package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RubachokBoss/video-submission-checker/internal/database"
	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/repository"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var (
		date   string
		worker string
		search string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ledger statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Reports.Location()
			if err != nil {
				return err
			}

			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ledger := repository.NewLedgerRepository(db, cfg.Database.Driver, ctx.log)
			reports := service.NewReportService(ledger, ctx.log, service.ReportConfig{
				SearchLimit: cfg.Reports.SearchLimit,
				Location:    loc,
			})

			out := cmd.OutOrStdout()
			switch {
			case worker != "":
				stats, err := reports.GetWorkerStats(cmd.Context(), worker)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderWorkerStats(stats))
			case search != "":
				result, err := reports.Search(cmd.Context(), search)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderSearch(result.Records))
			default:
				stats, err := reports.GetStats(cmd.Context(), date)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderLedgerStats(stats))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day counted as today (YYYY-MM-DD)")
	cmd.Flags().StringVar(&worker, "worker", "", "Show one worker's statistics")
	cmd.Flags().StringVar(&search, "search", "", "Find submissions by username or worker id")
	return cmd
}

func renderLedgerStats(s *models.LedgerStats) string {
	return renderTable(
		[]string{"Date", "Today", "Duplicates", "Anomalies", "Total"},
		[][]string{{
			s.Date,
			strconv.FormatInt(s.Today, 10),
			strconv.FormatInt(s.Duplicates, 10),
			strconv.FormatInt(s.Anomalous, 10),
			strconv.FormatInt(s.Total, 10),
		}},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderWorkerStats(s *models.WorkerStats) string {
	return renderTable(
		[]string{"Worker", "Total", "Last 7 days", "Avg duration"},
		[][]string{{
			s.WorkerID,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.LastWeek),
			strconv.Itoa(s.AvgDuration) + "s",
		}},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}

func renderSearch(records []models.LedgerRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date + " " + r.Time,
			r.WorkerID,
			r.Username,
			strconv.Itoa(r.Duration) + "s",
			humanize.IBytes(uint64(r.FileSize)),
			r.Status,
			models.JoinAnomalies(r.Anomalies),
		})
	}
	return renderTable(
		[]string{"Received", "Worker", "Username", "Duration", "Size", "Status", "Anomalies"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}
