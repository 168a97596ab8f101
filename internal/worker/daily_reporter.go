package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/notify"
	"github.com/RubachokBoss/video-submission-checker/internal/repository"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
)

type DailyReporterConfig struct {
	Schedule string
	Location *time.Location
	Timeout  time.Duration
	Now      func() time.Time
}

// DailyReporter sends the end-of-day summary to the admin and archives it.
type DailyReporter struct {
	reports  service.ReportService
	notifier notify.Notifier
	archive  repository.ReportArchive
	logger   zerolog.Logger
	config   DailyReporterConfig
	cron     *cron.Cron
}

// NewDailyReporter validates the schedule up front. archive may be nil.
func NewDailyReporter(
	reports service.ReportService,
	notifier notify.Notifier,
	archive repository.ReportArchive,
	logger zerolog.Logger,
	config DailyReporterConfig,
) (*DailyReporter, error) {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	r := &DailyReporter{
		reports:  reports,
		notifier: notifier,
		archive:  archive,
		logger:   logger,
		config:   config,
		cron:     cron.New(cron.WithLocation(config.Location)),
	}

	if _, err := r.cron.AddFunc(config.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("failed to schedule daily report %q: %w", config.Schedule, err)
	}

	return r, nil
}

func (r *DailyReporter) Start() {
	r.logger.Info().
		Str("schedule", r.config.Schedule).
		Str("timezone", r.config.Location.String()).
		Msg("Daily reporter started")
	r.cron.Start()
}

// Stop prevents new runs and waits for a running one until ctx is done.
func (r *DailyReporter) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *DailyReporter) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	date := r.config.Now().In(r.config.Location).Format(models.DateLayout)
	if _, err := r.RunOnce(ctx, date); err != nil {
		r.logger.Error().Err(err).Str("date", date).Msg("Daily report failed")
	}
}

// RunOnce builds, sends and archives the summary for date.
func (r *DailyReporter) RunOnce(ctx context.Context, date string) (*models.DailySummary, error) {
	summary, err := r.reports.DailySummary(ctx, date)
	if err != nil {
		return nil, err
	}

	var errs []error
	if err := r.notifier.DispatchDailySummary(ctx, summary); err != nil {
		errs = append(errs, fmt.Errorf("failed to send daily summary: %w", err))
	}

	if r.archive != nil {
		body, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return summary, fmt.Errorf("failed to marshal daily summary: %w", err)
		}
		key, err := r.archive.Put(ctx, summary.Date+".json", body)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to archive daily summary: %w", err))
		} else {
			r.logger.Info().Str("key", key).Msg("Daily summary archived")
		}
	}

	r.logger.Info().
		Str("date", summary.Date).
		Int64("videos", summary.Videos).
		Int64("duplicates", summary.Duplicates).
		Int64("anomalous", summary.Anomalous).
		Msg("Daily report sent")

	return summary, errors.Join(errs...)
}
