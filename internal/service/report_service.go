package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

// LedgerReader is the read side of the ledger used by reporting.
type LedgerReader interface {
	Search(ctx context.Context, query string, limit int) ([]models.LedgerRecord, error)
	GetStats(ctx context.Context, date string) (*models.LedgerStats, error)
	GetWorkerStats(ctx context.Context, workerID, afterDate string) (*models.WorkerStats, error)
	GetDailySummary(ctx context.Context, date string) (*models.DailySummary, error)
}

type ReportService interface {
	// GetStats returns all-time totals plus the count for date (today when empty).
	GetStats(ctx context.Context, date string) (*models.LedgerStats, error)
	Search(ctx context.Context, query string) (*models.SearchReportsResponse, error)
	GetWorkerStats(ctx context.Context, workerID string) (*models.WorkerStats, error)
	DailySummary(ctx context.Context, date string) (*models.DailySummary, error)
}

type ReportConfig struct {
	SearchLimit int
	// WorkerWindow is how far back GetWorkerStats looks for its recent figures.
	WorkerWindow time.Duration
	Location     *time.Location
	Now          func() time.Time
}

type reportService struct {
	ledger LedgerReader
	logger zerolog.Logger
	config ReportConfig
}

func NewReportService(ledger LedgerReader, logger zerolog.Logger, config ReportConfig) ReportService {
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	if config.WorkerWindow <= 0 {
		config.WorkerWindow = 7 * 24 * time.Hour
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &reportService{
		ledger: ledger,
		logger: logger,
		config: config,
	}
}

func (s *reportService) today() string {
	return s.config.Now().In(s.config.Location).Format(models.DateLayout)
}

func (s *reportService) normalizeDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.today(), nil
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: bad date %q", models.ErrInvalidQuery, date)
	}
	return date, nil
}

func (s *reportService) GetStats(ctx context.Context, date string) (*models.LedgerStats, error) {
	date, err := s.normalizeDate(date)
	if err != nil {
		return nil, err
	}

	stats, err := s.ledger.GetStats(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

func (s *reportService) Search(ctx context.Context, query string) (*models.SearchReportsResponse, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", models.ErrInvalidQuery)
	}

	records, err := s.ledger.Search(ctx, query, s.config.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search ledger: %w", err)
	}
	if records == nil {
		records = []models.LedgerRecord{}
	}

	return &models.SearchReportsResponse{
		Query:   query,
		Records: records,
		Total:   len(records),
	}, nil
}

func (s *reportService) GetWorkerStats(ctx context.Context, workerID string) (*models.WorkerStats, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, fmt.Errorf("%w: empty worker_id", models.ErrInvalidQuery)
	}

	since := s.config.Now().Add(-s.config.WorkerWindow).In(s.config.Location)
	stats, err := s.ledger.GetWorkerStats(ctx, workerID, since.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get worker stats: %w", err)
	}
	if stats.Total == 0 {
		return nil, fmt.Errorf("worker %s: %w", workerID, models.ErrNotFound)
	}
	stats.Since = since

	return stats, nil
}

func (s *reportService) DailySummary(ctx context.Context, date string) (*models.DailySummary, error) {
	date, err := s.normalizeDate(date)
	if err != nil {
		return nil, err
	}

	summary, err := s.ledger.GetDailySummary(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}
	summary.GeneratedAt = s.config.Now().UTC()

	s.logger.Debug().
		Str("date", date).
		Int64("videos", summary.Videos).
		Int64("anomalous", summary.Anomalous).
		Msg("Daily summary built")

	return summary, nil
}
