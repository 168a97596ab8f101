package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

// HistoryReader is the read side of the ledger the scorer needs.
type HistoryReader interface {
	ListByWorker(ctx context.Context, workerID string) ([]models.HistoricalRecord, error)
}

type AnomalyScorer interface {
	Score(ctx context.Context, sub models.Submission, now time.Time) ([]models.AnomalyLabel, error)
}

type AnomalyScorerConfig struct {
	MinHistory        int
	DurationDeviation float64
	MinFileSize       int64
	BurstWindow       time.Duration
	BurstCount        int
	Location          *time.Location
}

func DefaultAnomalyScorerConfig() AnomalyScorerConfig {
	return AnomalyScorerConfig{
		MinHistory:        5,
		DurationDeviation: 2,
		MinFileSize:       20000,
		BurstWindow:       30 * time.Minute,
		BurstCount:        3,
		Location:          time.Local,
	}
}

type anomalyScorer struct {
	history HistoryReader
	logger  zerolog.Logger
	config  AnomalyScorerConfig
}

func NewAnomalyScorer(history HistoryReader, logger zerolog.Logger, config AnomalyScorerConfig) AnomalyScorer {
	if config.Location == nil {
		config.Location = time.Local
	}
	return &anomalyScorer{
		history: history,
		logger:  logger,
		config:  config,
	}
}

func (s *anomalyScorer) Score(ctx context.Context, sub models.Submission, now time.Time) ([]models.AnomalyLabel, error) {
	records, err := s.history.ListByWorker(ctx, sub.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker history: %w", err)
	}

	labels := ScoreHistory(s.config, records, sub.Duration, sub.SizeBytes, now)

	if len(labels) > 0 {
		s.logger.Info().
			Str("worker_id", sub.WorkerID).
			Int("history", len(records)).
			Str("anomalies", models.JoinAnomalies(labels)).
			Msg("Anomalies detected")
	}

	return labels, nil
}

// ScoreHistory flags a submission against the worker's history. Workers with
// fewer than MinHistory records are never flagged.
func ScoreHistory(cfg AnomalyScorerConfig, history []models.HistoricalRecord, duration int, sizeBytes int64, now time.Time) []models.AnomalyLabel {
	if len(history) < cfg.MinHistory || len(history) == 0 {
		return []models.AnomalyLabel{}
	}

	labels := make([]models.AnomalyLabel, 0, 3)

	var sum float64
	for _, r := range history {
		sum += float64(r.Duration)
	}
	avg := sum / float64(len(history))
	if math.Abs(float64(duration)-avg) > cfg.DurationDeviation {
		labels = append(labels, models.AnomalyUnusualDuration)
	}

	if sizeBytes < cfg.MinFileSize {
		labels = append(labels, models.AnomalyTooSmallFile)
	}

	since := now.Add(-cfg.BurstWindow)
	recent := 0
	for _, r := range history {
		at, ok := r.RecordedAt(cfg.Location)
		if !ok {
			continue
		}
		if !at.Before(since) {
			recent++
		}
	}
	if recent >= cfg.BurstCount {
		labels = append(labels, models.AnomalyTooFastSubmission)
	}

	models.SortAnomalies(labels)
	return labels
}
