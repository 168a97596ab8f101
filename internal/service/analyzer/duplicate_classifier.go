package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/statestore"
)

type DuplicateClassifier interface {
	// Classify checks the worker's window and, for a novel submission,
	// commits all three window facets in one transaction. A duplicate
	// verdict writes nothing.
	Classify(ctx context.Context, workerID, fingerprint string, duration int) (*models.Classification, error)
	// Release undoes the window commit of a non-duplicate classification.
	Release(ctx context.Context, c *models.Classification) error
}

type DuplicateClassifierConfig struct {
	KeyPrefix      string
	FingerprintTTL time.Duration
	DurationTTL    time.Duration
	RecentTTL      time.Duration
	RecentLimit    int
	Now            func() time.Time
}

func DefaultDuplicateClassifierConfig() DuplicateClassifierConfig {
	return DuplicateClassifierConfig{
		FingerprintTTL: 24 * time.Hour,
		DurationTTL:    24 * time.Hour,
		RecentTTL:      time.Hour,
		RecentLimit:    3,
	}
}

type duplicateClassifier struct {
	store  statestore.Store
	locks  *keyedLock
	logger zerolog.Logger
	config DuplicateClassifierConfig
}

func NewDuplicateClassifier(store statestore.Store, logger zerolog.Logger, config DuplicateClassifierConfig) DuplicateClassifier {
	defaults := DefaultDuplicateClassifierConfig()
	if config.FingerprintTTL <= 0 {
		config.FingerprintTTL = defaults.FingerprintTTL
	}
	if config.DurationTTL <= 0 {
		config.DurationTTL = defaults.DurationTTL
	}
	if config.RecentTTL <= 0 {
		config.RecentTTL = defaults.RecentTTL
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = defaults.RecentLimit
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &duplicateClassifier{
		store:  store,
		locks:  newKeyedLock(),
		logger: logger,
		config: config,
	}
}

func (c *duplicateClassifier) fingerprintKey(workerID, fingerprint string) string {
	return fmt.Sprintf("%suser:%s:file:%s", c.config.KeyPrefix, workerID, fingerprint)
}

func (c *duplicateClassifier) durationKey(workerID string, duration int) string {
	return fmt.Sprintf("%suser:%s:duration:%d", c.config.KeyPrefix, workerID, duration)
}

func (c *duplicateClassifier) recentKey(workerID string) string {
	return fmt.Sprintf("%suser:%s:recent", c.config.KeyPrefix, workerID)
}

func (c *duplicateClassifier) Classify(ctx context.Context, workerID, fingerprint string, duration int) (*models.Classification, error) {
	unlock, err := c.locks.Lock(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire window lock: %w", err)
	}
	defer unlock()

	result := &models.Classification{
		Reason:      models.ReasonNone,
		WorkerID:    workerID,
		Fingerprint: fingerprint,
		Duration:    duration,
	}

	fileKey := c.fingerprintKey(workerID, fingerprint)
	seen, err := c.store.Exists(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	if seen {
		return c.duplicate(result, models.ReasonFileID), nil
	}

	durKey := c.durationKey(workerID, duration)
	seen, err = c.store.Exists(ctx, durKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check duration: %w", err)
	}
	if seen {
		return c.duplicate(result, models.ReasonDuration), nil
	}

	recentKey := c.recentKey(workerID)
	recent, err := c.store.ListLen(ctx, recentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent submissions: %w", err)
	}
	if recent >= c.config.RecentLimit {
		return c.duplicate(result, models.ReasonTooManyVideos), nil
	}

	// Stamps carry a random suffix so Release removes exactly this entry.
	now := c.config.Now()
	result.Stamp = strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]

	err = c.store.Commit(ctx,
		statestore.Set(fileKey, "1", c.config.FingerprintTTL),
		statestore.Set(durKey, "1", c.config.DurationTTL),
		statestore.PushFront(recentKey, result.Stamp),
		statestore.Trim(recentKey, c.config.RecentLimit),
		statestore.Expire(recentKey, c.config.RecentTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to commit window: %w", err)
	}

	c.logger.Debug().
		Str("worker_id", workerID).
		Str("fingerprint", fingerprint).
		Int("duration", duration).
		Int("recent", recent+1).
		Msg("Submission recorded in window")

	return result, nil
}

func (c *duplicateClassifier) duplicate(result *models.Classification, reason models.DuplicateReason) *models.Classification {
	result.IsDuplicate = true
	result.Reason = reason

	c.logger.Info().
		Str("worker_id", result.WorkerID).
		Str("fingerprint", result.Fingerprint).
		Int("duration", result.Duration).
		Str("reason", reason.String()).
		Msg("Duplicate submission")

	return result
}

func (c *duplicateClassifier) Release(ctx context.Context, result *models.Classification) error {
	if result == nil || result.IsDuplicate || result.Stamp == "" {
		return nil
	}

	unlock, err := c.locks.Lock(ctx, result.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to acquire window lock: %w", err)
	}
	defer unlock()

	err = c.store.Commit(ctx,
		statestore.Delete(c.fingerprintKey(result.WorkerID, result.Fingerprint)),
		statestore.Delete(c.durationKey(result.WorkerID, result.Duration)),
		statestore.ListRemove(c.recentKey(result.WorkerID), result.Stamp),
	)
	if err != nil {
		return fmt.Errorf("failed to release window entry: %w", err)
	}

	c.logger.Warn().
		Str("worker_id", result.WorkerID).
		Str("fingerprint", result.Fingerprint).
		Msg("Window entry released")

	return nil
}
