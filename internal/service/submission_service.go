package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/service/analyzer"
)

type SubmissionService interface {
	// Process classifies one submission and appends it to the ledger. Any
	// store or ledger failure returns a *ProcessingError and no decision.
	Process(ctx context.Context, sub models.Submission) (*models.Decision, error)
}

// LedgerWriter is the append side of the ledger.
type LedgerWriter interface {
	Append(ctx context.Context, record *models.LedgerRecord) error
}

// DecisionObserver receives per-submission outcomes, typically for metrics.
type DecisionObserver interface {
	ObserveDecision(decision *models.Decision, elapsed time.Duration)
	ObserveFailure(stage string)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(*models.Decision, time.Duration) {}
func (nopObserver) ObserveFailure(string)                           {}

type SubmissionConfig struct {
	IOTimeout           time.Duration
	SuspiciousThreshold int
	Location            *time.Location
	Now                 func() time.Time
}

type submissionService struct {
	classifier analyzer.DuplicateClassifier
	scorer     analyzer.AnomalyScorer
	ledger     LedgerWriter
	observer   DecisionObserver
	logger     zerolog.Logger
	config     SubmissionConfig
}

func NewSubmissionService(
	classifier analyzer.DuplicateClassifier,
	scorer analyzer.AnomalyScorer,
	ledger LedgerWriter,
	observer DecisionObserver,
	logger zerolog.Logger,
	config SubmissionConfig,
) SubmissionService {
	if observer == nil {
		observer = nopObserver{}
	}
	if config.IOTimeout <= 0 {
		config.IOTimeout = 5 * time.Second
	}
	if config.SuspiciousThreshold <= 0 {
		config.SuspiciousThreshold = 2
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &submissionService{
		classifier: classifier,
		scorer:     scorer,
		ledger:     ledger,
		observer:   observer,
		logger:     logger,
		config:     config,
	}
}

func (s *submissionService) Process(ctx context.Context, sub models.Submission) (*models.Decision, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	now := s.config.Now()
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = now
	}

	var (
		classification *models.Classification
		anomalies      []models.AnomalyLabel
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// a scorer failure must not abandon a window commit midway
		cctx, cancel := context.WithTimeout(ctx, s.config.IOTimeout)
		defer cancel()

		c, err := s.classifier.Classify(cctx, sub.WorkerID, sub.Fingerprint, sub.Duration)
		if err != nil {
			return &ProcessingError{Stage: StageWindow, Err: fmt.Errorf("%w: %w", ErrWindowUnavailable, err)}
		}
		classification = c
		return nil
	})

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, s.config.IOTimeout)
		defer cancel()

		labels, err := s.scorer.Score(sctx, sub, now)
		if err != nil {
			return &ProcessingError{Stage: StageHistory, Err: fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)}
		}
		anomalies = labels
		return nil
	})

	if err := g.Wait(); err != nil {
		s.release(ctx, classification)
		return nil, s.fail(sub, err)
	}

	verdict := models.NewVerdict(*classification, anomalies)
	record := models.NewLedgerRecord(uuid.New().String(), sub, verdict, s.config.Location, now)

	actx, cancel := context.WithTimeout(ctx, s.config.IOTimeout)
	err := s.ledger.Append(actx, record)
	cancel()
	if err != nil {
		s.release(ctx, classification)
		return nil, s.fail(sub, &ProcessingError{Stage: StageLedger, Err: fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)})
	}

	decision := &models.Decision{
		Verdict:    verdict,
		Record:     record,
		Suspicious: verdict.Suspicious(s.config.SuspiciousThreshold),
	}

	elapsed := time.Since(startTime)
	s.observer.ObserveDecision(decision, elapsed)

	event := s.logger.Info()
	if decision.Suspicious {
		event = s.logger.Warn()
	}
	event.
		Str("record_id", record.ID).
		Str("worker_id", sub.WorkerID).
		Str("status", verdict.Status()).
		Str("reason", verdict.DuplicateReason.String()).
		Str("anomalies", models.JoinAnomalies(verdict.Anomalies)).
		Bool("suspicious", decision.Suspicious).
		Dur("elapsed", elapsed).
		Msg("Submission processed")

	return decision, nil
}

// release undoes a committed window entry so a retry of the same submission
// is not rejected as its own duplicate.
func (s *submissionService) release(ctx context.Context, c *models.Classification) {
	if c == nil || c.IsDuplicate {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.IOTimeout)
	defer cancel()

	if err := s.classifier.Release(rctx, c); err != nil {
		s.logger.Error().
			Err(err).
			Str("worker_id", c.WorkerID).
			Str("fingerprint", c.Fingerprint).
			Msg("Failed to release window entry")
	}
}

func (s *submissionService) fail(sub models.Submission, err error) error {
	stage := "unknown"
	var pe *ProcessingError
	if errors.As(err, &pe) {
		stage = string(pe.Stage)
	}
	s.observer.ObserveFailure(stage)

	s.logger.Error().
		Err(err).
		Str("worker_id", sub.WorkerID).
		Str("fingerprint", sub.Fingerprint).
		Str("stage", stage).
		Msg("Submission processing failed")

	return err
}
