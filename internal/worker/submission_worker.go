package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/notify"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
	"github.com/RubachokBoss/video-submission-checker/internal/worker/queue"
)

const notifyTimeout = 5 * time.Second

type SubmissionWorker interface {
	Start(ctx context.Context) error
	Stop() error
	GetStats() WorkerStats
}

type WorkerStats struct {
	ActiveWorkers  int       `json:"active_workers"`
	QueueLength    int       `json:"queue_length"`
	TotalProcessed int       `json:"total_processed"`
	Duplicates     int       `json:"duplicates"`
	Suspicious     int       `json:"suspicious"`
	Rejected       int       `json:"rejected"`
	FailedJobs     int       `json:"failed_jobs"`
	StartedAt      time.Time `json:"started_at"`
}

type submissionWorker struct {
	workerPool *WorkerPool
	consumer   queue.Consumer
	submission service.SubmissionService
	notifier   notify.Notifier
	logger     zerolog.Logger
	stats      WorkerStats
	statsMutex sync.RWMutex
	done       chan struct{}
}

func NewSubmissionWorker(
	workerPool *WorkerPool,
	consumer queue.Consumer,
	submission service.SubmissionService,
	notifier notify.Notifier,
	logger zerolog.Logger,
) SubmissionWorker {
	return &submissionWorker{
		workerPool: workerPool,
		consumer:   consumer,
		submission: submission,
		notifier:   notifier,
		logger:     logger,
		stats:      WorkerStats{StartedAt: time.Now()},
		done:       make(chan struct{}),
	}
}

func (w *submissionWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting submission worker...")

	if err := w.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Submission worker started successfully")
	return nil
}

// Stop waits for the dispatch loop to exit, then drains the pool.
func (w *submissionWorker) Stop() error {
	w.logger.Info().Msg("Stopping submission worker...")

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		w.logger.Warn().Msg("Message loop did not exit in time")
	}

	if err := w.workerPool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	stats := w.GetStats()
	w.logger.Info().
		Int("total_processed", stats.TotalProcessed).
		Int("failed_jobs", stats.FailedJobs).
		Dur("uptime", time.Since(stats.StartedAt)).
		Msg("Submission worker stopped")

	return nil
}

func (w *submissionWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			accepted := w.workerPool.Submit(func() {
				w.handle(ctx, msg)
			})
			if !accepted {
				if err := msg.Nack(true); err != nil {
					w.logger.Error().Err(err).Msg("Failed to nack rejected message")
				}
			}
		}
	}
}

// handle applies the ack policy: malformed messages are acked and dropped,
// processing failures are reported to the submitter and dead-lettered.
// Submissions interrupted by shutdown are requeued without a notice.
func (w *submissionWorker) handle(ctx context.Context, msg queue.Message) {
	sub, err := decode(msg.Body)
	if err != nil {
		w.logger.Warn().Err(err).Str("key", msg.Key).Msg("Dropping malformed submission")
		w.record(func(s *WorkerStats) { s.Rejected++ })
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	decision, err := w.submission.Process(ctx, sub)
	if err != nil {
		if !service.IsProcessingError(err) {
			w.logger.Warn().Err(err).Str("worker_id", sub.WorkerID).Msg("Dropping rejected submission")
			w.record(func(s *WorkerStats) { s.Rejected++ })
			if ackErr := msg.Ack(); ackErr != nil {
				w.logger.Error().Err(ackErr).Msg("Failed to ack message")
			}
			return
		}

		if ctx.Err() != nil {
			w.logger.Info().Str("worker_id", sub.WorkerID).Msg("Requeueing submission interrupted by shutdown")
			if nackErr := msg.Nack(true); nackErr != nil {
				w.logger.Error().Err(nackErr).Msg("Failed to requeue message")
			}
			return
		}

		w.record(func(s *WorkerStats) { s.FailedJobs++ })
		if nerr := w.notifier.DispatchFailure(ctx, sub); nerr != nil {
			w.logger.Error().Err(nerr).Str("worker_id", sub.WorkerID).Msg("Failed to send failure notification")
		}
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error().Err(nackErr).Msg("Failed to nack message")
		}
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := w.notifier.DispatchDecision(notifyCtx, sub, decision); err != nil {
		// the verdict is already in the ledger; redelivery would count it twice
		w.logger.Error().Err(err).Str("record_id", decision.Record.ID).Msg("Failed to send notifications")
	}

	if err := msg.Ack(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to ack message")
	}

	w.record(func(s *WorkerStats) {
		s.TotalProcessed++
		if decision.Verdict.IsDuplicate {
			s.Duplicates++
		}
		if decision.Suspicious {
			s.Suspicious++
		}
	})
}

func decode(body []byte) (models.Submission, error) {
	var event models.SubmissionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return models.Submission{}, fmt.Errorf("%w: failed to unmarshal event: %w", models.ErrInvalidSubmission, err)
	}

	sub := event.ToSubmission()
	if err := sub.Validate(); err != nil {
		return models.Submission{}, err
	}
	return sub, nil
}

func (w *submissionWorker) record(update func(*WorkerStats)) {
	w.statsMutex.Lock()
	update(&w.stats)
	w.statsMutex.Unlock()
}

func (w *submissionWorker) GetStats() WorkerStats {
	w.statsMutex.RLock()
	stats := w.stats
	w.statsMutex.RUnlock()

	queueLength, err := w.consumer.GetQueueLength()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get queue length")
	}
	stats.QueueLength = queueLength + w.workerPool.GetQueueLength()
	stats.ActiveWorkers = w.workerPool.GetActiveWorkers()

	return stats
}
