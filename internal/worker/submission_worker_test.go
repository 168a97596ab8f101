package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
	"github.com/RubachokBoss/video-submission-checker/internal/service"
	"github.com/RubachokBoss/video-submission-checker/internal/service/analyzer"
	"github.com/RubachokBoss/video-submission-checker/internal/statestore"
	"github.com/RubachokBoss/video-submission-checker/internal/worker"
	"github.com/RubachokBoss/video-submission-checker/internal/worker/queue"
)

type consumerStub struct {
	ch     chan queue.Message
	closed sync.Once
}

func newConsumerStub() *consumerStub {
	return &consumerStub{ch: make(chan queue.Message, 8)}
}

func (c *consumerStub) Consume(context.Context) (<-chan queue.Message, error) { return c.ch, nil }
func (c *consumerStub) GetQueueLength() (int, error)                          { return len(c.ch), nil }
func (c *consumerStub) Close() error {
	c.closed.Do(func() { close(c.ch) })
	return nil
}

type settlement struct {
	acked   bool
	nacked  bool
	requeue bool
}

type settleRecorder struct {
	done chan settlement
}

func newSettleRecorder() *settleRecorder {
	return &settleRecorder{done: make(chan settlement, 8)}
}

func (r *settleRecorder) message(body []byte) queue.Message {
	return queue.Message{
		Body:      body,
		Timestamp: time.Now(),
		Ack: func() error {
			r.done <- settlement{acked: true}
			return nil
		},
		Nack: func(requeue bool) error {
			r.done <- settlement{nacked: true, requeue: requeue}
			return nil
		},
	}
}

func (r *settleRecorder) next(t *testing.T) settlement {
	t.Helper()
	select {
	case s := <-r.done:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("message was never settled")
		return settlement{}
	}
}

type submissionServiceStub struct {
	decision *models.Decision
	err      error
}

func (s *submissionServiceStub) Process(_ context.Context, sub models.Submission) (*models.Decision, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return s.decision, s.err
}

type notifierStub struct {
	mu        sync.Mutex
	decisions int
	failures  []string
	err       error
}

func (n *notifierStub) DispatchDecision(context.Context, models.Submission, *models.Decision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions++
	return n.err
}

func (n *notifierStub) DispatchFailure(_ context.Context, sub models.Submission) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, sub.WorkerID)
	return nil
}

func (n *notifierStub) DispatchDailySummary(context.Context, *models.DailySummary) error { return nil }

func eventBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(models.SubmissionEvent{
		WorkerID:     "42",
		Username:     "alice",
		FileID:       "file-1",
		FileUniqueID: "uniq-1",
		Duration:     12,
		FileSize:     50_000,
	})
	require.NoError(t, err)
	return body
}

func startWorker(t *testing.T, svc service.SubmissionService, n *notifierStub) (*consumerStub, worker.SubmissionWorker) {
	t.Helper()
	consumer := newConsumerStub()
	w := worker.NewSubmissionWorker(worker.NewWorkerPool(2, 4, zerolog.Nop()), consumer, svc, n, zerolog.Nop())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return consumer, w
}

func TestSubmissionWorker_AcksProcessedSubmission(t *testing.T) {
	decision := &models.Decision{
		Verdict:    models.Verdict{IsDuplicate: true, DuplicateReason: models.ReasonFileID},
		Record:     &models.LedgerRecord{ID: "rec-1"},
		Suspicious: true,
	}
	n := &notifierStub{}
	consumer, w := startWorker(t, &submissionServiceStub{decision: decision}, n)

	rec := newSettleRecorder()
	consumer.ch <- rec.message(eventBody(t))

	require.Equal(t, settlement{acked: true}, rec.next(t))
	require.Eventually(t, func() bool { return w.GetStats().TotalProcessed == 1 }, time.Second, 5*time.Millisecond)

	stats := w.GetStats()
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 1, stats.Suspicious)
	n.mu.Lock()
	require.Equal(t, 1, n.decisions)
	n.mu.Unlock()
}

func TestSubmissionWorker_NotificationFailureStillAcks(t *testing.T) {
	decision := &models.Decision{Record: &models.LedgerRecord{ID: "rec-1"}}
	consumer, _ := startWorker(t, &submissionServiceStub{decision: decision}, &notifierStub{err: errors.New("broker down")})

	rec := newSettleRecorder()
	consumer.ch <- rec.message(eventBody(t))

	require.Equal(t, settlement{acked: true}, rec.next(t))
}

func TestSubmissionWorker_MalformedIsAckedAndDropped(t *testing.T) {
	n := &notifierStub{}
	consumer, w := startWorker(t, &submissionServiceStub{}, n)

	rec := newSettleRecorder()
	consumer.ch <- rec.message([]byte("{not json"))
	consumer.ch <- rec.message([]byte(`{"worker_id":"42","file_unique_id":""}`))

	require.Equal(t, settlement{acked: true}, rec.next(t))
	require.Equal(t, settlement{acked: true}, rec.next(t))
	require.Eventually(t, func() bool { return w.GetStats().Rejected == 2 }, time.Second, 5*time.Millisecond)

	n.mu.Lock()
	require.Empty(t, n.failures)
	n.mu.Unlock()
}

func TestSubmissionWorker_ProcessingFailureDeadLetters(t *testing.T) {
	failure := &service.ProcessingError{Stage: service.StageWindow, Err: service.ErrWindowUnavailable}
	n := &notifierStub{}
	consumer, w := startWorker(t, &submissionServiceStub{err: failure}, n)

	rec := newSettleRecorder()
	consumer.ch <- rec.message(eventBody(t))

	require.Equal(t, settlement{nacked: true, requeue: false}, rec.next(t))
	require.Eventually(t, func() bool { return w.GetStats().FailedJobs == 1 }, time.Second, 5*time.Millisecond)

	n.mu.Lock()
	require.Equal(t, []string{"42"}, n.failures)
	n.mu.Unlock()
}

// stallingLedger blocks Append until the caller's context ends while stall is set.
type stallingLedger struct {
	mu       sync.Mutex
	stall    bool
	entered  chan struct{}
	appended int
}

func (l *stallingLedger) ListByWorker(context.Context, string) ([]models.HistoricalRecord, error) {
	return nil, nil
}

func (l *stallingLedger) Append(ctx context.Context, _ *models.LedgerRecord) error {
	l.mu.Lock()
	stall := l.stall
	l.mu.Unlock()
	if stall {
		close(l.entered)
		<-ctx.Done()
		return ctx.Err()
	}
	l.mu.Lock()
	l.appended++
	l.mu.Unlock()
	return nil
}

func TestSubmissionWorker_ShutdownRequeuesInFlightSubmission(t *testing.T) {
	store := statestore.NewMemoryStore()
	ledger := &stallingLedger{stall: true, entered: make(chan struct{})}
	svc := service.NewSubmissionService(
		analyzer.NewDuplicateClassifier(store, zerolog.Nop(), analyzer.DefaultDuplicateClassifierConfig()),
		analyzer.NewAnomalyScorer(ledger, zerolog.Nop(), analyzer.DefaultAnomalyScorerConfig()),
		ledger, nil, zerolog.Nop(),
		service.SubmissionConfig{IOTimeout: 5 * time.Second},
	)

	n := &notifierStub{}
	consumer := newConsumerStub()
	w := worker.NewSubmissionWorker(worker.NewWorkerPool(2, 4, zerolog.Nop()), consumer, svc, n, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	rec := newSettleRecorder()
	consumer.ch <- rec.message(eventBody(t))

	select {
	case <-ledger.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("ledger write never started")
	}
	cancel()

	require.Equal(t, settlement{nacked: true, requeue: true}, rec.next(t))

	n.mu.Lock()
	require.Empty(t, n.failures)
	n.mu.Unlock()
	require.Zero(t, w.GetStats().FailedJobs)

	// The window was released, so the redelivered submission is not its own duplicate.
	ledger.mu.Lock()
	ledger.stall = false
	ledger.mu.Unlock()
	var event models.SubmissionEvent
	require.NoError(t, json.Unmarshal(eventBody(t), &event))
	decision, err := svc.Process(context.Background(), event.ToSubmission())
	require.NoError(t, err)
	require.False(t, decision.Verdict.IsDuplicate)
	require.Equal(t, 1, ledger.appended)
}
