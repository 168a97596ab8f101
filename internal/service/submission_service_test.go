package service_test

import (
	"context"
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
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type classifierStub struct {
	mu       sync.Mutex
	result   *models.Classification
	err      error
	block    bool
	delay    time.Duration
	released []*models.Classification
}

func (s *classifierStub) Classify(ctx context.Context, workerID, fingerprint string, duration int) (*models.Classification, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	c := *s.result
	c.WorkerID, c.Fingerprint, c.Duration = workerID, fingerprint, duration
	return &c, nil
}

func (s *classifierStub) Release(_ context.Context, c *models.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, c)
	return nil
}

type scorerStub struct {
	labels []models.AnomalyLabel
	err    error
}

func (s *scorerStub) Score(context.Context, models.Submission, time.Time) ([]models.AnomalyLabel, error) {
	return s.labels, s.err
}

// memoryLedger is a ledger stub that also serves history, so the real
// classifier and scorer can run end to end.
type memoryLedger struct {
	mu      sync.Mutex
	records []*models.LedgerRecord
	err     error
}

func (l *memoryLedger) Append(_ context.Context, r *models.LedgerRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, r)
	return nil
}

func (l *memoryLedger) ListByWorker(_ context.Context, workerID string) ([]models.HistoricalRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.HistoricalRecord
	for _, r := range l.records {
		if r.WorkerID != workerID {
			continue
		}
		out = append(out, models.HistoricalRecord{
			ID:         r.ID,
			WorkerID:   r.WorkerID,
			Duration:   r.Duration,
			FileSize:   r.FileSize,
			Date:       r.Date,
			Time:       r.Time,
			ReceivedAt: r.ReceivedAt,
			Status:     r.Status,
		})
	}
	return out, nil
}

type observerStub struct {
	decisions int
	failures  []string
}

func (o *observerStub) ObserveDecision(*models.Decision, time.Duration) { o.decisions++ }
func (o *observerStub) ObserveFailure(stage string)                     { o.failures = append(o.failures, stage) }

func validSubmission() models.Submission {
	return models.Submission{
		WorkerID:    "42",
		Username:    "worker42",
		FileID:      "BAACAgIAAx",
		Fingerprint: "AgADfp1",
		Duration:    10,
		SizeBytes:   150000,
		ReceivedAt:  fixedNow,
	}
}

func newService(c analyzer.DuplicateClassifier, s analyzer.AnomalyScorer, l service.LedgerWriter, o service.DecisionObserver) service.SubmissionService {
	return service.NewSubmissionService(c, s, l, o, zerolog.Nop(), service.SubmissionConfig{
		IOTimeout: 50 * time.Millisecond,
		Location:  time.UTC,
		Now:       func() time.Time { return fixedNow },
	})
}

func TestSubmissionService_NewSubmission(t *testing.T) {
	ledger := &memoryLedger{}
	observer := &observerStub{}
	svc := newService(&classifierStub{result: &models.Classification{Reason: models.ReasonNone}}, &scorerStub{}, ledger, observer)

	decision, err := svc.Process(context.Background(), validSubmission())
	require.NoError(t, err)
	require.False(t, decision.Verdict.IsDuplicate)
	require.Equal(t, models.ReasonNone, decision.Verdict.DuplicateReason)
	require.Empty(t, decision.Verdict.Anomalies)
	require.False(t, decision.Suspicious)

	require.Len(t, ledger.records, 1)
	rec := ledger.records[0]
	require.Equal(t, decision.Record, rec)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, models.RecordStatusNew, rec.Status)
	require.Equal(t, "2024-05-01", rec.Date)
	require.Equal(t, "12:00:00", rec.Time)
	require.Equal(t, "worker42", rec.Username)
	require.Equal(t, 1, observer.decisions)
}

func TestSubmissionService_DuplicateIsRecorded(t *testing.T) {
	ledger := &memoryLedger{}
	svc := newService(&classifierStub{result: &models.Classification{IsDuplicate: true, Reason: models.ReasonDuration}}, &scorerStub{}, ledger, nil)

	decision, err := svc.Process(context.Background(), validSubmission())
	require.NoError(t, err)
	require.True(t, decision.Verdict.IsDuplicate)
	require.Equal(t, models.ReasonDuration, decision.Verdict.DuplicateReason)
	require.Equal(t, models.RecordStatusDuplicate, ledger.records[0].Status)
	require.Equal(t, models.ReasonDuration, ledger.records[0].DuplicateReason)
}

func TestSubmissionService_SuspiciousThreshold(t *testing.T) {
	cases := []struct {
		name   string
		labels []models.AnomalyLabel
		want   bool
	}{
		{name: "none", labels: nil, want: false},
		{name: "one", labels: []models.AnomalyLabel{models.AnomalyTooSmallFile}, want: false},
		{name: "two", labels: []models.AnomalyLabel{models.AnomalyTooSmallFile, models.AnomalyUnusualDuration}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(&classifierStub{result: &models.Classification{}}, &scorerStub{labels: tc.labels}, &memoryLedger{}, nil)
			decision, err := svc.Process(context.Background(), validSubmission())
			require.NoError(t, err)
			require.Equal(t, tc.want, decision.Suspicious)
		})
	}

	svc := newService(&classifierStub{result: &models.Classification{}},
		&scorerStub{labels: []models.AnomalyLabel{models.AnomalyTooSmallFile, models.AnomalyUnusualDuration}}, &memoryLedger{}, nil)
	decision, err := svc.Process(context.Background(), validSubmission())
	require.NoError(t, err)
	require.Equal(t, []models.AnomalyLabel{models.AnomalyUnusualDuration, models.AnomalyTooSmallFile}, decision.Verdict.Anomalies)
}

func TestSubmissionService_InvalidSubmission(t *testing.T) {
	ledger := &memoryLedger{}
	svc := newService(&classifierStub{err: errors.New("must not be called")}, &scorerStub{}, ledger, nil)

	sub := validSubmission()
	sub.Fingerprint = " "
	_, err := svc.Process(context.Background(), sub)
	require.ErrorIs(t, err, models.ErrInvalidSubmission)
	require.False(t, service.IsProcessingError(err))
	require.Empty(t, ledger.records)
}

func TestSubmissionService_WindowFailure(t *testing.T) {
	ledger := &memoryLedger{}
	observer := &observerStub{}
	svc := newService(&classifierStub{err: errors.New("dial tcp: connection refused")}, &scorerStub{}, ledger, observer)

	decision, err := svc.Process(context.Background(), validSubmission())
	require.Nil(t, decision)
	require.ErrorIs(t, err, service.ErrWindowUnavailable)

	var pe *service.ProcessingError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, service.StageWindow, pe.Stage)
	require.Empty(t, ledger.records)
	require.Equal(t, []string{"window"}, observer.failures)
}

func TestSubmissionService_HistoryFailureReleasesWindow(t *testing.T) {
	classifier := &classifierStub{result: &models.Classification{Stamp: "1714564800000-abcd1234"}}
	ledger := &memoryLedger{}
	svc := newService(classifier, &scorerStub{err: errors.New("ledger timeout")}, ledger, nil)

	_, err := svc.Process(context.Background(), validSubmission())
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)

	var pe *service.ProcessingError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, service.StageHistory, pe.Stage)
	require.Empty(t, ledger.records)
	require.Len(t, classifier.released, 1)
	require.Equal(t, "AgADfp1", classifier.released[0].Fingerprint)
}

func TestSubmissionService_ScorerFailureLetsCommitFinish(t *testing.T) {
	classifier := &classifierStub{
		result: &models.Classification{Stamp: "1714564800000-abcd1234"},
		delay:  20 * time.Millisecond,
	}
	svc := newService(classifier, &scorerStub{err: errors.New("ledger timeout")}, &memoryLedger{}, nil)

	_, err := svc.Process(context.Background(), validSubmission())
	require.ErrorIs(t, err, service.ErrLedgerUnavailable)

	require.Len(t, classifier.released, 1)
	require.Equal(t, "42", classifier.released[0].WorkerID)
}

func TestSubmissionService_LedgerFailureReleasesWindow(t *testing.T) {
	classifier := &classifierStub{result: &models.Classification{Stamp: "1714564800000-abcd1234"}}
	svc := newService(classifier, &scorerStub{}, &memoryLedger{err: errors.New("disk full")}, nil)

	_, err := svc.Process(context.Background(), validSubmission())
	var pe *service.ProcessingError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, service.StageLedger, pe.Stage)
	require.Len(t, classifier.released, 1)
}

func TestSubmissionService_StalledStoreFailsClosed(t *testing.T) {
	ledger := &memoryLedger{}
	svc := newService(&classifierStub{block: true}, &scorerStub{}, ledger, nil)

	start := time.Now()
	_, err := svc.Process(context.Background(), validSubmission())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, service.ErrWindowUnavailable)
	require.Less(t, time.Since(start), time.Second)
	require.Empty(t, ledger.records)
}

func TestSubmissionService_EndToEnd(t *testing.T) {
	clock := fixedNow
	now := func() time.Time { return clock }

	store := statestore.NewMemoryStore(statestore.WithClock(now))
	classifierCfg := analyzer.DefaultDuplicateClassifierConfig()
	classifierCfg.Now = now
	classifier := analyzer.NewDuplicateClassifier(store, zerolog.Nop(), classifierCfg)

	ledger := &memoryLedger{}
	scorerCfg := analyzer.DefaultAnomalyScorerConfig()
	scorerCfg.Location = time.UTC
	scorer := analyzer.NewAnomalyScorer(ledger, zerolog.Nop(), scorerCfg)

	svc := service.NewSubmissionService(classifier, scorer, ledger, nil, zerolog.Nop(), service.SubmissionConfig{
		IOTimeout: time.Second,
		Location:  time.UTC,
		Now:       now,
	})
	ctx := context.Background()

	submit := func(fp string, duration int, size int64) *models.Decision {
		sub := validSubmission()
		sub.Fingerprint, sub.Duration, sub.SizeBytes, sub.ReceivedAt = fp, duration, size, clock
		d, err := svc.Process(ctx, sub)
		require.NoError(t, err)
		return d
	}

	first := submit("v1", 10, 80000)
	require.False(t, first.Verdict.IsDuplicate)
	require.Empty(t, first.Verdict.Anomalies)

	resend := submit("v1", 20, 80000)
	require.True(t, resend.Verdict.IsDuplicate)
	require.Equal(t, models.ReasonFileID, resend.Verdict.DuplicateReason)

	// Spread the rest two hours apart so the recent list and burst check stay quiet.
	for i, d := range []int{9, 11, 12, 8} {
		clock = clock.Add(2 * time.Hour)
		got := submit("v"+string(rune('2'+i)), d, 80000)
		require.False(t, got.Verdict.IsDuplicate)
	}

	clock = clock.Add(2 * time.Hour)
	seventh := submit("v7", 15, 5000)
	require.False(t, seventh.Verdict.IsDuplicate)
	require.Equal(t, []models.AnomalyLabel{models.AnomalyUnusualDuration, models.AnomalyTooSmallFile}, seventh.Verdict.Anomalies)
	require.True(t, seventh.Suspicious)
	require.Len(t, ledger.records, 7)
}
