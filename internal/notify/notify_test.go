package notify_test

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
	"github.com/RubachokBoss/video-submission-checker/internal/notify"
)

type published struct {
	key   string
	event models.NotificationEvent
}

type publisherStub struct {
	mu      sync.Mutex
	sent    []published
	failKey string
}

func (p *publisherStub) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if routingKey == p.failKey {
		return errors.New("channel closed")
	}
	var ev models.NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}
	p.sent = append(p.sent, published{key: routingKey, event: ev})
	return nil
}

func (p *publisherStub) keys() []string {
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.key)
	}
	return out
}

func submission() models.Submission {
	return models.Submission{
		WorkerID:    "42",
		Username:    "alice",
		Fingerprint: "AgADfp",
		Duration:    15,
		SizeBytes:   5000,
		ReceivedAt:  time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		ChatID:      "100",
		MessageID:   "55",
	}
}

func decision(suspicious bool, anomalies ...models.AnomalyLabel) *models.Decision {
	return &models.Decision{
		Verdict:    models.Verdict{DuplicateReason: models.ReasonNone, Anomalies: anomalies},
		Suspicious: suspicious,
	}
}

func TestNotifier_DispatchDecision(t *testing.T) {
	pub := &publisherStub{}
	n := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "admin-1", zerolog.Nop())

	err := n.DispatchDecision(context.Background(), submission(),
		decision(true, models.AnomalyUnusualDuration, models.AnomalyTooSmallFile))
	require.NoError(t, err)

	require.Equal(t, []string{"notify.alert", "notify.ack", "notify.admin"}, pub.keys())

	alert := pub.sent[0].event
	require.Equal(t, models.PriorityHigh, alert.Priority)
	require.Equal(t, "admin-1", alert.Recipient)
	require.Contains(t, alert.Text, "@alice (ID: 42)")
	require.Contains(t, alert.Text, "Unusual duration, 🔴 File too small")

	ack := pub.sent[1].event
	require.Equal(t, "100", ack.Recipient)
	require.Equal(t, "55", ack.ReplyTo)

	admin := pub.sent[2].event
	require.True(t, admin.Forward)
	require.Contains(t, admin.Text, "🆕 New video")
	require.Contains(t, admin.Text, "15 s | 4.9 KiB")
	require.Contains(t, admin.Text, "2024-05-01 09:30:00")
}

func TestNotifier_NoAlertWhenNotSuspicious(t *testing.T) {
	pub := &publisherStub{}
	n := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "admin-1", zerolog.Nop())

	d := decision(false, models.AnomalyTooSmallFile)
	d.Verdict.IsDuplicate = true
	d.Verdict.DuplicateReason = models.ReasonDuration

	require.NoError(t, n.DispatchDecision(context.Background(), submission(), d))
	require.Equal(t, []string{"notify.ack", "notify.admin"}, pub.keys())
	require.Contains(t, pub.sent[1].event.Text, "Duplicate video (duration)")
}

func TestNotifier_PublishErrorsAreJoined(t *testing.T) {
	pub := &publisherStub{failKey: "notify.ack"}
	n := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "admin-1", zerolog.Nop())

	err := n.DispatchDecision(context.Background(), submission(), decision(false))
	require.Error(t, err)
	require.Equal(t, []string{"notify.admin"}, pub.keys())
}

func TestNotifier_FailureGoesOnlyToSubmitter(t *testing.T) {
	pub := &publisherStub{}
	n := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "admin-1", zerolog.Nop())

	require.NoError(t, n.DispatchFailure(context.Background(), submission()))
	require.Equal(t, []string{"notify.failure"}, pub.keys())
	require.Equal(t, "100", pub.sent[0].event.Recipient)
}

func TestNotifier_DailySummary(t *testing.T) {
	pub := &publisherStub{}
	n := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "admin-1", zerolog.Nop())

	err := n.DispatchDailySummary(context.Background(), &models.DailySummary{Date: "2024-05-01", Videos: 12, Duplicates: 2, Anomalous: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"notify.daily"}, pub.keys())
	require.Contains(t, pub.sent[0].event.Text, "🎥 Videos: 12")

	silent := notify.NewNotifier(pub, notify.NewFormatter(time.UTC), "", zerolog.Nop())
	require.NoError(t, silent.DispatchDailySummary(context.Background(), &models.DailySummary{}))
	require.Len(t, pub.sent, 1)
}
