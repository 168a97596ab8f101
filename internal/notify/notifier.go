package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

// Publisher is satisfied by the queue publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Notifier interface {
	DispatchDecision(ctx context.Context, sub models.Submission, d *models.Decision) error
	DispatchFailure(ctx context.Context, sub models.Submission) error
	DispatchDailySummary(ctx context.Context, s *models.DailySummary) error
}

type notifier struct {
	publisher Publisher
	formatter *Formatter
	admin     string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewNotifier(publisher Publisher, formatter *Formatter, adminRecipient string, logger zerolog.Logger) Notifier {
	return &notifier{
		publisher: publisher,
		formatter: formatter,
		admin:     adminRecipient,
		logger:    logger,
		now:       time.Now,
	}
}

func recipientOf(sub models.Submission) string {
	if sub.ChatID != "" {
		return sub.ChatID
	}
	return sub.WorkerID
}

// DispatchDecision sends the alert first, then the submitter ack and the
// admin summary. Every message is attempted; errors are joined.
func (n *notifier) DispatchDecision(ctx context.Context, sub models.Submission, d *models.Decision) error {
	var events []models.NotificationEvent

	if d.Suspicious && n.admin != "" {
		events = append(events, n.event(models.NotificationAlert, n.admin, n.formatter.SuspiciousAlert(sub, d), models.PriorityHigh, sub))
	}

	ack := n.event(models.NotificationAck, recipientOf(sub), n.formatter.SubmitterAck(), models.PriorityNormal, sub)
	ack.ReplyTo = sub.MessageID
	events = append(events, ack)

	if n.admin != "" {
		summary := n.event(models.NotificationAdmin, n.admin, n.formatter.AdminSummary(sub, d), models.PriorityNormal, sub)
		summary.ReplyTo = sub.MessageID
		summary.Forward = true
		events = append(events, summary)
	}

	var errs []error
	for _, ev := range events {
		if err := n.publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchFailure only tells the submitter; infrastructure failures do not alert admins.
func (n *notifier) DispatchFailure(ctx context.Context, sub models.Submission) error {
	ev := n.event(models.NotificationFailure, recipientOf(sub), n.formatter.Failure(), models.PriorityNormal, sub)
	ev.ReplyTo = sub.MessageID
	return n.publish(ctx, ev)
}

func (n *notifier) DispatchDailySummary(ctx context.Context, s *models.DailySummary) error {
	if n.admin == "" {
		n.logger.Warn().Msg("No admin recipient configured, daily summary not sent")
		return nil
	}
	ev := n.event(models.NotificationDaily, n.admin, n.formatter.DailySummary(s), models.PriorityNormal, models.Submission{})
	return n.publish(ctx, ev)
}

func (n *notifier) event(kind models.NotificationKind, recipient, text, priority string, sub models.Submission) models.NotificationEvent {
	return models.NotificationEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Recipient: recipient,
		Text:      text,
		Priority:  priority,
		WorkerID:  sub.WorkerID,
		CreatedAt: n.now().UTC(),
	}
}

func (n *notifier) publish(ctx context.Context, ev models.NotificationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.publisher.Publish(ctx, ev.Kind.RoutingKey(), body); err != nil {
		n.logger.Error().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("recipient", ev.Recipient).
			Msg("Failed to publish notification")
		return fmt.Errorf("failed to publish %s notification: %w", ev.Kind, err)
	}

	n.logger.Debug().
		Str("id", ev.ID).
		Str("kind", string(ev.Kind)).
		Str("recipient", ev.Recipient).
		Msg("Notification published")

	return nil
}

type nopNotifier struct {
	logger zerolog.Logger
}

// NewNopNotifier is used when no transport is configured.
func NewNopNotifier(logger zerolog.Logger) Notifier {
	return nopNotifier{logger: logger}
}

func (n nopNotifier) DispatchDecision(_ context.Context, sub models.Submission, d *models.Decision) error {
	n.logger.Debug().Str("worker_id", sub.WorkerID).Bool("suspicious", d.Suspicious).Msg("Notifications disabled")
	return nil
}

func (n nopNotifier) DispatchFailure(context.Context, models.Submission) error { return nil }

func (n nopNotifier) DispatchDailySummary(context.Context, *models.DailySummary) error { return nil }
