package models

import (
	"strings"
	"time"
)

// SubmissionEvent is the wire shape delivered by the transport.
type SubmissionEvent struct {
	WorkerID     string    `json:"worker_id"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	FileID       string    `json:"file_id"`
	FileUniqueID string    `json:"file_unique_id"`
	Duration     int       `json:"duration"`
	FileSize     int64     `json:"file_size"`
	ReceivedAt   time.Time `json:"received_at"`
	Forwarded    bool      `json:"forwarded"`
	ChatID       string    `json:"chat_id,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
}

func (e SubmissionEvent) ToSubmission() Submission {
	return Submission{
		WorkerID:    strings.TrimSpace(e.WorkerID),
		Username:    strings.TrimSpace(e.Username),
		FirstName:   strings.TrimSpace(e.FirstName),
		FileID:      e.FileID,
		Fingerprint: strings.TrimSpace(e.FileUniqueID),
		Duration:    e.Duration,
		SizeBytes:   e.FileSize,
		ReceivedAt:  e.ReceivedAt,
		Forwarded:   e.Forwarded,
		ChatID:      e.ChatID,
		MessageID:   e.MessageID,
	}
}

type NotificationKind string

const (
	NotificationAck     NotificationKind = "ack"
	NotificationFailure NotificationKind = "failure"
	NotificationAdmin   NotificationKind = "admin"
	NotificationAlert   NotificationKind = "alert"
	NotificationDaily   NotificationKind = "daily"
)

// RoutingKey is the broker routing key (or Kafka message key) for the kind.
func (k NotificationKind) RoutingKey() string {
	return "notify." + string(k)
}

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// NotificationEvent is published for the transport to deliver.
type NotificationEvent struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Recipient string           `json:"recipient"`
	Text      string           `json:"text"`
	Priority  string           `json:"priority"`
	WorkerID  string           `json:"worker_id,omitempty"`
	ReplyTo   string           `json:"reply_to,omitempty"`
	Forward   bool             `json:"forward,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
