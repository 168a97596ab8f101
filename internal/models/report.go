package models

import (
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	RecordStatusNew       = "new"
	RecordStatusDuplicate = "duplicate"
)

// LedgerRecord is one appended ledger row: the submission plus its verdict.
type LedgerRecord struct {
	ID              string          `json:"id" db:"id"`
	WorkerID        string          `json:"worker_id" db:"worker_id"`
	Username        string          `json:"username" db:"username"`
	FileID          string          `json:"file_id" db:"file_id"`
	FileUniqueID    string          `json:"file_unique_id" db:"file_unique_id"`
	FileSize        int64           `json:"file_size" db:"file_size"`
	Duration        int             `json:"duration" db:"duration"`
	Date            string          `json:"date" db:"submitted_date"`
	Time            string          `json:"time" db:"submitted_time"`
	ReceivedAt      time.Time       `json:"received_at" db:"received_at"`
	Status          string          `json:"status" db:"status"`
	DuplicateReason DuplicateReason `json:"duplicate_reason" db:"duplicate_reason"`
	Forwarded       bool            `json:"forwarded" db:"forwarded"`
	Anomalies       []AnomalyLabel  `json:"anomalies" db:"anomalies"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

func NewLedgerRecord(id string, sub Submission, v Verdict, loc *time.Location, createdAt time.Time) *LedgerRecord {
	if loc == nil {
		loc = time.Local
	}
	local := sub.ReceivedAt.In(loc)

	anomalies := make([]AnomalyLabel, len(v.Anomalies))
	copy(anomalies, v.Anomalies)

	return &LedgerRecord{
		ID:              id,
		WorkerID:        sub.WorkerID,
		Username:        sub.LedgerName(),
		FileID:          sub.FileID,
		FileUniqueID:    sub.Fingerprint,
		FileSize:        sub.SizeBytes,
		Duration:        sub.Duration,
		Date:            local.Format(DateLayout),
		Time:            local.Format(TimeLayout),
		ReceivedAt:      sub.ReceivedAt.UTC(),
		Status:          v.Status(),
		DuplicateReason: v.DuplicateReason,
		Forwarded:       sub.Forwarded,
		Anomalies:       anomalies,
		CreatedAt:       createdAt.UTC(),
	}
}

// HistoricalRecord is the slice of a ledger row the anomaly scorer reads.
type HistoricalRecord struct {
	ID              string
	WorkerID        string
	Duration        int
	FileSize        int64
	Date            string
	Time            string
	ReceivedAt      time.Time
	Status          string
	DuplicateReason DuplicateReason
	Anomalies       []AnomalyLabel
}

// RecordedAt combines the stored date and time columns in loc. Rows whose
// columns do not parse fall back to ReceivedAt; false means no usable time.
func (r HistoricalRecord) RecordedAt(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, strings.TrimSpace(r.Date)+" "+strings.TrimSpace(r.Time), loc)
	if err == nil {
		return t, true
	}
	if !r.ReceivedAt.IsZero() {
		return r.ReceivedAt, true
	}
	return time.Time{}, false
}

func JoinAnomalies(labels []AnomalyLabel) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, string(l))
	}
	return strings.Join(parts, ",")
}

func SplitAnomalies(s string) []AnomalyLabel {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	labels := make([]AnomalyLabel, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, AnomalyLabel(p))
		}
	}
	return labels
}

type LedgerStats struct {
	Date       string `json:"date"`
	Total      int64  `json:"total"`
	Today      int64  `json:"today"`
	Duplicates int64  `json:"duplicates"`
	Anomalous  int64  `json:"anomalous"`
}

type WorkerStats struct {
	WorkerID    string    `json:"worker_id"`
	Total       int       `json:"total"`
	LastWeek    int       `json:"last_week"`
	AvgDuration int       `json:"avg_duration"`
	Since       time.Time `json:"since"`
}

type DailySummary struct {
	Date        string    `json:"date"`
	Videos      int64     `json:"videos"`
	Duplicates  int64     `json:"duplicates"`
	Anomalous   int64     `json:"anomalous"`
	GeneratedAt time.Time `json:"generated_at"`
}
