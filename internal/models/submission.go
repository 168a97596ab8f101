package models

import (
	"fmt"
	"strings"
	"time"
)

// Submission is one incoming video event after transport decoding.
type Submission struct {
	WorkerID    string
	Username    string
	FirstName   string
	FileID      string
	Fingerprint string
	Duration    int
	SizeBytes   int64
	ReceivedAt  time.Time
	Forwarded   bool
	ChatID      string
	MessageID   string
}

func (s Submission) Validate() error {
	if strings.TrimSpace(s.WorkerID) == "" {
		return fmt.Errorf("%w: empty worker_id", ErrInvalidSubmission)
	}
	if strings.Contains(s.WorkerID, ":") {
		return fmt.Errorf("%w: worker_id %q contains ':'", ErrInvalidSubmission, s.WorkerID)
	}
	if strings.TrimSpace(s.Fingerprint) == "" {
		return fmt.Errorf("%w: empty file_unique_id", ErrInvalidSubmission)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: negative duration %d", ErrInvalidSubmission, s.Duration)
	}
	if s.SizeBytes < 0 {
		return fmt.Errorf("%w: negative file_size %d", ErrInvalidSubmission, s.SizeBytes)
	}
	return nil
}

// DisplayName mirrors how the worker is shown to administrators.
func (s Submission) DisplayName() string {
	switch {
	case s.Username != "":
		return "@" + s.Username
	case s.FirstName != "":
		return s.FirstName
	default:
		return "unknown"
	}
}

// LedgerName is the name stored in the ledger's username column.
func (s Submission) LedgerName() string {
	switch {
	case s.Username != "":
		return s.Username
	case s.FirstName != "":
		return s.FirstName
	default:
		return "unknown"
	}
}
