package service

import (
	"errors"
	"fmt"
)

// Типизированные ошибки для корректного маппинга на HTTP-коды и ack/nack в воркере.
var (
	// Ошибки внешних зависимостей.
	ErrWindowUnavailable = errors.New("window store unavailable")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

type Stage string

const (
	StageWindow  Stage = "window"
	StageHistory Stage = "history"
	StageLedger  Stage = "ledger"
)

// ProcessingError means no verdict was produced for the submission.
type ProcessingError struct {
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func IsProcessingError(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe)
}
