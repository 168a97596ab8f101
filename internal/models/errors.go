package models

import "errors"

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrNotFound          = errors.New("not found")
)
