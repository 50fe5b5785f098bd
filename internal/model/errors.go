package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session is not in the journal.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotRunning is returned when an operation needs a live child.
	ErrSessionNotRunning = errors.New("session is not running")

	// ErrConcurrencyLimit is returned when the maximum number of concurrent sessions is reached.
	ErrConcurrencyLimit = errors.New("concurrent session limit exceeded")

	// ErrInvalidSize is returned for a zero or out-of-range terminal size.
	ErrInvalidSize = errors.New("cols and rows must be between 1 and 65535")
)
