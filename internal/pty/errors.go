package pty

import (
	"errors"
	"fmt"
)

var (
	// ErrReaderTaken is returned when the output reader was already handed out.
	ErrReaderTaken = errors.New("pty reader already taken")

	// ErrNoProcess is returned when a signal cannot be routed to a child.
	ErrNoProcess = errors.New("no child process")

	// ErrInvalidSize is returned for a zero column or row count.
	ErrInvalidSize = errors.New("invalid terminal size")

	// ErrUnknownSignal is returned by ParseSignal for unsupported names.
	ErrUnknownSignal = errors.New("unknown signal")
)

// SpawnError reports a failure to create the PTY pair or start the child.
type SpawnError struct {
	Op      string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: failed to %s: %v", e.Command, e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IOError reports a failed read, write or resize on the PTY master.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pty %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SignalError reports a signal that could not be delivered.
type SignalError struct {
	Signal SignalKind
	PID    int
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %s to pid %d: %v", e.Signal, e.PID, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }
