// Package pty provides cross-platform pseudo-terminal sessions: a PTY pair
// with a child process attached to its slave side.
package pty

import (
	"io"
)

// backend is the platform half of a pseudo-terminal pair, as seen from the
// controlling (master) side.
type backend interface {
	// Read reads data produced by the child.
	io.Reader

	// Write writes data to the child's input.
	io.Writer

	// Close closes the master side and releases all platform resources.
	io.Closer

	// CloseWrite signals end of input to the child without closing the
	// read side.
	CloseWrite() error

	// Resize changes the window size of the pair.
	Resize(cols, rows uint16) error
}

// StartOptions contains options for starting a process on a new PTY.
type StartOptions struct {
	// Command is the executable to run.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment for the process.
	// If nil, the current process environment is used.
	Env []string

	// Dir is the working directory for the process.
	// If empty, the current directory is used.
	Dir string

	// Cols is the initial number of columns.
	Cols uint16

	// Rows is the initial number of rows.
	Rows uint16
}

// Size is a terminal window size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// ExitStatus describes how the child process ended.
type ExitStatus struct {
	// Code is the exit code. A child killed by a signal reports 1.
	Code int32

	// Signal is the name of the terminating signal (for example "SIGTERM"),
	// or empty when the child exited normally.
	Signal string
}

// Success reports whether the child exited with code zero and no signal.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

// process is a started child with its PTY backend.
type process struct {
	pty  backend
	pid  int
	wait func() (ExitStatus, error)
	kill func() error
}

const (
	// DefaultCols is used when a zero column count is requested.
	DefaultCols = 80

	// DefaultRows is used when a zero row count is requested.
	DefaultRows = 24
)
