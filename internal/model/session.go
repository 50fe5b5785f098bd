package model

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionStatus represents the lifecycle state of a journaled session.
type SessionStatus string

const (
	SessionStatusRunning SessionStatus = "running"
	SessionStatusExited  SessionStatus = "exited"
	SessionStatusFailed  SessionStatus = "failed"
)

// Session is the journal record of one spawned shell.
type Session struct {
	ID          string        `json:"id"`
	Shell       string        `json:"shell"`
	Args        []string      `json:"args,omitempty"`
	Cols        int           `json:"cols"`
	Rows        int           `json:"rows"`
	PID         *int          `json:"pid,omitempty"`
	Status      SessionStatus `json:"status"`
	ExitCode    *int          `json:"exitCode,omitempty"`
	Signal      string        `json:"signal,omitempty"`
	LogFilePath string        `json:"logFilePath,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ArgsToJSON converts Args to a JSON string for storage.
func (s *Session) ArgsToJSON() (string, error) {
	if len(s.Args) == 0 {
		return "", nil
	}
	data, err := json.Marshal(s.Args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ArgsFromJSON parses a stored JSON string into Args.
func (s *Session) ArgsFromJSON(data string) error {
	if data == "" {
		s.Args = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &s.Args)
}

// Running reports whether the child has not been reaped yet.
func (s *Session) Running() bool {
	return s.Status == SessionStatusRunning
}

// Duration returns how long the session ran, or has been running.
func (s *Session) Duration() time.Duration {
	if s.Running() {
		return time.Since(s.CreatedAt)
	}
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// AttachRequest carries the initial size of a WebSocket attach.
type AttachRequest struct {
	Cols int `form:"cols"`
	Rows int `form:"rows"`
}

// Validate fills defaults and checks the size range.
func (r *AttachRequest) Validate(defaultCols, defaultRows int) error {
	if r.Cols == 0 {
		r.Cols = defaultCols
	}
	if r.Rows == 0 {
		r.Rows = defaultRows
	}
	if r.Cols < 1 || r.Rows < 1 || r.Cols > 65535 || r.Rows > 65535 {
		return ErrInvalidSize
	}
	return nil
}
