package bridge

import (
	"fmt"
)

const maxQuotedLine = 120

// ProtocolError is a malformed or unrecognized message. It is fatal to the
// daemon: no exit message is emitted after one.
type ProtocolError struct {
	Line string
	Err  error
}

func newProtocolError(line []byte, err error) *ProtocolError {
	s := string(line)
	if len(s) > maxQuotedLine {
		s = s[:maxQuotedLine] + "..."
	}
	return &ProtocolError{Line: s, Err: err}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v (line %q)", e.Err, e.Line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
