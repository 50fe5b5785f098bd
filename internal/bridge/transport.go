package bridge

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// Transport moves whole protocol lines. ReadLine returns io.EOF when the
// peer is done sending. WriteLine must be safe for concurrent use and must
// not interleave lines.
type Transport interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
}

// LineTransport frames messages with newlines over a byte stream, such as
// standard input and output.
type LineTransport struct {
	r *bufio.Reader

	mu sync.Mutex
	w  *bufio.Writer

	closers []io.Closer
}

// NewLineTransport reads lines from r and writes lines to w. Close closes
// whichever of r and w implement io.Closer.
func NewLineTransport(r io.Reader, w io.Writer) *LineTransport {
	t := &LineTransport{
		r: bufio.NewReaderSize(r, 64*1024),
		w: bufio.NewWriterSize(w, 64*1024),
	}
	for _, v := range []interface{}{r, w} {
		if c, ok := v.(io.Closer); ok {
			t.closers = append(t.closers, c)
		}
	}
	return t
}

// ReadLine returns the next line without its terminator. A final line with
// no trailing newline is still returned before io.EOF.
func (t *LineTransport) ReadLine() ([]byte, error) {
	line, err := t.r.ReadBytes('\n')
	if len(line) > 0 {
		return bytes.TrimRight(line, "\r\n"), nil
	}
	return nil, err
}

// WriteLine writes line plus a newline and flushes.
func (t *LineTransport) WriteLine(line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(line); err != nil {
		return err
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *LineTransport) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
