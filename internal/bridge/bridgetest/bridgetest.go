// Package bridgetest provides an in-memory bridge.Session and
// bridge.Transport for tests of packages that run daemons without a real
// pseudo-terminal.
package bridgetest

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// EchoSession behaves like a line-discipline echo: every write comes back
// as output. Closing input exits with ExitCode; a signal or Kill exits as
// if the child was killed by it.
type EchoSession struct {
	ExitCode int32

	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	taken    bool
	size     pty.Size
	signals  []string
	released bool

	exitOnce sync.Once
	exited   chan struct{}
	status   pty.ExitStatus
}

// NewEchoSession returns a running EchoSession of the given size.
func NewEchoSession(cols, rows uint16) *EchoSession {
	pr, pw := io.Pipe()
	return &EchoSession{
		pr:     pr,
		pw:     pw,
		size:   pty.Size{Cols: cols, Rows: rows},
		exited: make(chan struct{}),
	}
}

func (s *EchoSession) exit(status pty.ExitStatus) {
	s.exitOnce.Do(func() {
		s.status = status
		s.pw.Close()
		close(s.exited)
	})
}

func (s *EchoSession) TakeReader() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return nil, pty.ErrReaderTaken
	}
	s.taken = true
	return s.pr, nil
}

func (s *EchoSession) Write(p []byte) error {
	select {
	case <-s.exited:
		return nil
	default:
	}
	_, err := s.pw.Write(p)
	if err == io.ErrClosedPipe {
		return nil
	}
	return err
}

func (s *EchoSession) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return &pty.IOError{Op: "resize", Err: pty.ErrInvalidSize}
	}
	s.mu.Lock()
	s.size = pty.Size{Cols: cols, Rows: rows}
	s.mu.Unlock()
	return nil
}

// Size returns the last applied size.
func (s *EchoSession) Size() pty.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *EchoSession) Signal(kind pty.SignalKind) error {
	s.mu.Lock()
	s.signals = append(s.signals, kind.String())
	s.mu.Unlock()
	s.exit(pty.ExitStatus{Code: 1, Signal: "SIG" + kind.String()})
	return nil
}

// Signals returns the names of the signals delivered so far.
func (s *EchoSession) Signals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signals...)
}

func (s *EchoSession) Close() error {
	s.exit(pty.ExitStatus{Code: s.ExitCode})
	return nil
}

func (s *EchoSession) Wait() (pty.ExitStatus, error) {
	<-s.exited
	return s.status, nil
}

func (s *EchoSession) Exited() <-chan struct{} { return s.exited }

func (s *EchoSession) Kill() error {
	s.exit(pty.ExitStatus{Code: 1, Signal: "SIGKILL"})
	return nil
}

func (s *EchoSession) Release() error {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.pw.Close()
	return nil
}

// Released reports whether Release was called.
func (s *EchoSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *EchoSession) PID() int { return 4242 }

// Transport is an in-memory bridge.Transport. Lines sent with Send are
// read by the daemon; lines the daemon writes are returned by Next.
type Transport struct {
	in  chan []byte
	out chan []byte

	endOnce   sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTransport returns an open Transport.
func NewTransport() *Transport {
	return &Transport{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

// Send queues an inbound line.
func (t *Transport) Send(line string) {
	t.in <- []byte(line)
}

// EndInput makes ReadLine report io.EOF once queued lines are consumed.
func (t *Transport) EndInput() {
	t.endOnce.Do(func() { close(t.in) })
}

// Next returns the next outbound event, or an error after timeout.
func (t *Transport) Next(timeout time.Duration) (bridge.Event, error) {
	select {
	case line := <-t.out:
		return bridge.ParseEvent(line)
	case <-time.After(timeout):
		return bridge.Event{}, errors.New("timed out waiting for an outbound line")
	}
}

// NextExit skips output events until the exit event arrives.
func (t *Transport) NextExit(timeout time.Duration) (bridge.Event, []byte, error) {
	var output []byte
	deadline := time.Now().Add(timeout)
	for {
		ev, err := t.Next(time.Until(deadline))
		if err != nil {
			return ev, output, err
		}
		if ev.Type == bridge.TypeExit {
			return ev, output, nil
		}
		output = append(output, ev.Data...)
	}
}

// Closed is closed once Close was called.
func (t *Transport) Closed() <-chan struct{} {
	return t.closed
}

func (t *Transport) ReadLine() ([]byte, error) {
	select {
	case line, ok := <-t.in:
		if !ok {
			return nil, io.EOF
		}
		return line, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *Transport) WriteLine(line []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	t.out <- append([]byte(nil), line...)
	return nil
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}
