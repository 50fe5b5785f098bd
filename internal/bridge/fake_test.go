package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// fakeSession is an in-memory Session. Output is fed with emit; the child
// "exits" through finish or the configured triggers.
type fakeSession struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	ops      []string
	taken    bool
	released bool

	writeErr  error
	resizeErr error
	signalErr error

	// exitOnClose ends the child when input is closed.
	exitOnClose *pty.ExitStatus
	// exitOnSignal ends the child when any signal arrives.
	exitOnSignal *pty.ExitStatus
	// keepOutputOpen leaves the output stream open after exit, as when a
	// grandchild still holds the terminal.
	keepOutputOpen bool

	exitOnce sync.Once
	exited   chan struct{}
	status   pty.ExitStatus
}

func newFakeSession() *fakeSession {
	pr, pw := io.Pipe()
	return &fakeSession{pr: pr, pw: pw, exited: make(chan struct{})}
}

func (f *fakeSession) log(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakeSession) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeSession) emit(s string) {
	f.pw.Write([]byte(s))
}

func (f *fakeSession) finish(status pty.ExitStatus) {
	f.exitOnce.Do(func() {
		f.status = status
		if !f.keepOutputOpen {
			f.pw.Close()
		}
		close(f.exited)
	})
}

func (f *fakeSession) TakeReader() (io.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken {
		return nil, pty.ErrReaderTaken
	}
	f.taken = true
	return f.pr, nil
}

func (f *fakeSession) Write(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.log("write %s", p)
	return nil
}

func (f *fakeSession) Resize(cols, rows uint16) error {
	if f.resizeErr != nil {
		return f.resizeErr
	}
	f.log("resize %dx%d", cols, rows)
	return nil
}

func (f *fakeSession) Signal(kind pty.SignalKind) error {
	f.log("signal %s", kind)
	if f.signalErr != nil {
		return f.signalErr
	}
	if f.exitOnSignal != nil {
		f.finish(*f.exitOnSignal)
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.log("close")
	if f.exitOnClose != nil {
		f.finish(*f.exitOnClose)
	}
	return nil
}

func (f *fakeSession) Wait() (pty.ExitStatus, error) {
	<-f.exited
	return f.status, nil
}

func (f *fakeSession) Exited() <-chan struct{} { return f.exited }

func (f *fakeSession) Kill() error {
	f.log("kill")
	f.finish(pty.ExitStatus{Code: 1, Signal: "SIGKILL"})
	return nil
}

func (f *fakeSession) Release() error {
	f.mu.Lock()
	f.released = true
	f.mu.Unlock()
	f.pw.Close()
	return nil
}

func (f *fakeSession) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeSession) PID() int { return 4242 }

// memTransport feeds lines from a channel and captures written lines.
type memTransport struct {
	in chan []byte

	mu      sync.Mutex
	written [][]byte
	notify  chan struct{}
	failErr error
}

func newMemTransport() *memTransport {
	return &memTransport{in: make(chan []byte, 64), notify: make(chan struct{}, 1024)}
}

func (m *memTransport) send(lines ...string) {
	for _, l := range lines {
		m.in <- []byte(l)
	}
}

func (m *memTransport) sendRequest(req Request) {
	line, err := EncodeRequest(req)
	if err != nil {
		panic(err)
	}
	m.in <- line
}

func (m *memTransport) ReadLine() ([]byte, error) {
	line, ok := <-m.in
	if !ok {
		return nil, io.EOF
	}
	return line, nil
}

func (m *memTransport) WriteLine(line []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.written = append(m.written, append([]byte(nil), line...))
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *memTransport) Close() error { return nil }

func (m *memTransport) Events() ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]Event, 0, len(m.written))
	for _, l := range m.written {
		ev, err := ParseEvent(l)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// waitWritten blocks until at least n lines were written.
func (m *memTransport) waitWritten(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		m.mu.Lock()
		got := len(m.written)
		m.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-m.notify:
		case <-deadline:
			return errors.New("timed out waiting for output")
		}
	}
}

type memRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *memRecorder) WriteOutput(data []byte) error {
	r.add("o " + string(data))
	return nil
}

func (r *memRecorder) WriteInput(data []byte) error {
	r.add("i " + string(data))
	return nil
}

func (r *memRecorder) WriteResize(cols, rows int) error {
	r.add(fmt.Sprintf("r %dx%d", cols, rows))
	return nil
}

func (r *memRecorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *memRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
