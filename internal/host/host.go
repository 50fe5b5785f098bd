// Package host embeds a PTY session and a terminal grid in one process.
// A background goroutine reads PTY output into a queue; the owner drains
// the queue into the grid with Poll, typically once per UI frame.
package host

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/buffer"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/term"
)

const (
	defaultQueueSize      = 256
	defaultHistorySize    = 256 * 1024
	defaultReadBufferSize = 4096
)

// Options configures a Host. Zero values select defaults.
type Options struct {
	QueueSize      int
	HistorySize    int
	ReadBufferSize int
	Logger         logrus.FieldLogger
	Recorder       OutputRecorder
}

// OutputRecorder receives a copy of PTY output and resizes.
type OutputRecorder interface {
	WriteOutput(data []byte) error
	WriteResize(cols, rows int) error
}

// Host owns a session, the grid it renders into, and a scrollback of raw
// output.
type Host struct {
	session *pty.Session
	term    *term.Terminal
	history *buffer.RingBuffer
	opts    Options
	log     logrus.FieldLogger

	chunks   chan []byte
	readDone chan struct{}
	readErr  error

	// drained is set once the queue was closed and emptied.
	mu      sync.Mutex
	drained bool
}

// Start spawns the preferred shell at cols x rows.
func Start(cols, rows uint16, prefs pty.ShellPrefs, opts Options) (*Host, error) {
	session, err := pty.Spawn(cols, rows, prefs)
	if err != nil {
		return nil, err
	}
	return attach(session, opts)
}

// StartCommand spawns an arbitrary command.
func StartCommand(start pty.StartOptions, opts Options) (*Host, error) {
	session, err := pty.SpawnCommand(start)
	if err != nil {
		return nil, err
	}
	return attach(session, opts)
}

func attach(session *pty.Session, opts Options) (*Host, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	reader, err := session.TakeReader()
	if err != nil {
		session.Kill()
		session.Release()
		return nil, err
	}

	size := session.Size()
	h := &Host{
		session:  session,
		term:     term.New(int(size.Cols), int(size.Rows)),
		history:  buffer.NewRingBuffer(opts.HistorySize),
		opts:     opts,
		log:      log.WithField("pid", session.PID()),
		chunks:   make(chan []byte, opts.QueueSize),
		readDone: make(chan struct{}),
	}
	go h.readLoop(reader)
	return h, nil
}

// readLoop copies output into the queue until end of stream. A full queue
// blocks the reader, which in turn applies backpressure to the child.
func (h *Host) readLoop(r io.Reader) {
	defer close(h.readDone)
	defer close(h.chunks)

	buf := make([]byte, h.opts.ReadBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.history.Write(chunk)
			if h.opts.Recorder != nil {
				if rerr := h.opts.Recorder.WriteOutput(chunk); rerr != nil {
					h.log.WithError(rerr).Warn("recording failed")
				}
			}
			h.chunks <- chunk
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				h.readErr = &pty.IOError{Op: "read", Err: err}
				h.log.WithError(err).Warn("pty read failed")
			}
			return
		}
	}
}

// Poll feeds every queued chunk into the grid without blocking and returns
// the number of bytes applied.
func (h *Host) Poll() int {
	total := 0
	for {
		select {
		case chunk, ok := <-h.chunks:
			if !ok {
				h.markDrained()
				return total
			}
			h.term.Feed(chunk)
			total += len(chunk)
		default:
			return total
		}
	}
}

// Drain blocks until the output stream ends, feeding everything into the
// grid.
func (h *Host) Drain() int {
	total := 0
	for chunk := range h.chunks {
		h.term.Feed(chunk)
		total += len(chunk)
	}
	h.markDrained()
	return total
}

func (h *Host) markDrained() {
	h.mu.Lock()
	h.drained = true
	h.mu.Unlock()
}

// Done reports whether the output stream ended and was fully applied.
func (h *Host) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.drained
}

// ReadDone is closed when the reader goroutine stops.
func (h *Host) ReadDone() <-chan struct{} {
	return h.readDone
}

// Write sends input to the child.
func (h *Host) Write(p []byte) error {
	return h.session.Write(p)
}

// Resize resizes the PTY first and then the grid, so output produced at the
// new size lands on a grid of the new size.
func (h *Host) Resize(cols, rows uint16) error {
	if err := h.session.Resize(cols, rows); err != nil {
		return err
	}
	h.term.Resize(int(cols), int(rows))
	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.WriteResize(int(cols), int(rows)); err != nil {
			h.log.WithError(err).Warn("recording failed")
		}
	}
	return nil
}

// Signal delivers kind to the child's process group.
func (h *Host) Signal(kind pty.SignalKind) error {
	return h.session.Signal(kind)
}

// Terminal returns the grid.
func (h *Host) Terminal() *term.Terminal {
	return h.term
}

// History returns the most recent raw output, oldest first.
func (h *Host) History() []byte {
	return h.history.Bytes()
}

// Wait blocks until the child exits.
func (h *Host) Wait() (pty.ExitStatus, error) {
	return h.session.Wait()
}

// Exited is closed once the child has been reaped.
func (h *Host) Exited() <-chan struct{} {
	return h.session.Exited()
}

// PID returns the child's process ID.
func (h *Host) PID() int {
	return h.session.PID()
}

// CloseInput ends the child's input without stopping it.
func (h *Host) CloseInput() error {
	return h.session.Close()
}

// Close kills the child if it is still running and releases the PTY.
func (h *Host) Close() error {
	h.session.Close()
	if err := h.session.Kill(); err != nil {
		h.log.WithError(err).Debug("kill failed")
	}
	return h.session.Release()
}

// Err returns the read error that ended the output stream, if any.
func (h *Host) Err() error {
	<-h.readDone
	return h.readErr
}
