package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

const (
	// DefaultReadBufferSize bounds a single output message.
	DefaultReadBufferSize = 64 * 1024

	// DefaultDrainTimeout is how long the daemon waits for buffered output
	// after the child exits before it forcibly closes the PTY.
	DefaultDrainTimeout = 2 * time.Second
)

// Session is the PTY session a daemon drives. *pty.Session implements it.
type Session interface {
	TakeReader() (io.Reader, error)
	Write(p []byte) error
	Resize(cols, rows uint16) error
	Signal(kind pty.SignalKind) error
	Close() error
	Wait() (pty.ExitStatus, error)
	Exited() <-chan struct{}
	Kill() error
	Release() error
	PID() int
}

// Recorder receives a copy of the traffic. *recorder.Recorder implements it.
type Recorder interface {
	WriteOutput(data []byte) error
	WriteInput(data []byte) error
	WriteResize(cols, rows int) error
}

// Options configures a Daemon. Zero values select defaults.
type Options struct {
	ReadBufferSize int
	DrainTimeout   time.Duration
	Logger         logrus.FieldLogger
	Recorder       Recorder

	// OnResize is called after a successful resize.
	OnResize func(cols, rows uint16)

	// ExitWithChild ends the input loop as soon as the child exits instead
	// of waiting for the transport to reach end of input.
	ExitWithChild bool
}

// Daemon relays one session over one transport.
type Daemon struct {
	session   Session
	transport Transport
	opts      Options
	log       logrus.FieldLogger

	// sendMu orders outbound messages; exitSent stops output after exit.
	sendMu   sync.Mutex
	seq      uint64
	exitSent bool
}

// NewDaemon prepares a daemon; nothing runs until Run.
func NewDaemon(session Session, transport Transport, opts Options) *Daemon {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Daemon{
		session:   session,
		transport: transport,
		opts:      opts,
		log:       log.WithField("pid", session.PID()),
	}
}

type lineResult struct {
	line []byte
	err  error
}

// Run relays until the child has exited and its exit message was sent, and
// returns the child's status.
//
// Input is applied strictly in arrival order. When the transport reaches
// end of input, the child's input is closed and Run waits for the child.
// With ExitWithChild, the child exiting on its own ends input as well.
// Cancelling ctx terminates the child instead. A malformed request ends Run
// immediately with a *ProtocolError and no exit message. The session is
// released before Run returns.
func (d *Daemon) Run(ctx context.Context) (pty.ExitStatus, error) {
	defer d.session.Release()

	reader, err := d.session.TakeReader()
	if err != nil {
		return pty.ExitStatus{}, err
	}

	outputDone := make(chan error, 1)
	go func() { outputDone <- d.pumpOutput(reader) }()

	stop := make(chan struct{})
	defer close(stop)
	lines := make(chan lineResult)
	go d.readLines(lines, stop)

	var childExited <-chan struct{}
	if d.opts.ExitWithChild {
		childExited = d.session.Exited()
	}

	cancelled := false
loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case <-childExited:
			d.log.Debug("child exited with input still open")
			break loop
		case res := <-lines:
			if res.err != nil {
				if !errors.Is(res.err, io.EOF) {
					d.log.WithError(res.err).Warn("transport read failed; treating as end of input")
				}
				break loop
			}
			if err := d.handleLine(res.line); err != nil {
				return pty.ExitStatus{}, err
			}
		}
	}

	return d.shutdown(cancelled, outputDone)
}

func (d *Daemon) readLines(out chan<- lineResult, stop <-chan struct{}) {
	for {
		line, err := d.transport.ReadLine()
		select {
		case out <- lineResult{line: line, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// handleLine applies one request. Only protocol errors are returned; PTY
// failures are logged and the loop continues.
func (d *Daemon) handleLine(line []byte) error {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}

	req, err := ParseRequest(line)
	if err != nil {
		d.log.WithError(err).Error("rejecting malformed request")
		return err
	}

	switch r := req.(type) {
	case InputRequest:
		if err := d.session.Write(r.Data); err != nil {
			d.log.WithError(err).Warn("write to pty failed")
			return nil
		}
		d.record(func(rec Recorder) error { return rec.WriteInput(r.Data) })

	case ResizeRequest:
		if err := d.session.Resize(r.Cols, r.Rows); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"cols": r.Cols, "rows": r.Rows}).Warn("resize failed")
			return nil
		}
		d.record(func(rec Recorder) error { return rec.WriteResize(int(r.Cols), int(r.Rows)) })
		if d.opts.OnResize != nil {
			d.opts.OnResize(r.Cols, r.Rows)
		}

	case SignalRequest:
		if err := d.session.Signal(r.Signal); err != nil {
			d.log.WithError(err).WithField("signal", r.Signal.String()).Warn("signal delivery failed")
		}
	}
	return nil
}

// pumpOutput forwards PTY output until end of stream. Once the transport
// fails, output is still drained so the child never blocks on a full PTY.
func (d *Daemon) pumpOutput(reader io.Reader) error {
	buf := make([]byte, d.opts.ReadBufferSize)
	sending := true
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if sending {
				if serr := d.sendOutput(chunk); serr != nil {
					if errors.Is(serr, errExitSent) {
						return nil
					}
					d.log.WithError(serr).Warn("transport write failed; discarding output")
					sending = false
				}
			}
			d.record(func(rec Recorder) error { return rec.WriteOutput(chunk) })
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return &pty.IOError{Op: "read", Err: err}
		}
	}
}

var errExitSent = errors.New("exit already sent")

func (d *Daemon) sendOutput(chunk []byte) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.exitSent {
		return errExitSent
	}
	line, err := json.Marshal(NewOutputMessage(chunk, d.seq))
	if err != nil {
		return err
	}
	if err := d.transport.WriteLine(line); err != nil {
		return err
	}
	d.seq++
	return nil
}

func (d *Daemon) sendExit(status pty.ExitStatus) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	d.exitSent = true
	line, err := json.Marshal(NewExitMessage(status))
	if err != nil {
		return err
	}
	return d.transport.WriteLine(line)
}

// OutputCount returns how many output messages have been sent.
func (d *Daemon) OutputCount() uint64 {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	return d.seq
}

func (d *Daemon) shutdown(cancelled bool, outputDone <-chan error) (pty.ExitStatus, error) {
	if cancelled {
		d.log.Info("shutdown requested; terminating child")
		if err := d.session.Signal(pty.Terminate); err != nil {
			d.log.WithError(err).Debug("terminate signal failed")
		}
		select {
		case <-d.session.Exited():
		case <-time.After(d.opts.DrainTimeout):
			d.log.Warn("child ignored terminate; killing")
			d.session.Kill()
		}
	}

	if err := d.session.Close(); err != nil {
		d.log.WithError(err).Debug("closing pty input failed")
	}

	status, waitErr := d.session.Wait()
	if waitErr != nil {
		d.log.WithError(waitErr).Warn("wait for child failed")
	}

	// All output is forwarded before the exit message. If the stream stays
	// open (a grandchild still holds the terminal), close it ourselves.
	select {
	case err := <-outputDone:
		d.logOutputErr(err)
	case <-time.After(d.opts.DrainTimeout):
		d.log.Warn("pty output still open after child exit; releasing")
		d.session.Release()
		select {
		case err := <-outputDone:
			d.logOutputErr(err)
		case <-time.After(d.opts.DrainTimeout):
			d.log.Warn("output reader did not stop; sending exit anyway")
		}
	}

	d.log.WithFields(logrus.Fields{"code": status.Code, "signal": status.Signal}).Info("child exited")
	if err := d.sendExit(status); err != nil {
		return status, err
	}
	return status, nil
}

func (d *Daemon) logOutputErr(err error) {
	if err != nil {
		d.log.WithError(err).Warn("output relay stopped early")
	}
}

func (d *Daemon) record(fn func(Recorder) error) {
	if d.opts.Recorder == nil {
		return
	}
	if err := fn(d.opts.Recorder); err != nil {
		d.log.WithError(err).Warn("recording failed")
	}
}
