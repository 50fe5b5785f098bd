package pty

import (
	"io"
	"os"
	"runtime"
	"sync"
)

// Session is a PTY pair with a running child process.
//
// The reader is handed out once through TakeReader. Write, Resize and Signal
// may be called from a different goroutine than the reader; concurrent
// writers must serialize among themselves.
type Session struct {
	proc *process

	mu          sync.Mutex
	size        Size
	writeClosed bool
	readerTaken bool

	exited  chan struct{}
	status  ExitStatus
	waitErr error

	releaseOnce sync.Once
	releaseErr  error
}

// Spawn starts the preferred shell on a new PTY of the given size.
func Spawn(cols, rows uint16, prefs ShellPrefs) (*Session, error) {
	return SpawnCommand(ShellOptions(cols, rows, prefs))
}

// ShellOptions returns the StartOptions Spawn uses for prefs. On POSIX the
// child environment has TERM=xterm-256color.
func ShellOptions(cols, rows uint16, prefs ShellPrefs) StartOptions {
	command, args := NewShellResolver().Command(prefs)
	env := os.Environ()
	if runtime.GOOS != "windows" {
		env = withEnv(env, "TERM", "xterm-256color")
	}
	return StartOptions{
		Command: command,
		Args:    args,
		Env:     env,
		Cols:    cols,
		Rows:    rows,
	}
}

// SpawnCommand starts an arbitrary command on a new PTY.
func SpawnCommand(opts StartOptions) (*Session, error) {
	if opts.Cols == 0 {
		opts.Cols = DefaultCols
	}
	if opts.Rows == 0 {
		opts.Rows = DefaultRows
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}

	proc, err := start(opts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		proc:   proc,
		size:   Size{Cols: opts.Cols, Rows: opts.Rows},
		exited: make(chan struct{}),
	}
	go s.waitLoop()
	return s, nil
}

func (s *Session) waitLoop() {
	status, err := s.proc.wait()
	s.status = status
	s.waitErr = err
	close(s.exited)
}

// PID returns the child's process ID.
func (s *Session) PID() int {
	return s.proc.pid
}

// Size returns the last size applied to the PTY.
func (s *Session) Size() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// TakeReader returns the output stream of the PTY. It can be taken exactly
// once; later calls return ErrReaderTaken. Reads return io.EOF once the
// child has exited and all buffered output has been consumed.
func (s *Session) TakeReader() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readerTaken {
		return nil, ErrReaderTaken
	}
	s.readerTaken = true
	return s.proc.pty, nil
}

// Write sends p to the child's input. After Close it does nothing.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	closed := s.writeClosed
	s.mu.Unlock()
	if closed || len(p) == 0 {
		return nil
	}

	for len(p) > 0 {
		n, err := s.proc.pty.Write(p)
		if err != nil {
			return &IOError{Op: "write", Err: err}
		}
		p = p[n:]
	}
	return nil
}

// Resize changes the PTY window size.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return &IOError{Op: "resize", Err: ErrInvalidSize}
	}
	if err := s.proc.pty.Resize(cols, rows); err != nil {
		return &IOError{Op: "resize", Err: err}
	}
	s.mu.Lock()
	s.size = Size{Cols: cols, Rows: rows}
	s.mu.Unlock()
	return nil
}

// Signal delivers kind to the child's process group.
func (s *Session) Signal(kind SignalKind) error {
	pid := s.proc.pid
	if pid <= 0 {
		return &SignalError{Signal: kind, PID: pid, Err: ErrNoProcess}
	}
	if _, ok := signalNames[kind]; !ok {
		return &SignalError{Signal: kind, PID: pid, Err: ErrUnknownSignal}
	}
	if err := signalGroup(pid, kind); err != nil {
		return &SignalError{Signal: kind, PID: pid, Err: err}
	}
	return nil
}

// Close ends the child's input. Later writes are no-ops. The child is not
// killed and the output stream stays readable.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.writeClosed {
		s.mu.Unlock()
		return nil
	}
	s.writeClosed = true
	s.mu.Unlock()

	select {
	case <-s.exited:
		return nil
	default:
	}
	if err := s.proc.pty.CloseWrite(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}

// Wait blocks until the child exits and returns its status. It may be
// called any number of times.
func (s *Session) Wait() (ExitStatus, error) {
	<-s.exited
	return s.status, s.waitErr
}

// Exited is closed once the child has been reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// Kill forcibly terminates the child. It does nothing once the child exited.
func (s *Session) Kill() error {
	select {
	case <-s.exited:
		return nil
	default:
	}
	return s.proc.kill()
}

// Release closes the PTY master. Pending and later reads fail, which ends
// any reader still draining output.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.writeClosed = true
		s.mu.Unlock()
		s.releaseErr = s.proc.pty.Close()
	})
	return s.releaseErr
}
