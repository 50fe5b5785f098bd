//go:build !windows
// +build !windows

package pty

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// eofChars is written when input is closed: a newline so the EOF character
// lands at the start of a line, then the default VEOF (^D).
var eofChars = []byte{'\n', 0x04}

// unixPTY implements backend on top of a POSIX pseudo-terminal master.
type unixPTY struct {
	master *os.File
}

// Read reads child output. EIO, which Linux reports once the slave side has
// no more holders, is mapped to io.EOF.
func (p *unixPTY) Read(b []byte) (int, error) {
	n, err := p.master.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func (p *unixPTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *unixPTY) Close() error {
	return p.master.Close()
}

func (p *unixPTY) CloseWrite() error {
	_, err := p.master.Write(eofChars)
	return err
}

func (p *unixPTY) Resize(cols, rows uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Cols: cols, Rows: rows})
}

// start opens a PTY pair and runs opts.Command as a session leader with the
// slave as its controlling terminal.
func start(opts StartOptions) (*process, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, &SpawnError{Op: "open pty", Command: opts.Command, Err: err}
	}

	if err := pty.Setsize(master, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows}); err != nil {
		master.Close()
		slave.Close()
		return nil, &SpawnError{Op: "set window size", Command: opts.Command, Err: err}
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, &SpawnError{Op: "start process", Command: opts.Command, Err: err}
	}

	// The child holds its own copy of the slave.
	slave.Close()

	return &process{
		pty:  &unixPTY{master: master},
		pid:  cmd.Process.Pid,
		wait: func() (ExitStatus, error) { return waitStatus(cmd) },
		kill: func() error { return cmd.Process.Kill() },
	}, nil
}

// waitStatus reaps cmd. A child killed by a signal reports code 1 and the
// signal's name.
func waitStatus(cmd *exec.Cmd) (ExitStatus, error) {
	err := cmd.Wait()
	state := cmd.ProcessState
	if state == nil {
		return ExitStatus{Code: -1}, err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: 1, Signal: unix.SignalName(ws.Signal())}, nil
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitStatus{Code: int32(state.ExitCode())}, err
	}
	return ExitStatus{Code: int32(state.ExitCode())}, nil
}
