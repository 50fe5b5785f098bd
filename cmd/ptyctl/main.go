// Command ptyctl runs ptyd as a child and attaches the local terminal to it:
// keystrokes become input requests, output messages are written to stdout
// and window changes become resize requests. It exits with the shell's code.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "ptyctl:", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var (
		ptydPath string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "ptyctl [flags] [-- ptyd flags]",
		Short:         "Attach this terminal to a shell through ptyd",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(logging.Options{Level: logLevel})
			if err != nil {
				return err
			}
			return run(ptydPath, args, log)
		},
	}
	cmd.Flags().StringVar(&ptydPath, "ptyd", "ptyd", "path to the ptyd executable")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}

// windowSize returns the size of the terminal on stdout, or 80x24 when
// stdout is not a terminal.
func windowSize() (uint16, uint16) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return pty.DefaultCols, pty.DefaultRows
	}
	return uint16(cols), uint16(rows)
}

func run(ptydPath string, extra []string, log logrus.FieldLogger) error {
	cols, rows := windowSize()
	args := append([]string{
		"--exit-with-child",
		"--cols", strconv.Itoa(int(cols)),
		"--rows", strconv.Itoa(int(rows)),
	}, extra...)

	daemon := exec.Command(ptydPath, args...)
	daemon.Stderr = os.Stderr
	toDaemon, err := daemon.StdinPipe()
	if err != nil {
		return err
	}
	fromDaemon, err := daemon.StdoutPipe()
	if err != nil {
		return err
	}
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("failed to start ptyd: %w", err)
	}

	client := bridge.NewClient(bridge.NewLineTransport(fromDaemon, toDaemon))

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			log.WithError(err).Warn("failed to enter raw mode")
		} else {
			defer term.Restore(stdinFd, oldState)
		}
	}

	go forwardInput(client, toDaemon, log)

	stopResize := watchResize(func() {
		cols, rows := windowSize()
		if err := client.Resize(cols, rows); err != nil {
			log.WithError(err).Debug("resize request failed")
		}
	})
	defer stopResize()

	terms := make(chan os.Signal, 1)
	signal.Notify(terms, syscall.SIGTERM)
	defer signal.Stop(terms)
	go func() {
		for range terms {
			if err := client.Signal(pty.Terminate); err != nil {
				log.WithError(err).Debug("signal request failed")
			}
		}
	}()

	status, relayErr := relayOutput(client, os.Stdout, log)
	waitErr := daemon.Wait()

	if relayErr != nil {
		// ptyd ended without an exit message.
		if waitErr != nil {
			return fmt.Errorf("ptyd failed: %w", waitErr)
		}
		return relayErr
	}
	if status.Code != 0 {
		return &exitError{code: int(status.Code)}
	}
	return nil
}

// forwardInput sends local keystrokes until stdin ends, then closes the
// daemon's input so the shell sees end of input.
func forwardInput(client *bridge.Client, toDaemon io.Closer, log logrus.FieldLogger) {
	defer toDaemon.Close()
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if serr := client.SendInput(buf[:n]); serr != nil {
				log.WithError(serr).Debug("input request failed")
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// relayOutput writes output messages to w until the exit message arrives.
func relayOutput(client *bridge.Client, w io.Writer, log logrus.FieldLogger) (pty.ExitStatus, error) {
	for {
		ev, err := client.Next()
		var seqErr *bridge.SequenceError
		if errors.As(err, &seqErr) {
			log.WithError(err).Warn("output out of order")
		} else if err != nil {
			if errors.Is(err, io.EOF) {
				return pty.ExitStatus{}, errors.New("ptyd closed its output without an exit message")
			}
			return pty.ExitStatus{}, err
		}

		switch ev.Type {
		case bridge.TypeOutput:
			if _, err := w.Write(ev.Data); err != nil {
				return pty.ExitStatus{}, err
			}
		case bridge.TypeExit:
			return ev.Status, nil
		}
	}
}
