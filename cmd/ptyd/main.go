// Command ptyd bridges one shell in a pseudo-terminal to newline-delimited
// JSON on stdin and stdout. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/config"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/recorder"
)

// Exit codes other than the child's own.
const (
	exitSetup    = 1
	exitProtocol = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitSetup)
}

func newRootCmd() *cobra.Command {
	var exitWithChild bool

	cmd := &cobra.Command{
		Use:          "ptyd",
		Short:        "Bridge a shell to NDJSON on stdin and stdout",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg, exitWithChild)
		},
	}
	config.AddSessionFlags(cmd.Flags())
	cmd.Flags().BoolVar(&exitWithChild, "exit-with-child", false, "stop reading stdin once the shell exits")
	return cmd
}

func run(cfg config.Config, exitWithChild bool) error {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	opts := pty.ShellOptions(cfg.Cols, cfg.Rows, cfg.ShellPrefs())
	session, err := pty.SpawnCommand(opts)
	if err != nil {
		log.WithError(err).Error("failed to start shell")
		return err
	}

	daemonOpts := bridge.Options{
		ReadBufferSize: cfg.ReadBufferSize,
		DrainTimeout:   cfg.DrainTimeout,
		Logger:         log,
		ExitWithChild:  exitWithChild,
	}

	if cfg.RecordPath != "" {
		rec, err := recorder.Create(cfg.RecordPath, int(cfg.Cols), int(cfg.Rows), map[string]string{
			"SHELL": opts.Command,
			"TERM":  "xterm-256color",
		})
		if err != nil {
			log.WithError(err).Warn("recording disabled")
		} else {
			defer rec.Close()
			daemonOpts.Recorder = rec
		}
	}

	var j *journal
	if cfg.DBPath != "" {
		j, err = openJournal(cfg.DBPath, opts, session.PID(), log)
		if err != nil {
			log.WithError(err).Warn("journal disabled")
		} else {
			defer j.close()
			daemonOpts.OnResize = j.resized
		}
	}

	log.WithFields(logrus.Fields{"shell": opts.Command, "cols": cfg.Cols, "rows": cfg.Rows}).Info("shell started")

	status, err := bridge.NewDaemon(session, bridge.NewLineTransport(os.Stdin, os.Stdout), daemonOpts).Run(ctx)
	if err != nil {
		session.Kill()
		j.failed()
		var perr *bridge.ProtocolError
		if errors.As(err, &perr) {
			return &exitError{code: exitProtocol, err: err}
		}
		return err
	}

	j.exited(status)
	if ctx.Err() != nil {
		log.Info("terminated by signal")
	}
	return nil
}
