// Command ptyterm runs a command on a pseudo-terminal inside this process,
// renders its output into a terminal grid and prints the final screen. With
// --replay it renders an asciicast recording instead.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/3xecutablefile/terminal-ui/internal/config"
	"github.com/3xecutablefile/terminal-ui/internal/host"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/pty"
	"github.com/3xecutablefile/terminal-ui/internal/recorder"
	"github.com/3xecutablefile/terminal-ui/internal/term"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Screen is the --json rendering of the final grid.
type Screen struct {
	Cols   int      `json:"cols"`
	Rows   int      `json:"rows"`
	Lines  []string `json:"lines"`
	Cursor [2]int   `json:"cursor"`
	Code   *int32   `json:"code,omitempty"`
	Signal string   `json:"signal,omitempty"`
}

type options struct {
	replay  string
	input   string
	timeout time.Duration
	asJSON  bool
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "ptyterm:", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "ptyterm [flags] [-- command args...]",
		Short:         "Render a command's terminal output and print the final screen",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.replay != "" {
				return replay(opts.replay, opts.asJSON, cmd.OutOrStdout())
			}
			cfg, err := config.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg, args, opts, cmd.OutOrStdout())
		},
	}
	config.AddSessionFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.replay, "replay", "", "render this asciicast recording instead of running a command")
	cmd.Flags().StringVar(&opts.input, "input", "", "text to type before input is closed")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "terminate the command after this long")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the screen as JSON")
	return cmd
}

func replay(path string, asJSON bool, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header, events, err := recorder.Read(f)
	if err != nil {
		return err
	}
	return printScreen(out, recorder.Replay(header, events), nil, asJSON)
}

func run(cfg config.Config, args []string, opts options, out io.Writer) error {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	hostOpts := host.Options{ReadBufferSize: cfg.ReadBufferSize, Logger: log}
	if cfg.RecordPath != "" {
		rec, err := recorder.Create(cfg.RecordPath, int(cfg.Cols), int(cfg.Rows), map[string]string{"TERM": "xterm-256color"})
		if err != nil {
			return err
		}
		defer rec.Close()
		hostOpts.Recorder = rec
	}

	h, err := start(cfg, args, hostOpts)
	if err != nil {
		return err
	}
	defer h.Close()

	if opts.input != "" {
		if err := h.Write([]byte(opts.input)); err != nil {
			return err
		}
	}
	if err := h.CloseInput(); err != nil {
		log.WithError(err).Debug("closing input failed")
	}

	drained := make(chan struct{})
	go func() {
		h.Drain()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(opts.timeout):
		log.WithField("timeout", opts.timeout).Warn("command still running; terminating")
		h.Signal(pty.Terminate)
		select {
		case <-drained:
		case <-time.After(cfg.DrainTimeout):
			h.Close()
			<-drained
		}
	}

	status, err := h.Wait()
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"code": status.Code, "signal": status.Signal}).Debug("command exited")

	if err := printScreen(out, h.Terminal(), &status, opts.asJSON); err != nil {
		return err
	}
	if !status.Success() {
		return &exitError{code: int(status.Code)}
	}
	return nil
}

func start(cfg config.Config, args []string, opts host.Options) (*host.Host, error) {
	if len(args) == 0 {
		return host.Start(cfg.Cols, cfg.Rows, cfg.ShellPrefs(), opts)
	}
	startOpts := pty.ShellOptions(cfg.Cols, cfg.Rows, cfg.ShellPrefs())
	startOpts.Command, startOpts.Args = args[0], args[1:]
	return host.StartCommand(startOpts, opts)
}

func printScreen(out io.Writer, t *term.Terminal, status *pty.ExitStatus, asJSON bool) error {
	snap := t.Snapshot()

	if asJSON {
		screen := Screen{
			Cols:   snap.Cols,
			Rows:   snap.Rows,
			Lines:  snap.Lines(),
			Cursor: [2]int{snap.Cursor.Col, snap.Cursor.Row},
		}
		if status != nil {
			screen.Code = &status.Code
			screen.Signal = status.Signal
		}
		return json.NewEncoder(out).Encode(screen)
	}

	_, err := fmt.Fprintln(out, snap.Text())
	return err
}
