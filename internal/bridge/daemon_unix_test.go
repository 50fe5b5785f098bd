//go:build !windows

package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// TestDaemonWithShell drives a real shell through the protocol
func TestDaemonWithShell(t *testing.T) {
	session, err := pty.SpawnCommand(pty.StartOptions{Command: "/bin/sh"})
	if err != nil {
		var spawnErr *pty.SpawnError
		if errors.As(err, &spawnErr) && spawnErr.Op == "open pty" {
			t.Skipf("pty unavailable: %v", err)
		}
		t.Fatalf("SpawnCommand: %v", err)
	}

	var in strings.Builder
	for _, req := range []Request{
		ResizeRequest{Cols: 100, Rows: 30},
		InputRequest{Data: []byte("stty size; echo done-$((6*7))\n")},
	} {
		line, _ := EncodeRequest(req)
		in.Write(line)
		in.WriteByte('\n')
	}

	daemonOut, clientIn := io.Pipe()
	tr := NewLineTransport(strings.NewReader(in.String()), clientIn)
	client := NewClient(NewLineTransport(daemonOut, io.Discard))

	done := make(chan runResult, 1)
	go func() {
		status, err := NewDaemon(session, tr, Options{}).Run(context.Background())
		clientIn.Close()
		done <- runResult{status, err}
	}()

	var output strings.Builder
	var exit *Event
	timeout := time.After(10 * time.Second)
	events := make(chan Event)
	errs := make(chan error, 1)
	go func() {
		for {
			ev, err := client.Next()
			if err != nil {
				errs <- err
				return
			}
			events <- ev
		}
	}()

	for exit == nil {
		select {
		case ev := <-events:
			switch ev.Type {
			case TypeOutput:
				output.Write(ev.Data)
			case TypeExit:
				e := ev
				exit = &e
			}
		case err := <-errs:
			t.Fatalf("client: %v", err)
		case <-timeout:
			t.Fatalf("timed out; output so far %q", output.String())
		}
	}

	res := waitRun(t, done)
	if res.err != nil {
		t.Fatalf("Run: %v", res.err)
	}
	if !exit.Status.Success() {
		t.Errorf("Expected clean exit, got %+v", exit.Status)
	}
	if !strings.Contains(output.String(), "30 100") {
		t.Errorf("Expected stty to report 30 100, got %q", output.String())
	}
	if !strings.Contains(output.String(), "done-42") {
		t.Errorf("Expected done-42 in output, got %q", output.String())
	}
}
