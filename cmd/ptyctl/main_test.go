package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/3xecutablefile/terminal-ui/internal/bridge"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
)

func clientFor(stream string) *bridge.Client {
	return bridge.NewClient(bridge.NewLineTransport(strings.NewReader(stream), &bytes.Buffer{}))
}

// TestRelayOutput tests that output is copied until the exit message
func TestRelayOutput(t *testing.T) {
	stream := `{"t":"o","data":"aGk=","seq":0}` + "\n" +
		`{"t":"o","data":"IQ==","seq":1}` + "\n" +
		`{"t":"x","code":3}` + "\n" +
		`{"t":"o","data":"bGF0ZQ==","seq":2}` + "\n"

	var out bytes.Buffer
	status, err := relayOutput(clientFor(stream), &out, logging.Discard())
	if err != nil {
		t.Fatalf("relayOutput: %v", err)
	}
	if out.String() != "hi!" {
		t.Errorf("Expected hi!, got %q", out.String())
	}
	if status.Code != 3 || status.Signal != "" {
		t.Errorf("Expected code 3, got %+v", status)
	}
}

// TestRelayOutputSequenceGap tests that a gap is logged but output still flows
func TestRelayOutputSequenceGap(t *testing.T) {
	stream := `{"t":"o","data":"YQ==","seq":0}` + "\n" +
		`{"t":"o","data":"Yg==","seq":5}` + "\n" +
		`{"t":"x","code":1,"signal":"SIGINT"}` + "\n"

	var out bytes.Buffer
	status, err := relayOutput(clientFor(stream), &out, logging.Discard())
	if err != nil {
		t.Fatalf("relayOutput: %v", err)
	}
	if out.String() != "ab" {
		t.Errorf("Expected ab, got %q", out.String())
	}
	if status.Signal != "SIGINT" {
		t.Errorf("Expected SIGINT, got %+v", status)
	}
}

// TestRelayOutputMissingExit tests a daemon that dies mid-stream
func TestRelayOutputMissingExit(t *testing.T) {
	stream := `{"t":"o","data":"YQ==","seq":0}` + "\n"

	_, err := relayOutput(clientFor(stream), &bytes.Buffer{}, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "without an exit message") {
		t.Errorf("Expected missing exit error, got %v", err)
	}
}

// TestExitError tests the exit code carrier
func TestExitError(t *testing.T) {
	var err error = &exitError{code: 7}
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 7 || err.Error() != "exit status 7" {
		t.Errorf("Unexpected exit error %v", err)
	}
}
