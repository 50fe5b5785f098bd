package bridge

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// TestClientRequests tests what the controller puts on the wire
func TestClientRequests(t *testing.T) {
	var out strings.Builder
	c := NewClient(NewLineTransport(strings.NewReader(""), &out))

	c.SendInput([]byte("ls\n"))
	c.Resize(80, 24)
	c.Signal(pty.Interrupt)

	expected := `{"t":"i","data":"bHMK"}` + "\n" +
		`{"t":"r","cols":80,"rows":24}` + "\n" +
		`{"t":"s","sig":"INT"}` + "\n"
	if out.String() != expected {
		t.Errorf("Expected\n%s\ngot\n%s", expected, out.String())
	}
}

// TestClientSequenceGap tests gap detection and resync
func TestClientSequenceGap(t *testing.T) {
	in := strings.Join([]string{
		`{"t":"o","data":"YQ==","seq":0}`,
		``,
		`{"t":"o","data":"Yg==","seq":1}`,
		`{"t":"o","data":"ZA==","seq":3}`,
		`{"t":"o","data":"ZQ==","seq":4}`,
		`{"t":"x","code":0}`,
	}, "\n")
	c := NewClient(NewLineTransport(strings.NewReader(in), io.Discard))

	var data []string
	var gaps []*SequenceError
	for !c.Exited() {
		ev, err := c.Next()
		var serr *SequenceError
		if errors.As(err, &serr) {
			gaps = append(gaps, serr)
		} else if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.Type == TypeOutput {
			data = append(data, string(ev.Data))
		}
	}

	if strings.Join(data, "") != "abde" {
		t.Errorf("Expected abde, got %q", data)
	}
	if len(gaps) != 1 || gaps[0].Want != 2 || gaps[0].Got != 3 {
		t.Errorf("Expected one gap 2->3, got %+v", gaps)
	}

	if _, err := c.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF after exit, got %v", err)
	}
}
