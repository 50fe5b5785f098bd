package bridge

import (
	"fmt"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// SequenceError reports a gap or reordering in output sequence numbers.
type SequenceError struct {
	Want uint64
	Got  uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("output sequence gap: expected %d, got %d", e.Want, e.Got)
}

// Client is the controller side of the protocol.
type Client struct {
	transport Transport
	next      uint64
	exited    bool
}

// NewClient wraps a transport connected to a daemon.
func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

func (c *Client) send(req Request) error {
	line, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.transport.WriteLine(line)
}

// SendInput forwards bytes to the child.
func (c *Client) SendInput(p []byte) error {
	return c.send(InputRequest{Data: p})
}

// Resize requests a new window size.
func (c *Client) Resize(cols, rows uint16) error {
	return c.send(ResizeRequest{Cols: cols, Rows: rows})
}

// Signal requests delivery of kind to the child.
func (c *Client) Signal(kind pty.SignalKind) error {
	return c.send(SignalRequest{Signal: kind})
}

// Next returns the next message from the daemon. Blank lines are skipped.
// An out-of-order output message is still returned, together with a
// *SequenceError; the expected sequence then resyncs to it.
func (c *Client) Next() (Event, error) {
	for {
		line, err := c.transport.ReadLine()
		if err != nil {
			return Event{}, err
		}
		if len(line) == 0 {
			continue
		}

		ev, err := ParseEvent(line)
		if err != nil {
			return Event{}, err
		}

		switch ev.Type {
		case TypeOutput:
			want := c.next
			c.next = ev.Seq + 1
			if ev.Seq != want {
				return ev, &SequenceError{Want: want, Got: ev.Seq}
			}
		case TypeExit:
			c.exited = true
		}
		return ev, nil
	}
}

// Exited reports whether the exit message has been received.
func (c *Client) Exited() bool {
	return c.exited
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
