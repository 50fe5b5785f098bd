package ws

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/3xecutablefile/terminal-ui/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Input frames carry base64,
	// so this bounds a single paste at roughly 768 KiB.
	maxMessageSize = 1 << 20

	sendQueueSize = 256
)

// ErrClosed is returned by WriteLine after Close.
var ErrClosed = errors.New("websocket connection closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SetCheckOrigin sets a custom origin checker for Upgrade. The default
// rejects cross-origin requests.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// Conn is a bridge.Transport over one WebSocket connection.
type Conn struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	send      chan []byte
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// Upgrade switches the HTTP request to the WebSocket protocol. On failure
// the upgrader has already written an HTTP error response.
func Upgrade(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, log), nil
}

// NewConn wraps an established connection and starts its write pump.
func NewConn(conn *websocket.Conn, log logrus.FieldLogger) *Conn {
	if log == nil {
		log = logging.Discard()
	}
	c := &Conn{
		conn:     conn,
		log:      log,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump()
	return c
}

// ReadLine returns the payload of the next text frame. Binary frames are
// skipped. A closed connection reads as io.EOF.
func (c *Conn) ReadLine() ([]byte, error) {
	for {
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return nil, io.EOF
		}
		if kind != websocket.TextMessage {
			continue
		}
		return message, nil
	}
}

// WriteLine queues line as one text frame. It blocks while the queue is
// full and fails once the connection is closed.
func (c *Conn) WriteLine(line []byte) error {
	frame := append([]byte(nil), line...)
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.pumpDone:
		return ErrClosed
	}
}

// Close flushes queued frames, sends a close frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.pumpDone
	return nil
}

// Reject closes the connection with a close code and reason, for a
// connection that could not be served.
func (c *Conn) Reject(code int, reason string) error {
	// Control frame payloads are limited to 125 bytes.
	if len(reason) > 120 {
		reason = reason[:120]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
	return err
}

func (c *Conn) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// writePump owns every write to the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Debug("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Frames queued before Close still go out, the exit message last.
		flush:
			for {
				select {
				case message := <-c.send:
					if err := c.write(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					break flush
				}
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
