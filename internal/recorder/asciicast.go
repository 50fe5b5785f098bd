// Package recorder writes and reads session recordings in asciicast v2
// format: a JSON header line followed by one [time, code, data] event per
// line.
package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/3xecutablefile/terminal-ui/internal/term"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event codes.
const (
	CodeOutput = "o"
	CodeInput  = "i"
	CodeResize = "r"
)

// Header is the first line of a recording.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is one recorded chunk.
type Event struct {
	Time float64
	Code string
	Data string
}

// MarshalJSON encodes the event as a three element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Time, e.Code, e.Data})
}

// UnmarshalJSON decodes a three element array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}
	t, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid event time %v", arr[0])
	}
	code, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event code %v", arr[1])
	}
	data2, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data %v", arr[2])
	}
	e.Time, e.Code, e.Data = t, code, data2
	return nil
}

// Recorder appends events to an asciicast stream. It is safe for
// concurrent use; the output and input paths of a bridge write from
// different goroutines.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	file  *os.File
	start time.Time
	now   func() time.Time
}

// Create opens path for writing and writes the header.
func Create(path string, cols, rows int, env map[string]string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	r := New(file)
	r.file = file
	if err := r.WriteHeader(cols, rows, env); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// New returns a Recorder writing to w. The caller writes the header.
func New(w io.Writer) *Recorder {
	return newWithClock(w, time.Now)
}

func newWithClock(w io.Writer, now func() time.Time) *Recorder {
	return &Recorder{w: w, start: now(), now: now}
}

// WriteHeader writes the header line.
func (r *Recorder) WriteHeader(cols, rows int, env map[string]string) error {
	data, err := json.Marshal(Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.start.Unix(),
		Env:       env,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	return r.writeLine(data)
}

// WriteOutput records bytes produced by the child.
func (r *Recorder) WriteOutput(data []byte) error {
	return r.writeEvent(CodeOutput, string(data))
}

// WriteInput records bytes sent to the child.
func (r *Recorder) WriteInput(data []byte) error {
	return r.writeEvent(CodeInput, string(data))
}

// WriteResize records a window size change as "COLSxROWS".
func (r *Recorder) WriteResize(cols, rows int) error {
	return r.writeEvent(CodeResize, fmt.Sprintf("%dx%d", cols, rows))
}

func (r *Recorder) writeEvent(code, data string) error {
	event := Event{Time: r.now().Sub(r.start).Seconds(), Code: code, Data: data}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.writeLine(line)
}

func (r *Recorder) writeLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// Close closes the underlying file when the Recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Read decodes a whole recording.
func Read(src io.Reader) (Header, []Event, error) {
	var header Header
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return header, nil, err
		}
		return header, nil, io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return header, nil, fmt.Errorf("invalid header: %w", err)
	}
	if header.Version != 2 {
		return header, nil, fmt.Errorf("unsupported asciicast version %d", header.Version)
	}

	var events []Event
	for line := 2; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return header, events, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return header, events, sc.Err()
}

// ParseSize decodes the data of a resize event.
func ParseSize(data string) (cols, rows int, ok bool) {
	c, r, found := strings.Cut(data, "x")
	if !found {
		return 0, 0, false
	}
	cols, err := strconv.Atoi(c)
	if err != nil || cols < 1 {
		return 0, 0, false
	}
	rows, err = strconv.Atoi(r)
	if err != nil || rows < 1 {
		return 0, 0, false
	}
	return cols, rows, true
}

// Replay feeds the recorded output through a terminal of the recorded
// size, applying resizes where they occurred, and returns the terminal.
func Replay(header Header, events []Event) *term.Terminal {
	t := term.New(header.Width, header.Height)
	for _, ev := range events {
		switch ev.Code {
		case CodeOutput:
			t.Feed([]byte(ev.Data))
		case CodeResize:
			if cols, rows, ok := ParseSize(ev.Data); ok {
				t.Resize(cols, rows)
			}
		}
	}
	return t
}
