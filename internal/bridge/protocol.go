// Package bridge exposes a PTY session over a line-oriented JSON protocol.
//
// Each message is one JSON object on its own line, discriminated by "t".
// Controllers send input ("i"), resize ("r") and signal ("s") requests; the
// daemon replies with output ("o") messages numbered from zero and exactly
// one final exit ("x") message.
package bridge

import (
	"encoding/base64"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType is the value of the "t" field.
type MessageType string

const (
	TypeInput  MessageType = "i"
	TypeResize MessageType = "r"
	TypeSignal MessageType = "s"
	TypeOutput MessageType = "o"
	TypeExit   MessageType = "x"
)

// Request is a decoded inbound message.
type Request interface {
	Type() MessageType
}

// InputRequest carries raw bytes for the child's input.
type InputRequest struct {
	Data []byte
}

// ResizeRequest changes the window size.
type ResizeRequest struct {
	Cols uint16
	Rows uint16
}

// SignalRequest delivers a signal to the child's process group.
type SignalRequest struct {
	Signal pty.SignalKind
}

func (InputRequest) Type() MessageType  { return TypeInput }
func (ResizeRequest) Type() MessageType { return TypeResize }
func (SignalRequest) Type() MessageType { return TypeSignal }

// wireMessage is the union of every field any message may carry.
type wireMessage struct {
	Type   MessageType `json:"t"`
	Data   *string     `json:"data,omitempty"`
	Cols   *uint16     `json:"cols,omitempty"`
	Rows   *uint16     `json:"rows,omitempty"`
	Sig    *string     `json:"sig,omitempty"`
	Seq    *uint64     `json:"seq,omitempty"`
	Code   *int32      `json:"code,omitempty"`
	Signal *string     `json:"signal,omitempty"`
}

var (
	errMissingField = errors.New("missing field")
	errUnknownType  = errors.New("unknown message type")
)

// ParseRequest decodes one inbound line. Every failure is a *ProtocolError.
func ParseRequest(line []byte) (Request, error) {
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, newProtocolError(line, err)
	}

	switch msg.Type {
	case TypeInput:
		if msg.Data == nil {
			return nil, newProtocolError(line, fmt.Errorf("%w: data", errMissingField))
		}
		data, err := base64.StdEncoding.DecodeString(*msg.Data)
		if err != nil {
			return nil, newProtocolError(line, fmt.Errorf("invalid base64 data: %w", err))
		}
		return InputRequest{Data: data}, nil

	case TypeResize:
		if msg.Cols == nil || msg.Rows == nil {
			return nil, newProtocolError(line, fmt.Errorf("%w: cols and rows", errMissingField))
		}
		return ResizeRequest{Cols: *msg.Cols, Rows: *msg.Rows}, nil

	case TypeSignal:
		if msg.Sig == nil {
			return nil, newProtocolError(line, fmt.Errorf("%w: sig", errMissingField))
		}
		kind, err := pty.ParseSignal(*msg.Sig)
		if err != nil {
			return nil, newProtocolError(line, err)
		}
		return SignalRequest{Signal: kind}, nil
	}

	return nil, newProtocolError(line, fmt.Errorf("%w %q", errUnknownType, msg.Type))
}

// EncodeRequest renders req as one line, without the trailing newline.
func EncodeRequest(req Request) ([]byte, error) {
	msg := wireMessage{Type: req.Type()}
	switch r := req.(type) {
	case InputRequest:
		data := base64.StdEncoding.EncodeToString(r.Data)
		msg.Data = &data
	case ResizeRequest:
		msg.Cols, msg.Rows = &r.Cols, &r.Rows
	case SignalRequest:
		sig := r.Signal.String()
		msg.Sig = &sig
	default:
		return nil, fmt.Errorf("%w %T", errUnknownType, req)
	}
	return json.Marshal(msg)
}

// OutputMessage is a chunk of child output.
type OutputMessage struct {
	Type MessageType `json:"t"`
	Data string      `json:"data"`
	Seq  uint64      `json:"seq"`
}

// ExitMessage reports how the child ended. Signal is omitted when empty.
type ExitMessage struct {
	Type   MessageType `json:"t"`
	Code   int32       `json:"code"`
	Signal string      `json:"signal,omitempty"`
}

// NewOutputMessage base64-encodes data.
func NewOutputMessage(data []byte, seq uint64) OutputMessage {
	return OutputMessage{
		Type: TypeOutput,
		Data: base64.StdEncoding.EncodeToString(data),
		Seq:  seq,
	}
}

// NewExitMessage converts an exit status.
func NewExitMessage(status pty.ExitStatus) ExitMessage {
	return ExitMessage{Type: TypeExit, Code: status.Code, Signal: status.Signal}
}

// Event is a decoded outbound message, as seen by a controller.
type Event struct {
	Type MessageType

	// Output
	Data []byte
	Seq  uint64

	// Exit
	Status pty.ExitStatus
}

// ParseEvent decodes one outbound line.
func ParseEvent(line []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Event{}, newProtocolError(line, err)
	}

	switch msg.Type {
	case TypeOutput:
		if msg.Data == nil || msg.Seq == nil {
			return Event{}, newProtocolError(line, fmt.Errorf("%w: data and seq", errMissingField))
		}
		data, err := base64.StdEncoding.DecodeString(*msg.Data)
		if err != nil {
			return Event{}, newProtocolError(line, fmt.Errorf("invalid base64 data: %w", err))
		}
		return Event{Type: TypeOutput, Data: data, Seq: *msg.Seq}, nil

	case TypeExit:
		if msg.Code == nil {
			return Event{}, newProtocolError(line, fmt.Errorf("%w: code", errMissingField))
		}
		ev := Event{Type: TypeExit, Status: pty.ExitStatus{Code: *msg.Code}}
		if msg.Signal != nil {
			ev.Status.Signal = *msg.Signal
		}
		return ev, nil
	}

	return Event{}, newProtocolError(line, fmt.Errorf("%w %q", errUnknownType, msg.Type))
}
