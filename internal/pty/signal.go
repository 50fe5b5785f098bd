package pty

import (
	"fmt"
	"strings"
)

// SignalKind is one of the signals a controller may send to the child.
type SignalKind int

const (
	// Interrupt is SIGINT on POSIX and CTRL_C_EVENT on Windows.
	Interrupt SignalKind = iota + 1

	// Terminate is SIGTERM on POSIX and CTRL_BREAK_EVENT on Windows.
	Terminate

	// Quit is SIGQUIT on POSIX and CTRL_BREAK_EVENT on Windows.
	Quit
)

var signalNames = map[SignalKind]string{
	Interrupt: "INT",
	Terminate: "TERM",
	Quit:      "QUIT",
}

// ParseSignal maps a wire name ("INT", "TERM", "QUIT") to a SignalKind.
// Names are case-sensitive.
func ParseSignal(name string) (SignalKind, error) {
	for kind, n := range signalNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
}

func (k SignalKind) String() string {
	if n, ok := signalNames[k]; ok {
		return n
	}
	return fmt.Sprintf("SignalKind(%d)", int(k))
}

// SignalNames lists the accepted wire names.
func SignalNames() string {
	return strings.Join([]string{"INT", "TERM", "QUIT"}, ", ")
}
