//go:build windows

package pty

import (
	"golang.org/x/sys/windows"
)

// signalGroup maps kind to a console control event. Windows has no
// terminate or quit signal for console programs, so both become
// CTRL_BREAK_EVENT.
func signalGroup(pid int, kind SignalKind) error {
	event := uint32(windows.CTRL_BREAK_EVENT)
	if kind == Interrupt {
		event = windows.CTRL_C_EVENT
	}
	return windows.GenerateConsoleCtrlEvent(event, uint32(pid))
}
