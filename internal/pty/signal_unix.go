//go:build !windows

package pty

import (
	"golang.org/x/sys/unix"
)

func (k SignalKind) unixSignal() unix.Signal {
	switch k {
	case Interrupt:
		return unix.SIGINT
	case Quit:
		return unix.SIGQUIT
	default:
		return unix.SIGTERM
	}
}

// signalGroup sends kind to the process group led by pid. Children are
// started with Setsid, so the group id equals pid unless the child moved.
func signalGroup(pid int, kind SignalKind) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	return unix.Kill(-pgid, kind.unixSignal())
}
