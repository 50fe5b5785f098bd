//go:build windows
// +build windows

package pty

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

// conPTY implements backend on top of a Windows pseudo console.
type conPTY struct {
	hpc windows.Handle

	// in carries input to the console, out carries console output to us.
	in  *os.File
	out *os.File

	closeInOnce sync.Once
	closeOnce   sync.Once
}

// Read reads console output. A broken pipe after the console closes is
// reported as io.EOF.
func (p *conPTY) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if err != nil && errors.Is(err, windows.ERROR_BROKEN_PIPE) {
		err = io.EOF
	}
	return n, err
}

func (p *conPTY) Write(b []byte) (int, error) {
	return p.in.Write(b)
}

func (p *conPTY) CloseWrite() error {
	var err error
	p.closeInOnce.Do(func() { err = p.in.Close() })
	return err
}

func (p *conPTY) Close() error {
	var err error
	p.closeOnce.Do(func() {
		windows.ClosePseudoConsole(p.hpc)
		if cerr := p.CloseWrite(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = cerr
		}
		if cerr := p.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

func (p *conPTY) Resize(cols, rows uint16) error {
	return windows.ResizePseudoConsole(p.hpc, windows.Coord{X: int16(cols), Y: int16(rows)})
}

// start creates a pseudo console and launches opts.Command attached to it.
func start(opts StartOptions) (*process, error) {
	fail := func(op string, err error) (*process, error) {
		return nil, &SpawnError{Op: op, Command: opts.Command, Err: err}
	}

	var inRead, inWrite, outRead, outWrite windows.Handle
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		return fail("create input pipe", err)
	}
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		windows.CloseHandle(inRead)
		windows.CloseHandle(inWrite)
		return fail("create output pipe", err)
	}

	var hpc windows.Handle
	size := windows.Coord{X: int16(opts.Cols), Y: int16(opts.Rows)}
	err := windows.CreatePseudoConsole(size, inRead, outWrite, 0, &hpc)
	// The console holds its own references to these ends.
	windows.CloseHandle(inRead)
	windows.CloseHandle(outWrite)
	if err != nil {
		windows.CloseHandle(inWrite)
		windows.CloseHandle(outRead)
		return fail("create pseudo console", err)
	}

	cpty := &conPTY{
		hpc: hpc,
		in:  os.NewFile(uintptr(inWrite), "conpty-in"),
		out: os.NewFile(uintptr(outRead), "conpty-out"),
	}

	pi, err := createProcess(hpc, opts)
	if err != nil {
		cpty.Close()
		return fail("start process", err)
	}
	windows.CloseHandle(pi.Thread)

	handle := pi.Process
	return &process{
		pty: cpty,
		pid: int(pi.ProcessId),
		wait: func() (ExitStatus, error) {
			defer windows.CloseHandle(handle)
			if _, err := windows.WaitForSingleObject(handle, windows.INFINITE); err != nil {
				return ExitStatus{Code: -1}, err
			}
			var code uint32
			if err := windows.GetExitCodeProcess(handle, &code); err != nil {
				return ExitStatus{Code: -1}, err
			}
			return ExitStatus{Code: int32(code)}, nil
		},
		kill: func() error {
			return windows.TerminateProcess(handle, 1)
		},
	}, nil
}

func createProcess(hpc windows.Handle, opts StartOptions) (*windows.ProcessInformation, error) {
	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, err
	}
	defer attrs.Delete()

	if err := attrs.Update(windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE, unsafe.Pointer(hpc), unsafe.Sizeof(hpc)); err != nil {
		return nil, err
	}

	si := new(windows.StartupInfoEx)
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.Flags |= windows.STARTF_USESTDHANDLES
	si.ProcThreadAttributeList = attrs.List()

	cmdline := windows.ComposeCommandLine(append([]string{opts.Command}, opts.Args...))
	argv, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		return nil, err
	}

	var dir *uint16
	if opts.Dir != "" {
		if dir, err = windows.UTF16PtrFromString(opts.Dir); err != nil {
			return nil, err
		}
	}

	env := envBlock(opts.Env)
	flags := uint32(windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_UNICODE_ENVIRONMENT)

	pi := new(windows.ProcessInformation)
	if err := windows.CreateProcess(nil, argv, nil, nil, false, flags, &env[0], dir, &si.StartupInfo, pi); err != nil {
		return nil, err
	}
	return pi, nil
}

// envBlock encodes env as a double-NUL terminated UTF-16 block.
func envBlock(env []string) []uint16 {
	if len(env) == 0 {
		return []uint16{0, 0}
	}
	joined := strings.Join(env, "\x00") + "\x00\x00"
	return utf16.Encode([]rune(joined))
}
