package pty

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ShellPrefs selects which shell Spawn starts and how.
type ShellPrefs struct {
	// Shell is an explicit executable. Empty selects the platform default.
	Shell string

	// Login starts the shell as an interactive login shell where the shell
	// supports it (bash, zsh, fish).
	Login bool

	// PreferPwsh tries pwsh.exe before powershell.exe on Windows.
	PreferPwsh bool
}

// DefaultShellPrefs returns login shells with pwsh preferred.
func DefaultShellPrefs() ShellPrefs {
	return ShellPrefs{Login: true, PreferPwsh: true}
}

// PathResolver reports whether an executable can be found, returning its
// path. exec.LookPath satisfies it.
type PathResolver func(file string) (string, error)

// ShellResolver picks a shell from an ordered candidate list; the first
// candidate the resolver can find wins.
type ShellResolver struct {
	GOOS     string
	LookPath PathResolver
	Getenv   func(string) string
}

// NewShellResolver returns a resolver for the running platform.
func NewShellResolver() ShellResolver {
	return ShellResolver{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
	}
}

// Candidates returns the probe order for prefs, without the final fallback.
func (r ShellResolver) Candidates(prefs ShellPrefs) []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}

	add(prefs.Shell)
	if r.GOOS == "windows" {
		if prefs.PreferPwsh {
			add("pwsh.exe")
			add("powershell.exe")
		} else {
			add("powershell.exe")
			add("pwsh.exe")
		}
		add("cmd.exe")
		return out
	}
	add(r.Getenv("SHELL"))
	return out
}

// Fallback is used when no candidate resolves.
func (r ShellResolver) Fallback() string {
	if r.GOOS == "windows" {
		if comspec := r.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	return "/bin/sh"
}

// Resolve returns the first candidate found by LookPath, or Fallback.
func (r ShellResolver) Resolve(prefs ShellPrefs) string {
	for _, c := range r.Candidates(prefs) {
		if r.LookPath == nil {
			return c
		}
		if _, err := r.LookPath(c); err == nil {
			return c
		}
	}
	return r.Fallback()
}

// Command returns the executable and arguments Spawn will run for prefs.
func (r ShellResolver) Command(prefs ShellPrefs) (string, []string) {
	shell := r.Resolve(prefs)
	return shell, ShellArgs(shell, prefs.Login)
}

var loginFlags = map[string][]string{
	"bash": {"-l", "-i"},
	"zsh":  {"-l", "-i"},
	"fish": {"-l"},
}

// ShellArgs returns the arguments that start shell as a login shell, keyed
// by the executable's base name. Unknown shells get none.
func ShellArgs(shell string, login bool) []string {
	if !login {
		return nil
	}
	name := strings.TrimSuffix(strings.ToLower(filepath.Base(shell)), ".exe")
	flags, ok := loginFlags[name]
	if !ok {
		return nil
	}
	return append([]string(nil), flags...)
}

// withEnv returns env with key set to value, replacing any existing entry.
func withEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
