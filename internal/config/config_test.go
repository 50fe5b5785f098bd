package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// TestDefaultValidates tests that built-in defaults are usable
func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

// TestLoadFile tests YAML overlay of only the keys present
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termui.yaml")
	content := "cols: 132\nshell: /bin/zsh\ndrain_timeout: 500ms\nlogin: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Cols != 132 || cfg.Rows != 24 {
		t.Errorf("Expected 132x24, got %dx%d", cfg.Cols, cfg.Rows)
	}
	if cfg.Shell != "/bin/zsh" || cfg.Login {
		t.Errorf("Unexpected shell settings %q login=%v", cfg.Shell, cfg.Login)
	}
	if cfg.DrainTimeout != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %s", cfg.DrainTimeout)
	}
}

// TestLoadFileErrors tests missing and malformed files
func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("cols: [1, 2"), 0o644)
	if err := cfg.LoadFile(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

// TestApplyEnv tests environment overrides
func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"TERMUI_ROWS":          "50",
		"TERMUI_SHELL":         "fish",
		"TERMUI_PREFER_PWSH":   "false",
		"TERMUI_DRAIN_TIMEOUT": "3s",
		"TERMUI_MAX_SESSIONS":  "4",
		"TERMUI_DB_PATH":       "/tmp/j.db",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Rows != 50 || cfg.Shell != "fish" || cfg.PreferPwsh {
		t.Errorf("Unexpected values %+v", cfg)
	}
	if cfg.DrainTimeout != 3*time.Second || cfg.MaxSessions != 4 || cfg.DBPath != "/tmp/j.db" {
		t.Errorf("Unexpected values %+v", cfg)
	}
}

// TestApplyEnvErrors tests that every bad value is reported
func TestApplyEnvErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"TERMUI_COLS":          "70000",
		"TERMUI_LOGIN":         "maybe",
		"TERMUI_DRAIN_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("Expected errors")
	}
	if cfg.Cols != 80 {
		t.Errorf("Expected cols untouched, got %d", cfg.Cols)
	}
	for _, key := range []string{"TERMUI_COLS", "TERMUI_LOGIN", "TERMUI_DRAIN_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected %s in %q", key, err.Error())
		}
	}
}

// TestApplyFlags tests that only explicitly set flags override
func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--cols=100", "--login=false", "--drain-timeout=1s"}); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Rows = 33
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if cfg.Cols != 100 || cfg.Rows != 33 || cfg.Login || cfg.DrainTimeout != time.Second {
		t.Errorf("Unexpected values %+v", cfg)
	}
}

// TestApplyFlagsPartialSet tests a command that registers its own subset
func TestApplyFlagsPartialSet(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(FlagShell, "", "")
	fs.Parse([]string{"--shell=/bin/bash"})

	cfg := Default()
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if cfg.Shell != "/bin/bash" {
		t.Errorf("Expected /bin/bash, got %q", cfg.Shell)
	}
}

// TestAddSessionFlags tests that server-only flags stay off the session set
func TestAddSessionFlags(t *testing.T) {
	fs := pflag.NewFlagSet("ptyd", pflag.ContinueOnError)
	AddSessionFlags(fs)

	for _, name := range []string{FlagListen, FlagMaxSessions, FlagLogDir} {
		if fs.Lookup(name) != nil {
			t.Errorf("Expected %s to be unregistered", name)
		}
	}
	if err := fs.Parse([]string{"--cols=90", "--listen=:9"}); err == nil {
		t.Error("Expected --listen to be rejected")
	}
}

// TestValidate tests range checks
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cols", func(c *Config) { c.Cols = 0 }},
		{"zero rows", func(c *Config) { c.Rows = 0 }},
		{"zero buffer", func(c *Config) { c.ReadBufferSize = 0 }},
		{"zero drain", func(c *Config) { c.DrainTimeout = 0 }},
		{"zero sessions", func(c *Config) { c.MaxSessions = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

// TestShellPrefs tests the conversion for pty.Spawn
func TestShellPrefs(t *testing.T) {
	cfg := Default()
	cfg.Shell = "/bin/zsh"
	cfg.Login = false

	expected := pty.ShellPrefs{Shell: "/bin/zsh", Login: false, PreferPwsh: true}
	if got := cfg.ShellPrefs(); got != expected {
		t.Errorf("Expected %+v, got %+v", expected, got)
	}
}

// TestResolve tests the full chain: file, then env, then flags
func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termui.yaml")
	os.WriteFile(path, []byte("cols: 90\nrows: 30\nshell: /bin/zsh\n"), 0o644)

	t.Setenv("TERMUI_ROWS", "40")
	t.Setenv("TERMUI_SHELL", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	fs.Parse([]string{"--config", path, "--shell", "/bin/bash"})

	cfg, err := Resolve(fs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Cols != 90 || cfg.Rows != 40 || cfg.Shell != "/bin/bash" {
		t.Errorf("Expected 90x40 /bin/bash, got %dx%d %q", cfg.Cols, cfg.Rows, cfg.Shell)
	}
}
