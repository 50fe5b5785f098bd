// Package config loads settings shared by the commands. Sources apply in
// order: built-in defaults, an optional YAML file, TERMUI_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/3xecutablefile/terminal-ui/internal/pty"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TERMUI_"

// Config holds every tunable.
type Config struct {
	Cols       uint16 `yaml:"cols"`
	Rows       uint16 `yaml:"rows"`
	Shell      string `yaml:"shell"`
	Login      bool   `yaml:"login"`
	PreferPwsh bool   `yaml:"prefer_pwsh"`

	ReadBufferSize int           `yaml:"read_buffer_size"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`

	RecordPath string `yaml:"record_path"`
	DBPath     string `yaml:"db_path"`
	LogDir     string `yaml:"log_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ListenAddr  string `yaml:"listen_addr"`
	MaxSessions int    `yaml:"max_sessions"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Cols:           80,
		Rows:           24,
		Login:          true,
		PreferPwsh:     true,
		ReadBufferSize: 64 * 1024,
		DrainTimeout:   2 * time.Second,
		LogDir:         "./logs",
		LogLevel:       "info",
		LogFormat:      "text",
		ListenAddr:     ":8080",
		MaxSessions:    10,
	}
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Load applies defaults, then the YAML file at path (if not empty), then
// the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the keys present in a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays TERMUI_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dimension := func(key string, dst *uint16) {
		if v := getenv(EnvPrefix + key); v != "" {
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = uint16(n)
		}
	}

	dimension("COLS", &c.Cols)
	dimension("ROWS", &c.Rows)
	str("SHELL", &c.Shell)
	boolean("LOGIN", &c.Login)
	boolean("PREFER_PWSH", &c.PreferPwsh)
	integer("READ_BUFFER_SIZE", &c.ReadBufferSize)
	if v := getenv(EnvPrefix + "DRAIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDRAIN_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.DrainTimeout = d
		}
	}
	str("RECORD", &c.RecordPath)
	str("DB_PATH", &c.DBPath)
	str("LOG_DIR", &c.LogDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LISTEN_ADDR", &c.ListenAddr)
	integer("MAX_SESSIONS", &c.MaxSessions)

	return errors.Join(errs...)
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.Cols == 0 || c.Rows == 0:
		return fmt.Errorf("%w: cols and rows must be positive", ErrInvalid)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: read_buffer_size must be positive", ErrInvalid)
	case c.DrainTimeout <= 0:
		return fmt.Errorf("%w: drain_timeout must be positive", ErrInvalid)
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive", ErrInvalid)
	}
	return nil
}

// ShellPrefs returns the shell selection for pty.Spawn.
func (c Config) ShellPrefs() pty.ShellPrefs {
	return pty.ShellPrefs{
		Shell:      c.Shell,
		Login:      c.Login,
		PreferPwsh: c.PreferPwsh,
	}
}

// Flag names shared by the commands.
const (
	FlagConfig         = "config"
	FlagCols           = "cols"
	FlagRows           = "rows"
	FlagShell          = "shell"
	FlagLogin          = "login"
	FlagPreferPwsh     = "prefer-pwsh"
	FlagReadBufferSize = "read-buffer-size"
	FlagDrainTimeout   = "drain-timeout"
	FlagRecord         = "record"
	FlagDB             = "db"
	FlagLogDir         = "log-dir"
	FlagLogLevel       = "log-level"
	FlagLogFormat      = "log-format"
	FlagListen         = "listen"
	FlagMaxSessions    = "max-sessions"
)

// AddFlags registers every flag on fs with the built-in defaults.
func AddFlags(fs *pflag.FlagSet) {
	AddSessionFlags(fs)
	AddServerFlags(fs)
}

// AddSessionFlags registers the flags that shape a single bridged shell.
func AddSessionFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "path to a YAML config file (env "+EnvPrefix+"CONFIG)")
	fs.Uint16(FlagCols, d.Cols, "initial terminal columns")
	fs.Uint16(FlagRows, d.Rows, "initial terminal rows")
	fs.String(FlagShell, d.Shell, "shell executable (default: platform shell)")
	fs.Bool(FlagLogin, d.Login, "start the shell as a login shell")
	fs.Bool(FlagPreferPwsh, d.PreferPwsh, "prefer pwsh.exe over powershell.exe on Windows")
	fs.Int(FlagReadBufferSize, d.ReadBufferSize, "maximum bytes per output message")
	fs.Duration(FlagDrainTimeout, d.DrainTimeout, "how long to wait for output after the child exits")
	fs.String(FlagRecord, d.RecordPath, "write an asciicast recording to this file")
	fs.String(FlagDB, d.DBPath, "journal sessions into this SQLite database")
	fs.String(FlagLogLevel, d.LogLevel, "log level")
	fs.String(FlagLogFormat, d.LogFormat, "log format: text or json")
}

// AddServerFlags registers the flags only the WebSocket server reads.
func AddServerFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagLogDir, d.LogDir, "directory for per-session recordings")
	fs.String(FlagListen, d.ListenAddr, "HTTP listen address")
	fs.Int(FlagMaxSessions, d.MaxSessions, "maximum concurrent sessions")
}

// ConfigPath returns the config file named by the flag or TERMUI_CONFIG.
func ConfigPath(fs *pflag.FlagSet) string {
	if f := fs.Lookup(FlagConfig); f != nil && f.Changed {
		return f.Value.String()
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}

// ApplyFlags overlays the flags the user set explicitly. Flags that were
// not registered on fs are skipped.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}

	var err error
	set := func(name string, apply func() error) {
		if err == nil && changed(name) {
			err = apply()
		}
	}

	set(FlagCols, func() (e error) { c.Cols, e = fs.GetUint16(FlagCols); return })
	set(FlagRows, func() (e error) { c.Rows, e = fs.GetUint16(FlagRows); return })
	set(FlagShell, func() (e error) { c.Shell, e = fs.GetString(FlagShell); return })
	set(FlagLogin, func() (e error) { c.Login, e = fs.GetBool(FlagLogin); return })
	set(FlagPreferPwsh, func() (e error) { c.PreferPwsh, e = fs.GetBool(FlagPreferPwsh); return })
	set(FlagReadBufferSize, func() (e error) { c.ReadBufferSize, e = fs.GetInt(FlagReadBufferSize); return })
	set(FlagDrainTimeout, func() (e error) { c.DrainTimeout, e = fs.GetDuration(FlagDrainTimeout); return })
	set(FlagRecord, func() (e error) { c.RecordPath, e = fs.GetString(FlagRecord); return })
	set(FlagDB, func() (e error) { c.DBPath, e = fs.GetString(FlagDB); return })
	set(FlagLogDir, func() (e error) { c.LogDir, e = fs.GetString(FlagLogDir); return })
	set(FlagLogLevel, func() (e error) { c.LogLevel, e = fs.GetString(FlagLogLevel); return })
	set(FlagLogFormat, func() (e error) { c.LogFormat, e = fs.GetString(FlagLogFormat); return })
	set(FlagListen, func() (e error) { c.ListenAddr, e = fs.GetString(FlagListen); return })
	set(FlagMaxSessions, func() (e error) { c.MaxSessions, e = fs.GetInt(FlagMaxSessions); return })
	return err
}

// Resolve runs the full chain for a parsed flag set and validates the
// result.
func Resolve(fs *pflag.FlagSet) (Config, error) {
	cfg, err := Load(ConfigPath(fs))
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
