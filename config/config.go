// Package config loads client settings from a TOML file, the environment and
// the daemon's gui_rpc_auth.cfg.
//
// Precedence, lowest first: built-in defaults, the TOML file, environment
// variables, then whatever the caller applies on top (command-line flags).
//
// Example file:
//
//	host = "node1.lan"
//	port = 31416
//	password_file = "/etc/boinc-client/gui_rpc_auth.cfg"
//	connect_timeout = "5s"
//	read_timeout = "30s"
//	poll_delay = "2s"
//	poll_max_attempts = 60
//	log_level = "debug"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	boincrpc "github.com/smnsjas/go-boincrpc"
	"github.com/smnsjas/go-boincrpc/poll"
	"github.com/smnsjas/go-boincrpc/session"
)

// Environment variables read by ApplyEnv.
const (
	EnvHost     = "BOINCRPC_HOST"
	EnvPort     = "BOINCRPC_PORT"
	EnvPassword = "BOINCRPC_PASSWORD"
	EnvLogLevel = "BOINCRPC_LOG_LEVEL"
)

// DefaultPasswordFile is where the daemon keeps its GUI RPC secret on
// Debian-style installs.
const DefaultPasswordFile = "/etc/boinc-client/gui_rpc_auth.cfg"

// ErrPasswordUnavailable wraps failures to read the password file that
// callers usually report as a warning and continue without a secret.
var ErrPasswordUnavailable = errors.New("password file unavailable")

// Config is the resolved client configuration.
type Config struct {
	Host string
	Port int
	// Password takes precedence over PasswordFile when set.
	Password     string
	PasswordFile string

	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	PollDelay       time.Duration
	PollMaxAttempts int
	PollTimeout     time.Duration

	LogLevel slog.Level
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Host:            session.DefaultHost,
		Port:            session.DefaultPort,
		PasswordFile:    DefaultPasswordFile,
		ConnectTimeout:  session.DefaultConnectTimeout,
		ReadTimeout:     session.DefaultReadTimeout,
		PollDelay:       poll.DefaultDelay,
		PollMaxAttempts: poll.DefaultMaxAttempts,
		LogLevel:        slog.LevelInfo,
	}
}

type fileConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Password        string `toml:"password"`
	PasswordFile    string `toml:"password_file"`
	ConnectTimeout  string `toml:"connect_timeout"`
	ReadTimeout     string `toml:"read_timeout"`
	PollDelay       string `toml:"poll_delay"`
	PollMaxAttempts int    `toml:"poll_max_attempts"`
	PollTimeout     string `toml:"poll_timeout"`
	LogLevel        string `toml:"log_level"`
}

// Load returns the defaults overlaid with the file at path (skipped when
// path is empty) and then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the keys defined in the TOML file at path onto cfg.
// Keys absent from the file leave cfg untouched.
func LoadFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if err := validPort(raw.Port); err != nil {
			return fmt.Errorf("parse port: %w", err)
		}
		cfg.Port = raw.Port
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("password_file") {
		cfg.PasswordFile = strings.TrimSpace(raw.PasswordFile)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"poll_delay", raw.PollDelay, &cfg.PollDelay},
		{"poll_timeout", raw.PollTimeout, &cfg.PollTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("parse %s: negative duration %s", d.key, v)
		}
		*d.dst = v
	}

	if meta.IsDefined("poll_max_attempts") {
		if raw.PollMaxAttempts < 0 {
			return fmt.Errorf("parse poll_max_attempts: negative value %d", raw.PollMaxAttempts)
		}
		cfg.PollMaxAttempts = raw.PollMaxAttempts
	}
	if meta.IsDefined("log_level") {
		lvl, ok := ParseLogLevel(raw.LogLevel)
		if !ok {
			return fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}
	return nil
}

// ApplyEnv overlays the BOINCRPC_* variables onto cfg. Empty variables are
// ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvHost)); v != "" {
		host, port, err := ParseHostPort(v, cfg.Port)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHost, err)
		}
		cfg.Host, cfg.Port = host, port
	}
	if v := strings.TrimSpace(getenv(EnvPort)); v != "" {
		port, err := parsePort(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := getenv(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		lvl, ok := ParseLogLevel(v)
		if !ok {
			return fmt.Errorf("%s: unknown level %q", EnvLogLevel, v)
		}
		cfg.LogLevel = lvl
	}
	return nil
}

// ParseHostPort splits "host[:port]". Without a port, defaultPort is used.
// IPv6 literals need brackets when a port is given: "[::1]:31416".
func ParseHostPort(s string, defaultPort int) (string, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, errors.New("empty host")
	}

	if strings.HasPrefix(s, "[") {
		if strings.HasSuffix(s, "]") {
			return s[1 : len(s)-1], defaultPort, nil
		}
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			return "", 0, fmt.Errorf("parse host %q: %w", s, err)
		}
		port, err := parsePort(portStr)
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	host, portStr, found := strings.Cut(s, ":")
	if host == "" {
		return "", 0, fmt.Errorf("parse host %q: empty host", s)
	}
	if !found || portStr == "" {
		return host, defaultPort, nil
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %w", s, err)
	}
	if err := validPort(port); err != nil {
		return 0, err
	}
	return port, nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

// ParseLogLevel maps a level name onto a slog.Level.
func ParseLogLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// LoadPassword reads the GUI RPC secret from path and trims surrounding
// whitespace. A missing or unreadable file yields an error wrapping
// ErrPasswordUnavailable.
func LoadPassword(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %w", ErrPasswordUnavailable, err)
		}
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ResolvePassword returns Password if set, otherwise the content of
// PasswordFile. An empty result means no handshake.
func (c Config) ResolvePassword() (string, error) {
	if c.Password != "" {
		return c.Password, nil
	}
	if c.PasswordFile == "" {
		return "", nil
	}
	return LoadPassword(c.PasswordFile)
}

// Client converts c into a client configuration. The password must already
// be resolved.
func (c Config) Client(password string) boincrpc.Config {
	cfg := boincrpc.DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Password = password
	cfg.ConnectTimeout = c.ConnectTimeout
	cfg.ReadTimeout = c.ReadTimeout
	cfg.PollDelay = c.PollDelay
	cfg.PollMaxAttempts = c.PollMaxAttempts
	cfg.PollTimeout = c.PollTimeout
	return cfg
}
