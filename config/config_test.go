package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Host != "localhost" || cfg.Port != 31416 {
		t.Fatalf("unexpected address: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.PasswordFile != DefaultPasswordFile {
		t.Fatalf("unexpected password file: %q", cfg.PasswordFile)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if cfg.PollDelay != 2*time.Second || cfg.PollMaxAttempts != 60 {
		t.Fatalf("unexpected poll settings: %v %d", cfg.PollDelay, cfg.PollMaxAttempts)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeFile(t, "boincrpc.toml", `
host = "node1.lan"
port = 31417
password_file = "/tmp/auth.cfg"
connect_timeout = "1s"
read_timeout = "10s"
poll_delay = "3s"
poll_max_attempts = 5
poll_timeout = "1m"
log_level = "debug"
`)

	cfg := Default()
	if err := LoadFile(&cfg, path); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Host != "node1.lan" || cfg.Port != 31417 {
		t.Fatalf("unexpected address: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.PasswordFile != "/tmp/auth.cfg" {
		t.Fatalf("unexpected password file: %q", cfg.PasswordFile)
	}
	if cfg.ConnectTimeout != time.Second || cfg.ReadTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if cfg.PollDelay != 3*time.Second || cfg.PollMaxAttempts != 5 || cfg.PollTimeout != time.Minute {
		t.Fatalf("unexpected poll settings: %v %d %v", cfg.PollDelay, cfg.PollMaxAttempts, cfg.PollTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := writeFile(t, "boincrpc.toml", `host = "node2"`)

	cfg := Default()
	if err := LoadFile(&cfg, path); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Host != "node2" {
		t.Fatalf("unexpected host: %q", cfg.Host)
	}
	if cfg.Port != 31416 || cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", `read_timeout = "soon"`},
		{"negative duration", `poll_delay = "-1s"`},
		{"bad port", `port = 70000`},
		{"bad level", `log_level = "loud"`},
		{"negative attempts", `poll_max_attempts = -1`},
		{"unknown key", `hots = "typo"`},
		{"not toml", `host = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := LoadFile(&cfg, writeFile(t, "c.toml", tt.content)); err == nil {
				t.Fatalf("expected error for %q", tt.content)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, envMap(map[string]string{
		EnvHost:     "node3:1234",
		EnvPassword: "s3cret",
		EnvLogLevel: "WARN",
	}))
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Host != "node3" || cfg.Port != 1234 {
		t.Fatalf("unexpected address: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Password != "s3cret" {
		t.Fatalf("unexpected password: %q", cfg.Password)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("unexpected level: %v", cfg.LogLevel)
	}

	if err := ApplyEnv(&cfg, envMap(map[string]string{EnvPort: "4321"})); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Port != 4321 {
		t.Fatalf("port override lost: %d", cfg.Port)
	}

	if err := ApplyEnv(&cfg, envMap(map[string]string{EnvPort: "x"})); err == nil {
		t.Fatal("expected error for bad port")
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv(EnvHost, "envhost")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvPassword, "")
	t.Setenv(EnvLogLevel, "")

	path := writeFile(t, "c.toml", `host = "filehost"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "envhost" {
		t.Fatalf("environment should win over file, got %q", cfg.Host)
	}
}

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{in: "localhost", wantHost: "localhost", wantPort: 31416},
		{in: "node1:31417", wantHost: "node1", wantPort: 31417},
		{in: "node1:", wantHost: "node1", wantPort: 31416},
		{in: " 10.0.0.5:80 ", wantHost: "10.0.0.5", wantPort: 80},
		{in: "[::1]:31416", wantHost: "::1", wantPort: 31416},
		{in: "[fe80::1]", wantHost: "fe80::1", wantPort: 31416},
		{in: "node1:abc", wantErr: true},
		{in: "node1:0", wantErr: true},
		{in: ":31416", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := ParseHostPort(tt.in, 31416)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s:%d", host, port)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Fatalf("got %s:%d, want %s:%d", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"Info", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadPassword(t *testing.T) {
	path := writeFile(t, "gui_rpc_auth.cfg", "  hunter2\n")
	pw, err := LoadPassword(path)
	if err != nil {
		t.Fatalf("load password: %v", err)
	}
	if pw != "hunter2" {
		t.Fatalf("unexpected password: %q", pw)
	}
}

func TestLoadPasswordMissing(t *testing.T) {
	_, err := LoadPassword(filepath.Join(t.TempDir(), "gui_rpc_auth.cfg"))
	if !errors.Is(err, ErrPasswordUnavailable) {
		t.Fatalf("expected ErrPasswordUnavailable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestLoadPasswordPermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}
	path := writeFile(t, "gui_rpc_auth.cfg", "hunter2")
	if err := os.Chmod(path, 0); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	_, err := LoadPassword(path)
	if !errors.Is(err, ErrPasswordUnavailable) {
		t.Fatalf("expected ErrPasswordUnavailable, got %v", err)
	}
}

func TestResolvePassword(t *testing.T) {
	file := writeFile(t, "auth.cfg", "fromfile")

	cfg := Config{Password: "explicit", PasswordFile: file}
	if pw, _ := cfg.ResolvePassword(); pw != "explicit" {
		t.Fatalf("explicit password should win, got %q", pw)
	}

	cfg.Password = ""
	if pw, _ := cfg.ResolvePassword(); pw != "fromfile" {
		t.Fatalf("expected file password, got %q", pw)
	}

	cfg.PasswordFile = ""
	pw, err := cfg.ResolvePassword()
	if pw != "" || err != nil {
		t.Fatalf("expected no password, got %q, %v", pw, err)
	}
}

func TestClient(t *testing.T) {
	cfg := Default()
	cfg.Host = "node1"
	cfg.PollTimeout = time.Minute

	cc := cfg.Client("pw")
	if cc.Address() != "node1:31416" {
		t.Fatalf("unexpected address: %s", cc.Address())
	}
	if cc.Password != "pw" || cc.PollTimeout != time.Minute || cc.PollMaxAttempts != 60 {
		t.Fatalf("unexpected client config: %+v", cc)
	}
	if cc.Limits.MaxMessageBytes == 0 {
		t.Fatal("message limit lost")
	}
}
