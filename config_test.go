package rong

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Version != 1 {
		t.Errorf("version = %d", cfg.Version)
	}
	if cfg.Server.ReadChunk != 4096 || cfg.Server.MaxRequest != 1<<20 {
		t.Errorf("server limits = %d/%d", cfg.Server.ReadChunk, cfg.Server.MaxRequest)
	}
	if cfg.Server.WriteTimeout != 5*time.Second {
		t.Errorf("write_timeout = %v", cfg.Server.WriteTimeout)
	}
	if cfg.Client.Timeout != 30*time.Second || cfg.Client.CommandCacheTTL != time.Minute {
		t.Errorf("client timeouts = %v/%v", cfg.Client.Timeout, cfg.Client.CommandCacheTTL)
	}
	if w := ValidateConfig(cfg); len(w) != 0 {
		t.Errorf("default config has warnings: %v", w)
	}
}

func TestLoadConfigFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Banner != DefaultConfig().Server.Banner {
		t.Errorf("banner = %q", cfg.Server.Banner)
	}
}

func TestLoadConfigFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
banner = "custom"
max_request = 64

[client]
timeout = "2s"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Banner != "custom" || cfg.Server.MaxRequest != 64 {
		t.Errorf("explicit values lost: %+v", cfg.Server)
	}
	if cfg.Client.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Client.Timeout)
	}
	if cfg.Server.ReadChunk != 4096 || cfg.Server.LogLevel != "info" || cfg.Client.Color != "auto" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Server, cfg.Client)
	}
}

func TestLoadConfigFileExplicitZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
max_request = 0

[client]
timeout = "0s"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.MaxRequest != 0 {
		t.Errorf("max_request = %d, want 0 (no limit)", cfg.Server.MaxRequest)
	}
	t.Setenv("RONG_TIMEOUT", "")
	if got := ResolveClientTimeout(cfg); got != 0 {
		t.Errorf("timeout = %v, want 0 (disabled)", got)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[server\n"), 0o644)
	if _, err := LoadConfigFile(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("err = %v, want parse error naming %s", err, path)
	}
}

func TestValidateConfigWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
log_level = "loud"
colour = "red"

[client]
color = "sometimes"
`
	os.WriteFile(path, []byte(data), 0o644)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	warnings := ValidateConfig(cfg)
	joined := strings.Join(warnings, "\n")
	for _, want := range []string{"server.colour", `log_level "loud"`, `color mode "sometimes"`} {
		if !strings.Contains(joined, want) {
			t.Errorf("warnings %q missing %q", warnings, want)
		}
	}
	if ValidateConfig(nil) != nil {
		t.Error("nil config produced warnings")
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("RONG_CONFIG_DIR", "/custom/dir")
	if got := ConfigDir(); got != "/custom/dir" {
		t.Errorf("ConfigDir = %q", got)
	}
	t.Setenv("RONG_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigPath(); got != "/xdg/rong/config.toml" {
		t.Errorf("ConfigPath = %q", got)
	}
}

func TestResolveSocketPath(t *testing.T) {
	t.Setenv("RONG_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	want := fmt.Sprintf("/tmp/rong-%d/rong.sock", os.Getuid())
	if got := ResolveSocketPath(nil); got != want {
		t.Errorf("fallback = %q, want %q", got, want)
	}

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := ResolveSocketPath(nil); got != "/run/user/1000/rong/rong.sock" {
		t.Errorf("xdg = %q", got)
	}

	cfg := DefaultConfig()
	cfg.Server.Socket = "/from/config.sock"
	if got := ResolveSocketPath(cfg); got != "/from/config.sock" {
		t.Errorf("config = %q", got)
	}

	t.Setenv("RONG_SOCKET", "/from/env.sock")
	if got := ResolveSocketPath(cfg); got != "/from/env.sock" {
		t.Errorf("env = %q", got)
	}
}

func TestResolveClientTimeout(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("RONG_TIMEOUT", "")
	if got := ResolveClientTimeout(cfg); got != 30*time.Second {
		t.Errorf("config timeout = %v", got)
	}
	t.Setenv("RONG_TIMEOUT", "0")
	if got := ResolveClientTimeout(cfg); got != 0 {
		t.Errorf("RONG_TIMEOUT=0 gave %v", got)
	}
	t.Setenv("RONG_TIMEOUT", "bogus")
	if got := ResolveClientTimeout(cfg); got != 30*time.Second {
		t.Errorf("invalid env should fall back, got %v", got)
	}
}

func TestResolveLogLevel(t *testing.T) {
	t.Setenv("RONG_LOG_LEVEL", "DEBUG")
	if got := ResolveLogLevel(nil); got != "debug" {
		t.Errorf("env level = %q", got)
	}
	t.Setenv("RONG_LOG_LEVEL", "")
	cfg := DefaultConfig()
	cfg.Server.LogLevel = "Warn"
	if got := ResolveLogLevel(cfg); got != "warn" {
		t.Errorf("config level = %q", got)
	}
}

func TestResolveDaemonPath(t *testing.T) {
	t.Setenv("RONG_DAEMON", "/opt/rongd")
	if got := ResolveDaemonPath(nil); got != "/opt/rongd" {
		t.Errorf("env daemon = %q", got)
	}
	t.Setenv("RONG_DAEMON", "")
	cfg := DefaultConfig()
	cfg.Client.Daemon = "/usr/local/bin/rongd"
	if got := ResolveDaemonPath(cfg); got != "/usr/local/bin/rongd" {
		t.Errorf("config daemon = %q", got)
	}
}
