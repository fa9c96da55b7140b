package rong

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/rong/default"
)

// Config represents the user's rong configuration.
type Config struct {
	Version int          `toml:"version"`
	Server  ServerConfig `toml:"server"`
	Client  ClientConfig `toml:"client"`

	// undecoded lists keys present in the file that no field consumed.
	undecoded []string
}

// ServerConfig holds settings for the rongd daemon.
type ServerConfig struct {
	Socket       string        `toml:"socket"`
	LogFile      string        `toml:"log_file"`
	LogLevel     string        `toml:"log_level"`
	ReadChunk    int           `toml:"read_chunk"`
	MaxRequest   int           `toml:"max_request"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	Banner       string        `toml:"banner"`
	DebugAgent   bool          `toml:"debug_agent"`
}

// ClientConfig holds settings for rong and rong-repl. Durations are
// written as Go duration strings ("5s").
type ClientConfig struct {
	Timeout         time.Duration `toml:"timeout"`
	Daemon          string        `toml:"daemon"`
	StartTimeout    time.Duration `toml:"start_timeout"`
	CommandCacheTTL time.Duration `toml:"command_cache_ttl"`
	Color           string        `toml:"color"`
}

// ConfigDir returns the config directory path.
// Resolution order: $RONG_CONFIG_DIR > $XDG_CONFIG_HOME/rong > ~/.config/rong
func ConfigDir() string {
	if dir := os.Getenv("RONG_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "rong")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "rong-config")
	}
	return filepath.Join(home, ".config", "rong")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("rong: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from ConfigPath or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads config from path or returns defaults if the file
// does not exist.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		cfg.undecoded = append(cfg.undecoded, key.String())
	}

	// Apply defaults for missing fields
	d := DefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = d.Version
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = d.Server.LogLevel
	}
	if cfg.Server.ReadChunk == 0 {
		cfg.Server.ReadChunk = d.Server.ReadChunk
	}
	// Zero is meaningful for max_request (no limit) and client.timeout
	// (disabled); only fill them when the file leaves them out.
	if !md.IsDefined("server", "max_request") {
		cfg.Server.MaxRequest = d.Server.MaxRequest
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if cfg.Server.Banner == "" {
		cfg.Server.Banner = d.Server.Banner
	}
	if !md.IsDefined("client", "timeout") {
		cfg.Client.Timeout = d.Client.Timeout
	}
	if cfg.Client.StartTimeout == 0 {
		cfg.Client.StartTimeout = d.Client.StartTimeout
	}
	if cfg.Client.CommandCacheTTL == 0 {
		cfg.Client.CommandCacheTTL = d.Client.CommandCacheTTL
	}
	if cfg.Client.Color == "" {
		cfg.Client.Color = d.Client.Color
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	for _, key := range cfg.undecoded {
		warnings = append(warnings, "unknown config key: "+key)
	}
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log_level %q; using info", cfg.Server.LogLevel))
	}
	switch cfg.Client.Color {
	case "auto", "always", "never":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown color mode %q; using auto", cfg.Client.Color))
	}
	if cfg.Server.ReadChunk < 0 || cfg.Server.MaxRequest < 0 {
		warnings = append(warnings, "read_chunk and max_request must be positive")
	}
	return warnings
}

// ResolveSocketPath returns the daemon socket path.
// Priority: $RONG_SOCKET env > config value > $XDG_RUNTIME_DIR/rong/rong.sock > /tmp/rong-<uid>/rong.sock.
func ResolveSocketPath(cfg *Config) string {
	if path := os.Getenv("RONG_SOCKET"); path != "" {
		return path
	}
	if cfg != nil && cfg.Server.Socket != "" {
		return cfg.Server.Socket
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "rong", "rong.sock")
	}
	return fmt.Sprintf("/tmp/rong-%d/rong.sock", os.Getuid())
}

// ResolveLogLevel returns the daemon log level name.
// Priority: $RONG_LOG_LEVEL env > config value.
func ResolveLogLevel(cfg *Config) string {
	if level := os.Getenv("RONG_LOG_LEVEL"); level != "" {
		return strings.ToLower(level)
	}
	if cfg != nil {
		return strings.ToLower(cfg.Server.LogLevel)
	}
	return "info"
}

// ResolveClientTimeout returns how long a client waits for one response.
// Priority: $RONG_TIMEOUT env > config value. RONG_TIMEOUT=0 disables the
// timeout.
func ResolveClientTimeout(cfg *Config) time.Duration {
	if s := os.Getenv("RONG_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	if cfg != nil {
		return cfg.Client.Timeout
	}
	return 0
}

// ResolveDaemonPath returns the rongd binary to start when no daemon is running.
// Priority: $RONG_DAEMON env > config value > rongd next to the running executable > "rongd".
func ResolveDaemonPath(cfg *Config) string {
	if path := os.Getenv("RONG_DAEMON"); path != "" {
		return path
	}
	if cfg != nil && cfg.Client.Daemon != "" {
		return cfg.Client.Daemon
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "rongd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}
	return "rongd"
}
