// Package config provides YAML and TOML configuration parsing for devserve.
//
// This package lets the devserve binary run from a configuration file, as an
// alternative to the programmatic options.
//
// Example configuration (YAML):
//
//	http_port: 8088
//	control_host: 127.0.0.1
//	control_port: 8089
//	root: ${SITE_DIR:-public}
//	grace_period: 1s
//	failsafe_timeout: 3s
//
// The same file in TOML:
//
//	http_port = 8088
//	control_host = "127.0.0.1"
//	control_port = 8089
//	root = "${SITE_DIR:-public}"
//	grace_period = "1s"
//	failsafe_timeout = "3s"
//
// Fields that are absent keep their [Default] values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the root configuration structure for devserve.
//
// It maps directly to the configuration file. Use [Load] or [Parse] to
// create a Config from a file.
type Config struct {
	// HTTPHost is the interface the HTTP listener binds to. Empty means all.
	HTTPHost string `yaml:"http_host" toml:"http_host"`

	// HTTPPort is the TCP port for static files and the real-time channel.
	// Defaults to 8088.
	HTTPPort int `yaml:"http_port" toml:"http_port"`

	// ControlHost is the interface the UDP control listener binds to.
	// Empty means all interfaces, so any host on the network can stop the
	// server.
	ControlHost string `yaml:"control_host" toml:"control_host"`

	// ControlPort is the UDP port for control datagrams. Defaults to 8089.
	ControlPort int `yaml:"control_port" toml:"control_port"`

	// Root is the document root directory. Defaults to "public".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Root string `yaml:"root" toml:"root"`

	// Index is the document served for "/". Defaults to "index.html".
	Index string `yaml:"index" toml:"index"`

	// GracePeriod is the delay before the clean exit. Defaults to 1s.
	GracePeriod Duration `yaml:"grace_period" toml:"grace_period"`

	// FailsafeTimeout bounds shutdown; when it fires the exit status is 1.
	// Defaults to 3s.
	FailsafeTimeout Duration `yaml:"failsafe_timeout" toml:"failsafe_timeout"`

	// SequentialClose awaits each close completion before the next request.
	SequentialClose bool `yaml:"sequential_close" toml:"sequential_close"`

	// Realtime enables the WebSocket/SSE channel. Defaults to true.
	Realtime bool `yaml:"realtime" toml:"realtime"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTPPort:        8088,
		ControlPort:     8089,
		Root:            "public",
		Index:           "index.html",
		GracePeriod:     Duration(time.Second),
		FailsafeTimeout: Duration(3 * time.Second),
		Realtime:        true,
		LogLevel:        "info",
	}
}

// Duration wraps time.Duration for YAML and TOML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, which the TOML decoder
// uses for quoted durations.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if exists {
			return value
		}
		if hasDefault {
			return submatches[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", varName)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// FormatFor returns the format implied by a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config extension %q (expected .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Load reads and parses a configuration file, choosing the decoder by
// extension.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, format)
}

// Parse parses configuration data in the given format over [Default].
//
// Environment variables are expanded in the host, root and index values.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"http_host", &c.HTTPHost},
		{"control_host", &c.ControlHost},
		{"root", &c.Root},
		{"index", &c.Index},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

// Validate checks ports, durations and the log level.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got %d", c.HTTPPort)
	}
	if c.ControlPort < 0 || c.ControlPort > 65535 {
		return fmt.Errorf("control_port must be between 0 and 65535, got %d", c.ControlPort)
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.ControlPort {
		return fmt.Errorf("http_port and control_port must differ, both are %d", c.HTTPPort)
	}

	if c.Root == "" {
		return errors.New("root is required")
	}
	if c.Index == "" {
		return errors.New("index is required")
	}

	if c.GracePeriod.Duration() <= 0 {
		return fmt.Errorf("grace_period must be positive, got %s", c.GracePeriod.Duration())
	}
	if c.FailsafeTimeout.Duration() <= 0 {
		return fmt.Errorf("failsafe_timeout must be positive, got %s", c.FailsafeTimeout.Duration())
	}
	if c.GracePeriod >= c.FailsafeTimeout {
		return fmt.Errorf("grace_period (%s) must be shorter than failsafe_timeout (%s)",
			c.GracePeriod.Duration(), c.FailsafeTimeout.Duration())
	}

	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
}
