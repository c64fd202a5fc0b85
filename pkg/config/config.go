// Package config resolves and persists obrew client configuration: backend
// host/port/protocol discovery plus named connection presets, stored as
// config.toml under the .obrew/ directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

const (
	dotDirName = ".obrew"
	configFile = "config.toml"

	defaultProtocol = "http"
	defaultHost     = "localhost"
	defaultPort     = 8008

	defaultHealthTimeoutSeconds = 5
)

// Config is the persistent client configuration. The TOML layout uses
// sections for logical grouping.
type Config struct {
	Connection ConnectionConfig `toml:"connection" mapstructure:"connection"`
	Client     ClientConfig     `toml:"client" mapstructure:"client"`
}

// ConnectionConfig identifies the backend to talk to.
type ConnectionConfig struct {
	Protocol string `toml:"protocol,omitempty" mapstructure:"protocol"`
	Host     string `toml:"host,omitempty" mapstructure:"host"`
	Port     int    `toml:"port,omitempty" mapstructure:"port"`
}

// ClientConfig holds client-side behavior settings.
type ClientConfig struct {
	HealthTimeoutSeconds int  `toml:"health_timeout_seconds,omitempty" mapstructure:"health_timeout_seconds"`
	Debug                bool `toml:"debug,omitempty" mapstructure:"debug"`
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Protocol: defaultProtocol,
			Host:     defaultHost,
			Port:     defaultPort,
		},
		Client: ClientConfig{
			HealthTimeoutSeconds: defaultHealthTimeoutSeconds,
		},
	}
}

// BaseURL assembles the backend origin from the connection settings.
func (c *Config) BaseURL() string {
	return c.Connection.Protocol + "://" + c.Connection.Host + ":" + strconv.Itoa(c.Connection.Port)
}

// DotDir resolves the .obrew/ directory, preferring override when set and
// falling back to the user's home directory.
func DotDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, dotDirName), nil
}

// Save writes cfg as config.toml under the resolved .obrew/ directory,
// creating the directory when needed.
func Save(cfg *Config, dirOverride string) error {
	dir, err := DotDir(dirOverride)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, configFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

// Load reads config.toml from the resolved .obrew/ directory. A missing file
// yields defaults so callers always receive a fully-populated Config.
func Load(dirOverride string) (*Config, error) {
	dir, err := DotDir(dirOverride)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Connection.Protocol == "" {
		cfg.Connection.Protocol = defaults.Connection.Protocol
	}
	if cfg.Connection.Host == "" {
		cfg.Connection.Host = defaults.Connection.Host
	}
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = defaults.Connection.Port
	}
	if cfg.Client.HealthTimeoutSeconds == 0 {
		cfg.Client.HealthTimeoutSeconds = defaults.Client.HealthTimeoutSeconds
	}
}
