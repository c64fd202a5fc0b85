package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by commands)
//  2. Environment variables (OBREW_CONNECTION_HOST, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	dir, err := DotDir(configDir)
	if err != nil {
		return nil, err
	}
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("OBREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the resolved viper state.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() using
// dotted-key notation, keeping config.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("connection.protocol", d.Connection.Protocol)
	v.SetDefault("connection.host", d.Connection.Host)
	v.SetDefault("connection.port", d.Connection.Port)

	v.SetDefault("client.health_timeout_seconds", d.Client.HealthTimeoutSeconds)
	v.SetDefault("client.debug", d.Client.Debug)
}
