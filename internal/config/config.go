// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the backend configuration of a datastore.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override the file
// settings, for example TYPEDSQL_DSN or TYPEDSQL_POOL_MAX_OPEN_CONNS.
const EnvPrefix = "TYPEDSQL"

// Config is the backend configuration of a datastore.
type Config struct {
	// Driver is the database/sql driver name, for example "sqlite3",
	// "mysql" or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is the data source name passed to the driver.
	DSN string `mapstructure:"dsn"`

	// Dialect overrides the dialect detected from the driver.
	Dialect string `mapstructure:"dialect"`

	Pool Pool `mapstructure:"pool"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
}

// Pool holds the settings of the connection pool shared by independent
// sessions.
type Pool struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// Default returns the configuration used when a setting is absent.
func Default() Config {
	return Config{
		Driver:   "sqlite3",
		DSN:      "file::memory:?cache=shared",
		LogLevel: "info",
		Pool: Pool{
			MaxOpenConns:    0,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
	}
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// validates the result. An empty path loads defaults and the environment
// only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("driver", d.Driver)
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("dialect", d.Dialect)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("pool.max_open_conns", d.Pool.MaxOpenConns)
	v.SetDefault("pool.max_idle_conns", d.Pool.MaxIdleConns)
	v.SetDefault("pool.conn_max_lifetime", d.Pool.ConnMaxLifetime)
	v.SetDefault("pool.conn_max_idle_time", d.Pool.ConnMaxIdleTime)
}

// Validate checks the configuration for missing or invalid settings.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("invalid config: driver not set")
	}
	if c.DSN == "" {
		return fmt.Errorf("invalid config: dsn not set")
	}
	if c.Pool.MaxOpenConns < 0 {
		return fmt.Errorf("invalid config: pool.max_open_conns must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}
