// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/canonical/typedsql/internal/config"
)

// Config is the backend configuration read by [LoadConfig].
type Config = config.Config

// LoadConfig reads a YAML configuration file, applies the TYPEDSQL_*
// environment overrides and validates the result. An empty path uses the
// defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfig(path)
}

// DefaultConfig returns the default configuration, an in memory SQLite
// database.
func DefaultConfig() Config {
	return config.Default()
}

// Open opens the database described by cfg and returns a [Datastore] owning
// it. The datastore logs to stderr at the configured level unless another
// logger is passed with [WithLogger].
func Open(cfg *Config, opts ...Option) (*Datastore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cannot open datastore: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cannot open datastore: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, fmt.Errorf("cannot open datastore: %w", err)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open datastore: %w", err)
	}
	db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	all := []Option{WithLogger(logger)}
	if cfg.Dialect != "" {
		all = append(all, WithDialect(cfg.Dialect))
	}
	all = append(all, opts...)

	ds, err := NewDatastore(db, all...)
	if err != nil {
		db.Close()
		return nil, err
	}
	ds.ownsDB = true
	return ds, nil
}
