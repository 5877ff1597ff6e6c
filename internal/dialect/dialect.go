// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dialect describes the differences between the supported backends
// that matter to typedsql: placeholder syntax, identifier quoting, how
// generated keys are returned and which driver errors are constraint
// violations.
//
// Importing this package registers the sqlite3, mysql and postgres drivers
// with database/sql.
package dialect

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Dialect is implemented by each supported backend.
type Dialect interface {
	// Name returns the canonical name of the dialect.
	Name() string

	// Placeholder returns the parameter placeholder for the n-th argument
	// of a statement, counting from 1.
	Placeholder(n int) string

	// Quote quotes an identifier.
	Quote(ident string) string

	// Returning is true if generated keys are read with a RETURNING clause
	// instead of sql.Result.LastInsertId.
	Returning() bool

	// MaxParams returns the number of parameters a single statement can
	// bind.
	MaxParams() int

	// IsConstraintViolation reports whether err, returned by the driver,
	// signals a uniqueness, foreign key or other integrity constraint
	// failure.
	IsConstraintViolation(err error) bool
}

// ForName returns the dialect with the given name. Driver names registered
// with database/sql are accepted as aliases.
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}

// Detect returns the dialect of a database/sql driver. Unknown drivers,
// such as wrappers around a supported driver, are given the SQLite dialect
// whose syntax is accepted by most backends.
func Detect(d driver.Driver) Dialect {
	switch {
	case isSQLiteDriver(d):
		return SQLite
	case isMySQLDriver(d):
		return MySQL
	case isPostgresDriver(d):
		return Postgres
	}
	return SQLite
}

// quoteWith doubles any q inside ident and surrounds it with q.
func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
