// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"database/sql/driver"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// SQLite is the dialect of github.com/mattn/go-sqlite3.
var SQLite Dialect = sqliteDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`) }

func (sqliteDialect) Returning() bool { return false }

// MaxParams is SQLITE_MAX_VARIABLE_NUMBER as compiled into go-sqlite3.
func (sqliteDialect) MaxParams() int { return 32766 }

func (sqliteDialect) IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return sqliteErrPtr.Code == sqlite3.ErrConstraint
	}
	return false
}

func isSQLiteDriver(d driver.Driver) bool {
	_, ok := d.(*sqlite3.SQLiteDriver)
	return ok
}
