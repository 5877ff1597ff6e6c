// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL is the dialect of github.com/go-sql-driver/mysql.
var MySQL Dialect = mysqlDialect{}

// mysqlConstraintErrors are the server error numbers raised when an integrity
// constraint fails.
var mysqlConstraintErrors = map[uint16]bool{
	1048: true, // ER_BAD_NULL_ERROR
	1062: true, // ER_DUP_ENTRY
	1451: true, // ER_ROW_IS_REFERENCED_2
	1452: true, // ER_NO_REFERENCED_ROW_2
	1557: true, // ER_FOREIGN_DUPLICATE_KEY
	3819: true, // ER_CHECK_CONSTRAINT_VIOLATED
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`") }

func (mysqlDialect) Returning() bool { return false }

func (mysqlDialect) MaxParams() int { return 65535 }

func (mysqlDialect) IsConstraintViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlConstraintErrors[mysqlErr.Number]
	}
	return false
}

func isMySQLDriver(d driver.Driver) bool {
	switch d.(type) {
	case *mysql.MySQLDriver, mysql.MySQLDriver:
		return true
	}
	return false
}
