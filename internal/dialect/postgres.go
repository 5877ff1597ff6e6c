// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"database/sql/driver"
	"errors"
	"strconv"

	"github.com/lib/pq"
)

// Postgres is the dialect of github.com/lib/pq.
var Postgres Dialect = postgresDialect{}

// integrityConstraintViolation is the SQLSTATE class of integrity constraint
// failures.
const integrityConstraintViolation pq.ErrorClass = "23"

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`) }

func (postgresDialect) Returning() bool { return true }

// MaxParams is the largest parameter count of the extended query protocol.
func (postgresDialect) MaxParams() int { return 65535 }

func (postgresDialect) IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == integrityConstraintViolation
	}
	return false
}

func isPostgresDriver(d driver.Driver) bool {
	_, ok := d.(*pq.Driver)
	return ok
}
