// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"context"
	"database/sql"
	"errors"
)

// stmtCache caches the driver prepared statements of a session, indexed by
// their SQL. A prepared statement is bound to the connection it was prepared
// on, so the cache lives and dies with its session: every statement is
// closed when the session ends.
type stmtCache struct {
	stmts map[string]*sql.Stmt
	// order holds the SQL of the statements in the order they were
	// prepared.
	order []string
	// busy counts the open results reading from each cached statement. A
	// statement cannot be run again while one of its results is open.
	busy map[*sql.Stmt]int
}

func newStmtCache() *stmtCache {
	return &stmtCache{stmts: map[string]*sql.Stmt{}, busy: map[*sql.Stmt]int{}}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.Tx
// or sql.Conn. It is used in prepare.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepare returns the prepared statement for query, preparing it on ps if it
// is not in the cache yet. The second return value is true if the statement
// was found in the cache.
func (sc *stmtCache) prepare(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, bool, error) {
	if stmt, ok := sc.stmts[query]; ok {
		return stmt, true, nil
	}
	stmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	sc.stmts[query] = stmt
	sc.order = append(sc.order, query)
	return stmt, false, nil
}

// acquire marks stmt as read by an open result.
func (sc *stmtCache) acquire(stmt *sql.Stmt) {
	sc.busy[stmt]++
}

// release marks the end of a result reading from stmt.
func (sc *stmtCache) release(stmt *sql.Stmt) {
	if sc.busy[stmt] <= 1 {
		delete(sc.busy, stmt)
		return
	}
	sc.busy[stmt]--
}

// isBusy reports whether an open result reads from stmt.
func (sc *stmtCache) isBusy(stmt *sql.Stmt) bool {
	return sc.busy[stmt] > 0
}

// len returns the number of cached statements.
func (sc *stmtCache) len() int {
	return len(sc.stmts)
}

// closeAll closes and forgets every cached statement. The errors of all the
// failed closes are joined.
func (sc *stmtCache) closeAll() error {
	var errs []error
	for _, query := range sc.order {
		if err := sc.stmts[query].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	sc.stmts = map[string]*sql.Stmt{}
	sc.order = nil
	sc.busy = map[*sql.Stmt]int{}
	return errors.Join(errs...)
}
