// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/canonical/typedsql/internal/expr"
)

// NoKey is the key reported for inserted rows whose key was not generated or
// cannot be known.
const NoKey int64 = -1

// InsertOutcome describes the effect of an insert query.
type InsertOutcome struct {
	// RowsAffected is the number of rows inserted, as reported by the
	// backend.
	RowsAffected int64

	// Keys holds one entry per inserted row. For a single row inserted into
	// a table with an auto increment column it is the generated key; every
	// other entry is NoKey.
	Keys []int64
}

// prepare compiles n and returns the prepared statement for it along with
// the compiled statement.
func (s *Session) prepare(ctx context.Context, n expr.Node) (*sql.Stmt, *expr.Statement, error) {
	compiled, err := s.ds.compile(n)
	if err != nil {
		return nil, nil, err
	}
	if limit := s.ds.dialect.MaxParams(); len(compiled.Args) > limit {
		return nil, nil, fmt.Errorf("cannot run statement with %d parameters: %s allows at most %d", len(compiled.Args), s.ds.dialect.Name(), limit)
	}
	ps, err := s.substrate()
	if err != nil {
		return nil, nil, err
	}
	stmt, cached, err := s.stmts.prepare(ctx, ps, compiled.SQL)
	if err != nil {
		return nil, nil, err
	}
	s.ds.logger.Debug("session: running statement", "session", s.id, "sql", compiled.SQL, "cached", cached)
	return stmt, compiled, nil
}

// classify wraps backend errors signalling a constraint violation in a
// ConstraintError. Other errors are returned unchanged.
func (ds *Datastore) classify(err error) error {
	if err != nil && ds.dialect.IsConstraintViolation(err) {
		return &ConstraintError{Err: err}
	}
	return err
}

// Query runs the query in the session carried by ctx and returns a [Result]
// positioned before the first row. The result must be used before the
// session ends.
func (q SelectQuery) Query(ctx context.Context) (*Result, error) {
	n, err := q.node()
	if err != nil {
		return nil, fmt.Errorf("cannot run query: %w", err)
	}
	ds := q.datastore()
	s, err := activeSession(ctx, ds)
	if err != nil {
		return nil, err
	}
	stmt, compiled, err := s.prepare(ctx, n)
	if err != nil {
		return nil, err
	}
	// A cached statement whose rows are still being read cannot be run
	// again, so a statement owned by the result is prepared instead.
	owned := s.stmts.isBusy(stmt)
	if owned {
		ps, err := s.substrate()
		if err != nil {
			return nil, err
		}
		if stmt, err = ps.PrepareContext(ctx, compiled.SQL); err != nil {
			return nil, err
		}
	}
	rows, err := stmt.QueryContext(ctx, compiled.Args...)
	if err != nil {
		if owned {
			stmt.Close()
		}
		return nil, ds.classify(err)
	}
	return s.newResult(rows, stmt, owned, q.projection), nil
}

// All runs the query and returns all its rows. The rows remain usable after
// the session ends.
func (q SelectQuery) All(ctx context.Context) ([]Row, error) {
	res, err := q.Query(ctx)
	if err != nil {
		return nil, err
	}
	return res.All()
}

// One runs the query and returns its first row. It returns [ErrNoRows] if
// the query returns no rows.
func (q SelectQuery) One(ctx context.Context) (Row, error) {
	res, err := q.Query(ctx)
	if err != nil {
		return Row{}, err
	}
	defer res.Close()
	if !res.Next() {
		if err := res.Err(); err != nil {
			return Row{}, err
		}
		return Row{}, ErrNoRows
	}
	return res.Row(), nil
}

// Exec runs the insert in the session carried by ctx. All rows are inserted
// with a single statement, so the number of rows times the number of columns
// must not exceed the parameters the backend binds per statement: 32766 for
// SQLite, 65535 for MySQL and PostgreSQL. Larger inserts fail before
// anything is sent to the database. Split them into several batches.
func (q InsertQuery) Exec(ctx context.Context) (*InsertOutcome, error) {
	n, err := q.node()
	if err != nil {
		return nil, fmt.Errorf("cannot run insert: %w", err)
	}
	ds := q.table.ds
	s, err := activeSession(ctx, ds)
	if err != nil {
		return nil, err
	}

	outcome := &InsertOutcome{Keys: make([]int64, len(q.rows))}
	for i := range outcome.Keys {
		outcome.Keys[i] = NoKey
	}
	ai := q.table.autoIncrement()
	wantKey := ai != nil && len(q.rows) == 1

	if wantKey && ds.dialect.Returning() {
		n.Returning = ai.name
		stmt, compiled, err := s.prepare(ctx, n)
		if err != nil {
			return nil, err
		}
		var key int64
		if err := stmt.QueryRowContext(ctx, compiled.Args...).Scan(&key); err != nil {
			return nil, ds.classify(err)
		}
		outcome.RowsAffected = 1
		outcome.Keys[0] = key
		return outcome, nil
	}

	stmt, compiled, err := s.prepare(ctx, n)
	if err != nil {
		return nil, err
	}
	res, err := stmt.ExecContext(ctx, compiled.Args...)
	if err != nil {
		return nil, ds.classify(err)
	}
	if outcome.RowsAffected, err = res.RowsAffected(); err != nil {
		return nil, err
	}
	if wantKey {
		key, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		outcome.Keys[0] = key
	}
	return outcome, nil
}

// Exec runs the update in the session carried by ctx and returns the number
// of updated rows.
func (q UpdateQuery) Exec(ctx context.Context) (int64, error) {
	n, err := q.node()
	if err != nil {
		return 0, fmt.Errorf("cannot run update: %w", err)
	}
	return execAffected(ctx, q.table.ds, n)
}

// Exec runs the delete in the session carried by ctx and returns the number
// of deleted rows.
func (q DeleteQuery) Exec(ctx context.Context) (int64, error) {
	n, err := q.node()
	if err != nil {
		return 0, fmt.Errorf("cannot run delete: %w", err)
	}
	return execAffected(ctx, q.table.ds, n)
}

func execAffected(ctx context.Context, ds *Datastore, n expr.Node) (int64, error) {
	s, err := activeSession(ctx, ds)
	if err != nil {
		return 0, err
	}
	stmt, compiled, err := s.prepare(ctx, n)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, compiled.Args...)
	if err != nil {
		return 0, ds.classify(err)
	}
	return res.RowsAffected()
}
