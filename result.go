// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql"
	"fmt"
	"strings"
)

// Result is a cursor over the rows returned by a select query. It is bound
// to the session the query ran in: once the session ends the result is
// closed and reports [ErrSessionClosed].
type Result struct {
	session *Session
	rows    *sql.Rows
	stmt    *sql.Stmt
	// ownsStmt is set when stmt is not cached and must be closed with the
	// result.
	ownsStmt   bool
	projection []*columnInfo
	current    Row
	hasRow     bool
	// done is set once the rows are exhausted or the result is closed.
	done bool
	err  error
}

func (s *Session) newResult(rows *sql.Rows, stmt *sql.Stmt, ownsStmt bool, projection []*columnInfo) *Result {
	r := &Result{session: s, rows: rows, stmt: stmt, ownsStmt: ownsStmt, projection: projection}
	if !ownsStmt {
		s.stmts.acquire(stmt)
	}
	s.results[r] = struct{}{}
	return r
}

// Next advances to the next row, returning false when there are no more
// rows or when an error occurred. The error is reported by [Result.Err].
func (r *Result) Next() bool {
	r.hasRow = false
	if r.err != nil {
		return false
	}
	if r.done {
		return false
	}
	if r.session.state == SessionClosed {
		r.err = ErrSessionClosed
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		r.finish()
		return false
	}
	row, err := r.scan()
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	r.current, r.hasRow = row, true
	return true
}

// scan reads and decodes the current row.
func (r *Result) scan() (Row, error) {
	raw := make([]any, len(r.projection))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return Row{}, err
	}
	values := make([]any, len(raw))
	for i, ci := range r.projection {
		v, err := ci.codec.DecodeValue(raw[i])
		if err != nil {
			return Row{}, &DecodeError{Column: ci.key(), Err: err}
		}
		values[i] = v
	}
	return Row{values: values, columns: r.projection}, nil
}

// Row returns the current row. It must only be called after a call to
// [Result.Next] returned true.
func (r *Result) Row() Row {
	if !r.hasRow {
		return Row{columns: r.projection}
	}
	return r.current
}

// Err returns the error that ended the iteration, if any.
func (r *Result) Err() error {
	return r.err
}

// All reads the remaining rows and closes the result. The returned rows do
// not depend on the session.
func (r *Result) All() ([]Row, error) {
	var rows []Row
	for r.Next() {
		rows = append(rows, r.current)
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Close closes the result and returns the error that ended the iteration,
// if any. Close can be called multiple times.
func (r *Result) Close() error {
	if !r.done && r.err == nil && r.session.state == SessionClosed {
		r.err = ErrSessionClosed
	}
	if err := r.finish(); err != nil && r.err == nil {
		r.err = err
	}
	r.hasRow = false
	return r.err
}

// finish ends the iteration and releases the rows.
func (r *Result) finish() error {
	r.done = true
	return r.release()
}

// release closes the underlying rows and detaches the result from its
// session.
func (r *Result) release() error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if r.ownsStmt {
		if cerr := r.stmt.Close(); err == nil {
			err = cerr
		}
	} else {
		r.session.stmts.release(r.stmt)
	}
	delete(r.session.results, r)
	return err
}

// Row is a row of a result. A row holds decoded values and remains valid
// after its session ends.
type Row struct {
	values  []any
	columns []*columnInfo
}

// Len returns the number of values in the row.
func (row Row) Len() int {
	return len(row.values)
}

// Values returns the decoded values of the row in projection order.
func (row Row) Values() []any {
	return append([]any(nil), row.values...)
}

func (row Row) String() string {
	parts := make([]string, len(row.values))
	for i, v := range row.values {
		parts[i] = fmt.Sprintf("%s=%v", row.columns[i].key(), v)
	}
	return "Row[" + strings.Join(parts, " ") + "]"
}

// Value returns the value of the projected item col.
func (row Row) Value(col AnyColumn) (any, error) {
	i, err := row.index(col)
	if err != nil {
		return nil, err
	}
	return row.values[i], nil
}

func (row Row) index(col AnyColumn) (int, error) {
	if col == nil || col.info() == nil {
		return 0, fmt.Errorf("cannot get value of nil column")
	}
	if len(row.values) == 0 {
		return 0, fmt.Errorf("cannot get %s: no current row", col.info().key())
	}
	key := col.info().key()
	for i, ci := range row.columns {
		if ci == col.info() || ci.key() == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("cannot get %s: not in projection %s", key, row.projectionString())
}

func (row Row) projectionString() string {
	keys := make([]string, len(row.columns))
	for i, ci := range row.columns {
		keys[i] = ci.key()
	}
	return "[" + strings.Join(keys, ", ") + "]"
}

// Get returns the value of col in row.
func Get[T any](row Row, col *Column[T]) (T, error) {
	var zero T
	if col == nil {
		return zero, fmt.Errorf("cannot get value of nil column")
	}
	v, err := row.Value(col)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("internal error: value of %s has type %T", col, v)
	}
	return t, nil
}

// MustGet is the same as [Get] except that it panics on error.
func MustGet[T any](row Row, col *Column[T]) T {
	v, err := Get(row, col)
	if err != nil {
		panic(err)
	}
	return v
}

// checkShape checks that the projection of row is exactly cols, in order.
func (row Row) checkShape(cols ...AnyColumn) error {
	if len(row.values) == 0 {
		return fmt.Errorf("cannot destructure row: no current row")
	}
	if len(cols) != len(row.columns) {
		return fmt.Errorf("cannot destructure row with projection %s into %d values", row.projectionString(), len(cols))
	}
	for i, col := range cols {
		if col == nil || col.info() == nil {
			return fmt.Errorf("cannot destructure row: column %d is nil", i)
		}
		if col.info() != row.columns[i] && col.info().key() != row.columns[i].key() {
			return fmt.Errorf("cannot destructure row with projection %s: item %d is %s, not %s",
				row.projectionString(), i, row.columns[i].key(), col.info().key())
		}
	}
	return nil
}

// item returns the i-th value of a row whose shape was checked.
func item[T any](row Row, i int) (T, error) {
	v, ok := row.values[i].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cannot destructure row: item %d (%s) has type %T, not %T", i, row.columns[i].key(), row.values[i], zero)
	}
	return v, nil
}

// Tuple2 returns the values of a row whose projection is exactly a, b.
func Tuple2[A, B any](row Row, a *Column[A], b *Column[B]) (va A, vb B, err error) {
	if err = row.checkShape(a, b); err != nil {
		return
	}
	if va, err = item[A](row, 0); err != nil {
		return
	}
	vb, err = item[B](row, 1)
	return
}

// Tuple3 returns the values of a row whose projection is exactly a, b, c.
func Tuple3[A, B, C any](row Row, a *Column[A], b *Column[B], c *Column[C]) (va A, vb B, vc C, err error) {
	if err = row.checkShape(a, b, c); err != nil {
		return
	}
	if va, err = item[A](row, 0); err != nil {
		return
	}
	if vb, err = item[B](row, 1); err != nil {
		return
	}
	vc, err = item[C](row, 2)
	return
}

// Tuple4 returns the values of a row whose projection is exactly a, b, c, d.
func Tuple4[A, B, C, D any](row Row, a *Column[A], b *Column[B], c *Column[C], d *Column[D]) (va A, vb B, vc C, vd D, err error) {
	if err = row.checkShape(a, b, c, d); err != nil {
		return
	}
	if va, err = item[A](row, 0); err != nil {
		return
	}
	if vb, err = item[B](row, 1); err != nil {
		return
	}
	if vc, err = item[C](row, 2); err != nil {
		return
	}
	vd, err = item[D](row, 3)
	return
}
