// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"fmt"
	"slices"

	"github.com/canonical/typedsql/internal/expr"
)

// Queries are immutable values. Every builder method returns a new query and
// leaves its receiver untouched, so a partially built query can be shared
// and extended in different ways. Errors found while building are recorded
// on the query, reported by its Err method and returned by its terminal
// method before anything is sent to the backend.

// SelectBuilder holds the projection of a select query until its source
// table is given.
type SelectBuilder struct {
	items []AnyColumn
}

// Select starts a select query returning the given columns, in order.
// Aggregates returned by [Column.Min] and [Column.Max] are accepted.
func Select(items ...AnyColumn) SelectBuilder {
	return SelectBuilder{items: slices.Clip(slices.Clone(items))}
}

// From sets the source table of the query.
func (b SelectBuilder) From(t *Table) SelectQuery {
	q := SelectQuery{from: t}
	if len(b.items) == 0 {
		q.err = fmt.Errorf("empty projection")
		return q
	}
	for i, item := range b.items {
		if item == nil || item.info() == nil {
			q.err = fmt.Errorf("projection item %d is nil", i)
			return q
		}
		if err := item.info().usable(); err != nil {
			q.err = err
			return q
		}
		q.projection = append(q.projection, item.info())
	}
	q.projection = slices.Clip(q.projection)
	if t == nil {
		q.err = fmt.Errorf("no source table")
	}
	return q
}

type selectJoin struct {
	table *Table
	on    Predicate
}

// SelectQuery is a select query.
type SelectQuery struct {
	projection []*columnInfo
	from       *Table
	joins      []selectJoin
	where      Predicate
	hasWhere   bool
	err        error
}

// JoinBuilder holds a table joined to a query until its join condition is
// given.
type JoinBuilder struct {
	q     SelectQuery
	table *Table
}

// InnerJoin joins the table t to the query. The join condition is given
// with [JoinBuilder.On].
func (q SelectQuery) InnerJoin(t *Table) JoinBuilder {
	return JoinBuilder{q: q, table: t}
}

// On sets the condition of the join.
func (j JoinBuilder) On(p Predicate) SelectQuery {
	q := j.q
	if q.err != nil {
		return q
	}
	if j.table == nil {
		q.err = fmt.Errorf("join with nil table")
		return q
	}
	if p.p == nil && p.err == nil {
		q.err = fmt.Errorf("join with %s has no condition", j.table.name)
		return q
	}
	if err := p.Err(); err != nil {
		q.err = fmt.Errorf("join with %s: %w", j.table.name, err)
		return q
	}
	q.joins = append(slices.Clip(q.joins), selectJoin{table: j.table, on: p})
	return q
}

// Where filters the rows of the query. If the query is already filtered the
// conditions are conjoined.
func (q SelectQuery) Where(p Predicate) SelectQuery {
	if q.err != nil {
		return q
	}
	where, err := conjoin(q.where, q.hasWhere, p)
	if err != nil {
		q.err = err
		return q
	}
	q.where, q.hasWhere = where, true
	return q
}

// And conjoins p with the filter of the query.
func (q SelectQuery) And(p Predicate) SelectQuery {
	return q.Where(p)
}

// Err returns the first error found while building the query.
func (q SelectQuery) Err() error {
	_, err := q.node()
	return err
}

func (q SelectQuery) String() string {
	n, err := q.node()
	if err != nil {
		return "<invalid query: " + err.Error() + ">"
	}
	return n.String()
}

// tables returns the tables the query reads from.
func (q SelectQuery) tables() []*Table {
	tables := []*Table{q.from}
	for _, j := range q.joins {
		tables = append(tables, j.table)
	}
	return tables
}

// node validates the query and returns its AST.
func (q SelectQuery) node() (*expr.Select, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.from == nil {
		return nil, fmt.Errorf("no source table")
	}
	if len(q.projection) == 0 {
		return nil, fmt.Errorf("empty projection")
	}
	ds := q.from.ds
	var seen []*Table
	for _, t := range q.tables() {
		if t.ds != ds {
			return nil, fmt.Errorf("table %s belongs to another datastore", t.name)
		}
		if containsTable(seen, t) {
			return nil, fmt.Errorf("table %s appears more than once in query", t.name)
		}
		seen = append(seen, t)
	}

	n := &expr.Select{From: q.from.name}
	for _, ci := range q.projection {
		if !containsTable(seen, ci.owner()) {
			return nil, fmt.Errorf("column %s is not from a table in the query", ci.key())
		}
		n.Projection = append(n.Projection, ci.ref())
	}
	available := []*Table{q.from}
	for _, j := range q.joins {
		available = append(available, j.table)
		if err := checkPredicateTables("join condition", j.on, available); err != nil {
			return nil, err
		}
		n.Joins = append(n.Joins, expr.Join{Table: j.table.name, On: j.on.p})
	}
	if q.hasWhere {
		if err := checkPredicateTables("filter", q.where, seen); err != nil {
			return nil, err
		}
		n.Where = q.where.p
	}
	return n, nil
}

func (q SelectQuery) datastore() *Datastore {
	if q.from == nil {
		return nil
	}
	return q.from.ds
}

// conjoin adds p to the filter cur.
func conjoin(cur Predicate, has bool, p Predicate) (Predicate, error) {
	if err := p.Err(); err != nil {
		return Predicate{}, fmt.Errorf("invalid filter: %w", err)
	}
	if !has {
		return p, nil
	}
	return And(cur, p), nil
}

// checkPredicateTables checks that p only references the given tables.
func checkPredicateTables(what string, p Predicate, tables []*Table) error {
	for _, t := range p.tables {
		if !containsTable(tables, t) {
			return fmt.Errorf("%s %s references table %s which is not in the query", what, p, t.name)
		}
	}
	return nil
}

// InsertQuery inserts one or more rows into a table.
type InsertQuery struct {
	table   *Table
	columns []*columnInfo
	rows    [][]any
	// positional is set on queries built by InsertInto.
	positional bool
	err        error
}

// Insert starts an insert query of a single row made of the given values.
// All values must assign columns of the same table. Columns that are not
// assigned get their default value, or a generated key for an
// auto increment column.
func Insert(values ...Value) InsertQuery {
	return InsertQuery{}.addRow(values)
}

// And adds a row to the insert query. The row must assign the same columns
// as the first row, in any order.
func (q InsertQuery) And(values ...Value) InsertQuery {
	if q.positional && q.err == nil {
		q.err = fmt.Errorf("positional insert into %s cannot be extended with column values", q.table.name)
		return q
	}
	return q.addRow(values)
}

// InsertBatch is an insert query of several rows, each built as with
// [Insert]. The rows are sent in one statement: see [InsertQuery.Exec] for
// the limit on their number.
func InsertBatch(rows ...[]Value) InsertQuery {
	if len(rows) == 0 {
		return InsertQuery{err: fmt.Errorf("insert of no rows")}
	}
	var q InsertQuery
	for _, row := range rows {
		q = q.addRow(row)
	}
	return q
}

func (q InsertQuery) addRow(values []Value) InsertQuery {
	if q.err != nil {
		return q
	}
	rowNum := len(q.rows)
	if len(values) == 0 {
		q.err = fmt.Errorf("insert row %d has no values", rowNum)
		return q
	}
	byCol := make(map[*columnInfo]any, len(values))
	var order []*columnInfo
	for _, v := range values {
		if v.c == nil {
			q.err = fmt.Errorf("insert row %d: zero Value", rowNum)
			return q
		}
		if v.err != nil {
			q.err = fmt.Errorf("insert row %d: %w", rowNum, v.err)
			return q
		}
		t := v.c.table
		if q.table == nil {
			q.table = t
		} else if t != q.table {
			q.err = fmt.Errorf("insert row %d: column %s is not from table %s", rowNum, v.c.key(), q.table.name)
			return q
		}
		if _, ok := byCol[v.c]; ok {
			q.err = fmt.Errorf("insert row %d: column %s assigned more than once", rowNum, v.c.key())
			return q
		}
		byCol[v.c] = v.val
		order = append(order, v.c)
	}

	if rowNum == 0 {
		q.columns = slices.Clip(order)
	} else if len(order) != len(q.columns) {
		q.err = fmt.Errorf("insert row %d has %d values, expected %d", rowNum, len(order), len(q.columns))
		return q
	}
	row := make([]any, len(q.columns))
	for i, ci := range q.columns {
		val, ok := byCol[ci]
		if !ok {
			q.err = fmt.Errorf("insert row %d does not assign column %s", rowNum, ci.key())
			return q
		}
		row[i] = val
	}
	q.rows = append(slices.Clip(q.rows), row)
	return q
}

// InsertInto inserts a row given positionally, in the declared order of the
// columns of t. Either every column is given or every column except the
// auto increment one, whose value is then generated.
func InsertInto(t *Table, values ...any) InsertQuery {
	return InsertIntoBatch(t, values)
}

// InsertIntoBatch inserts several rows given positionally as with
// [InsertInto]. All rows must have the same length. The rows are sent in one
// statement: see [InsertQuery.Exec] for the limit on their number.
func InsertIntoBatch(t *Table, rows ...[]any) InsertQuery {
	if t == nil {
		return InsertQuery{err: fmt.Errorf("insert into nil table")}
	}
	if len(rows) == 0 {
		return InsertQuery{err: fmt.Errorf("insert into %s of no rows", t.name)}
	}
	q := InsertQuery{table: t, positional: true}
	q.columns = positionalColumns(t, len(rows[0]))
	if q.columns == nil {
		auto := ""
		if ai := t.autoIncrement(); ai != nil {
			auto = fmt.Sprintf(" or %d without %s", len(t.columns)-1, ai.name)
		}
		q.err = fmt.Errorf("insert into %s has %d values, expected %d%s", t.name, len(rows[0]), len(t.columns), auto)
		return q
	}
	for i, values := range rows {
		if len(values) != len(q.columns) {
			q.err = fmt.Errorf("insert row %d has %d values, expected %d", i, len(values), len(q.columns))
			return q
		}
		row := make([]any, len(values))
		for j, v := range values {
			val, err := q.columns[j].encode(v)
			if err != nil {
				q.err = fmt.Errorf("insert row %d: %w", i, err)
				return q
			}
			row[j] = val
		}
		q.rows = append(q.rows, row)
	}
	return q
}

// positionalColumns returns the columns of t filled by a positional row of
// n values, or nil if n does not fit.
func positionalColumns(t *Table, n int) []*columnInfo {
	all := make([]*columnInfo, 0, len(t.columns))
	for _, c := range t.columns {
		all = append(all, c.info())
	}
	if n == len(all) {
		return all
	}
	ai := t.autoIncrement()
	if ai == nil || n != len(all)-1 {
		return nil
	}
	return slices.DeleteFunc(all, func(ci *columnInfo) bool { return ci == ai })
}

// Err returns the first error found while building the query.
func (q InsertQuery) Err() error {
	_, err := q.node()
	return err
}

func (q InsertQuery) String() string {
	n, err := q.node()
	if err != nil {
		return "<invalid query: " + err.Error() + ">"
	}
	return n.String()
}

// Len returns the number of rows of the query.
func (q InsertQuery) Len() int {
	return len(q.rows)
}

func (q InsertQuery) node() (*expr.Insert, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.table == nil || len(q.rows) == 0 {
		return nil, fmt.Errorf("insert of no rows")
	}
	n := &expr.Insert{Table: q.table.name, Rows: q.rows}
	for _, ci := range q.columns {
		n.Columns = append(n.Columns, ci.name)
	}
	return n, nil
}

// UpdateQuery sets columns of the rows of a table.
type UpdateQuery struct {
	table    *Table
	set      []expr.Assignment
	where    Predicate
	hasWhere bool
	err      error
}

// Update starts an update query assigning the given values. All values must
// assign columns of the same table. Without a filter every row is updated.
func Update(values ...Value) UpdateQuery {
	var q UpdateQuery
	if len(values) == 0 {
		q.err = fmt.Errorf("update sets no columns")
		return q
	}
	seen := map[*columnInfo]bool{}
	for _, v := range values {
		if v.c == nil {
			q.err = fmt.Errorf("update: zero Value")
			return q
		}
		if v.err != nil {
			q.err = fmt.Errorf("update: %w", v.err)
			return q
		}
		if q.table == nil {
			q.table = v.c.table
		} else if v.c.table != q.table {
			q.err = fmt.Errorf("update: column %s is not from table %s", v.c.key(), q.table.name)
			return q
		}
		if seen[v.c] {
			q.err = fmt.Errorf("update: column %s assigned more than once", v.c.key())
			return q
		}
		seen[v.c] = true
		q.set = append(q.set, expr.Assignment{Column: v.c.name, Value: v.val})
	}
	q.set = slices.Clip(q.set)
	return q
}

// Where filters the rows to update. If the query is already filtered the
// conditions are conjoined.
func (q UpdateQuery) Where(p Predicate) UpdateQuery {
	if q.err != nil {
		return q
	}
	where, err := conjoin(q.where, q.hasWhere, p)
	if err != nil {
		q.err = err
		return q
	}
	q.where, q.hasWhere = where, true
	return q
}

// Err returns the first error found while building the query.
func (q UpdateQuery) Err() error {
	_, err := q.node()
	return err
}

func (q UpdateQuery) String() string {
	n, err := q.node()
	if err != nil {
		return "<invalid query: " + err.Error() + ">"
	}
	return n.String()
}

func (q UpdateQuery) node() (*expr.Update, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.table == nil {
		return nil, fmt.Errorf("update sets no columns")
	}
	n := &expr.Update{Table: q.table.name, Set: q.set}
	if q.hasWhere {
		if err := checkPredicateTables("filter", q.where, []*Table{q.table}); err != nil {
			return nil, err
		}
		n.Where = q.where.p
	}
	return n, nil
}

// DeleteQuery deletes rows of a table.
type DeleteQuery struct {
	table    *Table
	where    Predicate
	hasWhere bool
	err      error
}

// Delete starts a delete query on t. Without a filter every row is deleted.
func Delete(t *Table) DeleteQuery {
	if t == nil {
		return DeleteQuery{err: fmt.Errorf("delete from nil table")}
	}
	return DeleteQuery{table: t}
}

// Where filters the rows to delete. If the query is already filtered the
// conditions are conjoined.
func (q DeleteQuery) Where(p Predicate) DeleteQuery {
	if q.err != nil {
		return q
	}
	where, err := conjoin(q.where, q.hasWhere, p)
	if err != nil {
		q.err = err
		return q
	}
	q.where, q.hasWhere = where, true
	return q
}

// Err returns the first error found while building the query.
func (q DeleteQuery) Err() error {
	_, err := q.node()
	return err
}

func (q DeleteQuery) String() string {
	n, err := q.node()
	if err != nil {
		return "<invalid query: " + err.Error() + ">"
	}
	return n.String()
}

func (q DeleteQuery) node() (*expr.Delete, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.table == nil {
		return nil, fmt.Errorf("delete from nil table")
	}
	n := &expr.Delete{Table: q.table.name}
	if q.hasWhere {
		if err := checkPredicateTables("filter", q.where, []*Table{q.table}); err != nil {
			return nil, err
		}
		n.Where = q.where.p
	}
	return n, nil
}
