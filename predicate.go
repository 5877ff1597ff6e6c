// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"fmt"

	"github.com/canonical/typedsql/internal/expr"
)

// Predicate is a boolean condition on columns, used in WHERE and ON
// clauses. Predicates are built from column methods such as
// [Column.Equals] and combined with [And], [Or] and [Not]. A predicate that
// could not be built carries its error, which is reported by [Predicate.Err]
// and by any query using it.
type Predicate struct {
	p expr.Predicate
	// tables are the tables referenced by the predicate, in order of first
	// reference.
	tables []*Table
	err    error
}

// Err returns the error recorded while building the predicate.
func (p Predicate) Err() error {
	if p.err == nil && p.p == nil {
		return fmt.Errorf("empty predicate")
	}
	return p.err
}

func (p Predicate) String() string {
	if p.p == nil {
		return "<invalid predicate>"
	}
	return p.p.String()
}

// And returns the conjunction of p and others.
func (p Predicate) And(others ...Predicate) Predicate {
	return And(append([]Predicate{p}, others...)...)
}

// Or returns the disjunction of p and others.
func (p Predicate) Or(others ...Predicate) Predicate {
	return Or(append([]Predicate{p}, others...)...)
}

// And returns the conjunction of the predicates. Nested conjunctions are
// flattened.
func And(preds ...Predicate) Predicate {
	return connect(expr.And, preds)
}

// Or returns the disjunction of the predicates. Nested disjunctions are
// flattened.
func Or(preds ...Predicate) Predicate {
	return connect(expr.Or, preds)
}

// Not returns the negation of p.
func Not(p Predicate) Predicate {
	if err := p.Err(); err != nil {
		return Predicate{err: err}
	}
	return Predicate{p: &expr.Not{Term: p.p}, tables: p.tables}
}

func connect(op expr.Logic, preds []Predicate) Predicate {
	if len(preds) == 0 {
		return Predicate{err: fmt.Errorf("%s of no predicates", op)}
	}
	if len(preds) == 1 {
		return preds[0]
	}
	c := &expr.Connective{Op: op}
	var tables []*Table
	for i, p := range preds {
		if err := p.Err(); err != nil {
			return Predicate{err: fmt.Errorf("%s term %d: %w", op, i, err)}
		}
		if inner, ok := p.p.(*expr.Connective); ok && inner.Op == op {
			c.Terms = append(c.Terms, inner.Terms...)
		} else {
			c.Terms = append(c.Terms, p.p)
		}
		tables = mergeTables(tables, p.tables)
	}
	return Predicate{p: c, tables: tables}
}

// mergeTables appends the tables of add missing from tables.
func mergeTables(tables []*Table, add []*Table) []*Table {
	for _, t := range add {
		if !containsTable(tables, t) {
			tables = append(tables, t)
		}
	}
	return tables
}

func containsTable(tables []*Table, t *Table) bool {
	for _, u := range tables {
		if u == t {
			return true
		}
	}
	return false
}

// operandColumn checks that a column can appear in a predicate.
func operandColumn(ci *columnInfo) error {
	if err := ci.usable(); err != nil {
		return err
	}
	if ci.agg != expr.NoAggregate {
		return fmt.Errorf("aggregate %s cannot be used in a predicate", ci.key())
	}
	return nil
}

func (col *Column[T]) compare(op expr.Op, v T) Predicate {
	ci := col.c
	if err := operandColumn(ci); err != nil {
		return Predicate{err: err}
	}
	val, err := ci.encode(v)
	if err != nil {
		return Predicate{err: err}
	}
	return Predicate{
		p:      &expr.Comparison{Op: op, Left: ci.ref(), Right: expr.Param{Value: val}},
		tables: []*Table{ci.owner()},
	}
}

func (col *Column[T]) compareColumn(op expr.Op, other *Column[T]) Predicate {
	ci := col.c
	if err := operandColumn(ci); err != nil {
		return Predicate{err: err}
	}
	if other == nil {
		return Predicate{err: fmt.Errorf("cannot compare %s with nil column", ci.key())}
	}
	if err := operandColumn(other.c); err != nil {
		return Predicate{err: err}
	}
	return Predicate{
		p:      &expr.Comparison{Op: op, Left: ci.ref(), Right: other.c.ref()},
		tables: mergeTables([]*Table{ci.owner()}, []*Table{other.c.owner()}),
	}
}

func (col *Column[T]) unary(op expr.Op) Predicate {
	ci := col.c
	if err := operandColumn(ci); err != nil {
		return Predicate{err: err}
	}
	return Predicate{
		p:      &expr.Comparison{Op: op, Left: ci.ref()},
		tables: []*Table{ci.owner()},
	}
}

// Equals is true if the column equals v.
func (col *Column[T]) Equals(v T) Predicate {
	return col.compare(expr.Eq, v)
}

func (col *Column[T]) NotEquals(v T) Predicate {
	return col.compare(expr.NotEq, v)
}

func (col *Column[T]) LessThan(v T) Predicate {
	return col.compare(expr.Lt, v)
}

func (col *Column[T]) LessOrEqual(v T) Predicate {
	return col.compare(expr.LtEq, v)
}

func (col *Column[T]) GreaterThan(v T) Predicate {
	return col.compare(expr.Gt, v)
}

func (col *Column[T]) GreaterOrEqual(v T) Predicate {
	return col.compare(expr.GtEq, v)
}

// In is true if the column equals one of vs. At least one value is needed.
func (col *Column[T]) In(vs ...T) Predicate {
	ci := col.c
	if err := operandColumn(ci); err != nil {
		return Predicate{err: err}
	}
	if len(vs) == 0 {
		return Predicate{err: fmt.Errorf("%s IN needs at least one value", ci.key())}
	}
	values := make([]any, len(vs))
	for i, v := range vs {
		val, err := ci.encode(v)
		if err != nil {
			return Predicate{err: err}
		}
		values[i] = val
	}
	return Predicate{
		p:      &expr.Comparison{Op: expr.In, Left: ci.ref(), Right: expr.List{Values: values}},
		tables: []*Table{ci.owner()},
	}
}

func (col *Column[T]) IsNull() Predicate {
	return col.unary(expr.IsNull)
}

func (col *Column[T]) IsNotNull() Predicate {
	return col.unary(expr.IsNotNull)
}

// EqualsColumn is true if the column equals the other column. It is the
// usual condition of a join.
func (col *Column[T]) EqualsColumn(other *Column[T]) Predicate {
	return col.compareColumn(expr.Eq, other)
}

func (col *Column[T]) NotEqualsColumn(other *Column[T]) Predicate {
	return col.compareColumn(expr.NotEq, other)
}

func (col *Column[T]) LessThanColumn(other *Column[T]) Predicate {
	return col.compareColumn(expr.Lt, other)
}

func (col *Column[T]) GreaterThanColumn(other *Column[T]) Predicate {
	return col.compareColumn(expr.Gt, other)
}
