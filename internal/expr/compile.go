// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"bytes"
	"fmt"
)

// Dialect provides the backend specific syntax used by Compile.
type Dialect interface {
	Placeholder(n int) string
	Quote(ident string) string
}

// Statement is compiled SQL along with its query parameters.
type Statement struct {
	SQL  string
	Args []any
}

// Compile generates the SQL for n in the given dialect.
func Compile(d Dialect, n Node) (stmt *Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile statement: %s", err)
		}
	}()

	b := &sqlBuilder{dialect: d}
	switch n := n.(type) {
	case *Select:
		err = b.writeSelect(n)
	case *Insert:
		err = b.writeInsert(n)
	case *Update:
		err = b.writeUpdate(n)
	case *Delete:
		err = b.writeDelete(n)
	case nil:
		err = fmt.Errorf("nil statement")
	default:
		err = fmt.Errorf("internal error: unknown statement type %T", n)
	}
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: b.buf.String(), Args: b.args}, nil
}

// sqlBuilder is used to generate SQL string piece by piece using the struct
// methods.
type sqlBuilder struct {
	dialect Dialect
	buf     bytes.Buffer
	// args are the query parameters in placeholder order.
	args []any
}

func (b *sqlBuilder) writeSelect(s *Select) error {
	if len(s.Projection) == 0 {
		return fmt.Errorf("empty projection")
	}
	if s.From == "" {
		return fmt.Errorf("no source table")
	}
	b.write("SELECT ")
	b.writeCommaSeparatedList(len(s.Projection), func(i int) {
		b.writeColumnRef(s.Projection[i])
	})
	b.write(" FROM ")
	b.writeIdent(s.From)
	for _, j := range s.Joins {
		if j.On == nil {
			return fmt.Errorf("join with %s has no condition", j.Table)
		}
		b.write(" INNER JOIN ")
		b.writeIdent(j.Table)
		b.write(" ON ")
		if err := b.writePredicate(j.On); err != nil {
			return err
		}
	}
	return b.writeWhere(s.Where)
}

func (b *sqlBuilder) writeInsert(ins *Insert) error {
	if len(ins.Columns) == 0 {
		return fmt.Errorf("insert into %s has no columns", ins.Table)
	}
	if len(ins.Rows) == 0 {
		return fmt.Errorf("insert into %s has no rows", ins.Table)
	}
	b.write("INSERT INTO ")
	b.writeIdent(ins.Table)
	// Write out the columns.
	b.write(" (")
	b.writeCommaSeparatedList(len(ins.Columns), func(i int) {
		b.writeIdent(ins.Columns[i])
	})
	b.write(") VALUES ")
	// Write out the values.
	for i, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(ins.Columns))
		}
		if i != 0 {
			b.write(", ")
		}
		b.write("(")
		b.writeCommaSeparatedList(len(row), func(j int) {
			b.writeParam(row[j])
		})
		b.write(")")
	}
	if ins.Returning != "" {
		b.write(" RETURNING ")
		b.writeIdent(ins.Returning)
	}
	return nil
}

func (b *sqlBuilder) writeUpdate(u *Update) error {
	if len(u.Set) == 0 {
		return fmt.Errorf("update of %s sets no columns", u.Table)
	}
	b.write("UPDATE ")
	b.writeIdent(u.Table)
	b.write(" SET ")
	b.writeCommaSeparatedList(len(u.Set), func(i int) {
		b.writeIdent(u.Set[i].Column)
		b.write(" = ")
		b.writeParam(u.Set[i].Value)
	})
	return b.writeWhere(u.Where)
}

func (b *sqlBuilder) writeDelete(d *Delete) error {
	if d.Table == "" {
		return fmt.Errorf("no table")
	}
	b.write("DELETE FROM ")
	b.writeIdent(d.Table)
	return b.writeWhere(d.Where)
}

func (b *sqlBuilder) writeWhere(p Predicate) error {
	if p == nil {
		return nil
	}
	b.write(" WHERE ")
	return b.writePredicate(p)
}

// writePredicate writes a predicate. Nested connectives are parenthesised so
// that the generated SQL keeps the shape of the tree.
func (b *sqlBuilder) writePredicate(p Predicate) error {
	switch p := p.(type) {
	case *Comparison:
		return b.writeComparison(p)
	case *Connective:
		if len(p.Terms) == 0 {
			return fmt.Errorf("empty %s", p.Op)
		}
		for i, t := range p.Terms {
			if i != 0 {
				b.write(" " + p.Op.String() + " ")
			}
			if err := b.writeTerm(t); err != nil {
				return err
			}
		}
		return nil
	case *Not:
		b.write("NOT ")
		b.write("(")
		if err := b.writePredicate(p.Term); err != nil {
			return err
		}
		b.write(")")
		return nil
	case nil:
		return fmt.Errorf("nil predicate")
	}
	return fmt.Errorf("internal error: unknown predicate type %T", p)
}

// writeTerm writes an operand of a connective.
func (b *sqlBuilder) writeTerm(p Predicate) error {
	if _, ok := p.(*Connective); !ok {
		return b.writePredicate(p)
	}
	b.write("(")
	if err := b.writePredicate(p); err != nil {
		return err
	}
	b.write(")")
	return nil
}

func (b *sqlBuilder) writeComparison(c *Comparison) error {
	b.writeColumnRef(c.Left)
	switch c.Op {
	case IsNull, IsNotNull:
		b.write(" " + c.Op.String())
		return nil
	case In:
		l, ok := c.Right.(List)
		if !ok {
			return fmt.Errorf("IN needs a list of values, got %v", c.Right)
		}
		if len(l.Values) == 0 {
			return fmt.Errorf("IN needs at least one value")
		}
		b.write(" IN (")
		b.writeCommaSeparatedList(len(l.Values), func(i int) {
			b.writeParam(l.Values[i])
		})
		b.write(")")
		return nil
	}
	b.write(" " + c.Op.String() + " ")
	switch r := c.Right.(type) {
	case ColumnRef:
		b.writeColumnRef(r)
	case Param:
		b.writeParam(r.Value)
	case nil:
		return fmt.Errorf("operator %s needs a right hand side", c.Op)
	default:
		return fmt.Errorf("operator %s cannot compare with %v", c.Op, r)
	}
	return nil
}

// writeColumnRef writes a column qualified by its table name.
func (b *sqlBuilder) writeColumnRef(c ColumnRef) {
	if c.Aggregate != NoAggregate {
		b.write(c.Aggregate.String() + "(")
	}
	b.writeIdent(c.Table)
	b.write(".")
	b.writeIdent(c.Column)
	if c.Aggregate != NoAggregate {
		b.write(")")
	}
}

// writeParam adds a query parameter and writes its placeholder.
func (b *sqlBuilder) writeParam(v any) {
	b.args = append(b.args, v)
	b.write(b.dialect.Placeholder(len(b.args)))
}

func (b *sqlBuilder) writeIdent(ident string) {
	b.write(b.dialect.Quote(ident))
}

// writeCommaSeparatedList calls writer for each of the n elements of a list,
// separating them with commas.
func (b *sqlBuilder) writeCommaSeparatedList(n int, writer func(i int)) {
	for i := 0; i < n; i++ {
		if i != 0 {
			b.write(", ")
		}
		writer(i)
	}
}

// write writes the SQL to the sqlBuilder.
func (b *sqlBuilder) write(sql string) {
	b.buf.WriteString(sql)
}
