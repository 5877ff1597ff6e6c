// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"bytes"
	"fmt"
)

// Aggregate is an aggregate function applied to a projected column.
type Aggregate int

const (
	NoAggregate Aggregate = iota
	Min
	Max
)

func (a Aggregate) String() string {
	switch a {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	}
	return ""
}

// ColumnRef references a column of a table, optionally wrapped in an
// aggregate function.
type ColumnRef struct {
	Table     string
	Column    string
	Aggregate Aggregate
}

func (ColumnRef) operand() {}

// String returns a textual representation of the column reference for
// debugging and testing purposes.
func (c ColumnRef) String() string {
	if c.Aggregate != NoAggregate {
		return c.Aggregate.String() + "(" + c.Table + "." + c.Column + ")"
	}
	return c.Table + "." + c.Column
}

// Operand is the right hand side of a comparison.
type Operand interface {
	operand()
	String() string
}

// Param is a query parameter holding an encoded driver value.
type Param struct {
	Value any
}

func (Param) operand() {}

func (p Param) String() string {
	return fmt.Sprintf("Param[%v]", p.Value)
}

// List is a list of query parameters used by the IN operator.
type List struct {
	Values []any
}

func (List) operand() {}

func (l List) String() string {
	return fmt.Sprintf("List%v", l.Values)
}

// Op is a comparison operator.
type Op int

const (
	Eq Op = iota
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	IsNull
	IsNotNull
	In
)

func (op Op) String() string {
	switch op {
	case Eq:
		return "="
	case NotEq:
		return "<>"
	case Lt:
		return "<"
	case LtEq:
		return "<="
	case Gt:
		return ">"
	case GtEq:
		return ">="
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	case In:
		return "IN"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Predicate is a boolean condition used in WHERE and ON clauses.
type Predicate interface {
	predicate()
	String() string
}

// Comparison compares a column with an operand. Right is nil for the unary
// IS NULL and IS NOT NULL operators.
type Comparison struct {
	Op    Op
	Left  ColumnRef
	Right Operand
}

func (*Comparison) predicate() {}

func (c *Comparison) String() string {
	if c.Right == nil {
		return "(" + c.Left.String() + " " + c.Op.String() + ")"
	}
	return "(" + c.Left.String() + " " + c.Op.String() + " " + c.Right.String() + ")"
}

// Logic is the operator of a Connective.
type Logic int

const (
	And Logic = iota
	Or
)

func (l Logic) String() string {
	if l == Or {
		return "OR"
	}
	return "AND"
}

// Connective joins predicates with AND or OR.
type Connective struct {
	Op    Logic
	Terms []Predicate
}

func (*Connective) predicate() {}

func (c *Connective) String() string {
	var out bytes.Buffer
	out.WriteString(c.Op.String() + "[")
	for i, t := range c.Terms {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(t.String())
	}
	out.WriteString("]")
	return out.String()
}

// Not negates a predicate.
type Not struct {
	Term Predicate
}

func (*Not) predicate() {}

func (n *Not) String() string {
	return "NOT[" + n.Term.String() + "]"
}

// Node is a complete statement.
type Node interface {
	node()
	String() string
}

// Join is an INNER JOIN entry of a Select.
type Join struct {
	Table string
	On    Predicate
}

// Select is a SELECT statement.
type Select struct {
	Projection []ColumnRef
	From       string
	Joins      []Join
	Where      Predicate
}

func (*Select) node() {}

// String returns a textual representation of the statement for debugging and
// testing purposes.
func (s *Select) String() string {
	var out bytes.Buffer
	out.WriteString("Select[")
	out.WriteString(fmt.Sprint(s.Projection))
	out.WriteString(" From[" + s.From + "]")
	for _, j := range s.Joins {
		out.WriteString(" Join[" + j.Table + " ")
		if j.On != nil {
			out.WriteString(j.On.String())
		}
		out.WriteString("]")
	}
	if s.Where != nil {
		out.WriteString(" Where[" + s.Where.String() + "]")
	}
	out.WriteString("]")
	return out.String()
}

// Insert is an INSERT statement with one or more rows. Every row holds one
// value per entry of Columns. Returning names a column whose generated value
// is read back on backends that support it.
type Insert struct {
	Table     string
	Columns   []string
	Rows      [][]any
	Returning string
}

func (*Insert) node() {}

func (i *Insert) String() string {
	return fmt.Sprintf("Insert[%s %v %v]", i.Table, i.Columns, i.Rows)
}

// Assignment sets a column in an UPDATE statement.
type Assignment struct {
	Column string
	Value  any
}

// Update is an UPDATE statement.
type Update struct {
	Table string
	Set   []Assignment
	Where Predicate
}

func (*Update) node() {}

func (u *Update) String() string {
	var out bytes.Buffer
	out.WriteString("Update[" + u.Table)
	for _, a := range u.Set {
		out.WriteString(fmt.Sprintf(" %s=%v", a.Column, a.Value))
	}
	if u.Where != nil {
		out.WriteString(" Where[" + u.Where.String() + "]")
	}
	out.WriteString("]")
	return out.String()
}

// Delete is a DELETE statement.
type Delete struct {
	Table string
	Where Predicate
}

func (*Delete) node() {}

func (d *Delete) String() string {
	if d.Where == nil {
		return "Delete[" + d.Table + "]"
	}
	return "Delete[" + d.Table + " Where[" + d.Where.String() + "]]"
}
