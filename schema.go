// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/typedsql/internal/expr"
	"github.com/canonical/typedsql/internal/typeinfo"
)

type propertyKind int

const (
	primaryKey propertyKind = iota + 1
	autoIncrement
	unique
	foreignKey
)

// Property is a constraint attached to a column when it is declared.
type Property struct {
	kind   propertyKind
	target AnyColumn
}

var (
	// PrimaryKey marks the identity column of a table.
	PrimaryKey = Property{kind: primaryKey}
	// AutoIncrement marks a column whose value is assigned by the backend on
	// insert. Only integral types can be auto incremented.
	AutoIncrement = Property{kind: autoIncrement}
	// Unique marks a column whose values are unique in the table.
	Unique = Property{kind: unique}
)

// ForeignKey marks a column referencing target. The table of target must be
// defined before the table of the referencing column.
func ForeignKey(target AnyColumn) Property {
	return Property{kind: foreignKey, target: target}
}

func (p Property) String() string {
	switch p.kind {
	case primaryKey:
		return "PrimaryKey"
	case autoIncrement:
		return "AutoIncrement"
	case unique:
		return "Unique"
	case foreignKey:
		if p.target == nil {
			return "ForeignKey(nil)"
		}
		return "ForeignKey(" + p.target.String() + ")"
	}
	return "Property(invalid)"
}

// AnyColumn is a column of any semantic type. It is implemented by
// *Column[T] only.
type AnyColumn interface {
	// Name returns the column name.
	Name() string
	// Table returns the table owning the column, or nil before the column
	// is passed to [Datastore.DefineTable].
	Table() *Table
	String() string
	info() *columnInfo
}

// columnInfo holds the untyped description of a column shared by the typed
// handles.
type columnInfo struct {
	name  string
	table *Table
	codec *typeinfo.Codec
	props []Property
	// agg is set on the pseudo columns returned by Min and Max. base is
	// then the aggregated column.
	agg  expr.Aggregate
	base *columnInfo
	// err is set if the column could not be declared. It is reported by
	// DefineTable.
	err error
}

func (ci *columnInfo) owner() *Table {
	if ci.base != nil {
		return ci.base.table
	}
	return ci.table
}

func (ci *columnInfo) ref() expr.ColumnRef {
	name := ci.name
	if ci.base != nil {
		name = ci.base.name
	}
	tableName := ""
	if t := ci.owner(); t != nil {
		tableName = t.name
	}
	return expr.ColumnRef{Table: tableName, Column: name, Aggregate: ci.agg}
}

// key identifies the column within a projection.
func (ci *columnInfo) key() string {
	ref := ci.ref()
	if ref.Table == "" {
		ref.Table = "?"
	}
	return ref.String()
}

func (ci *columnInfo) has(kind propertyKind) bool {
	for _, p := range ci.props {
		if p.kind == kind {
			return true
		}
	}
	return false
}

// usable returns an error if the column cannot be referenced by a query.
func (ci *columnInfo) usable() error {
	if ci.err != nil {
		return ci.err
	}
	if ci.owner() == nil {
		return fmt.Errorf("column %q does not belong to a defined table", ci.name)
	}
	return nil
}

// encode encodes a value for this column.
func (ci *columnInfo) encode(v any) (driver.Value, error) {
	if ci.codec == nil {
		return nil, fmt.Errorf("column %s has no codec", ci.key())
	}
	val, err := ci.codec.EncodeValue(v)
	if err != nil {
		return nil, fmt.Errorf("cannot encode value for column %s: %s", ci.key(), err)
	}
	return val, nil
}

// Column is a column holding values of the semantic type T.
type Column[T any] struct {
	c *columnInfo
}

var _ AnyColumn = (*Column[int64])(nil)

// NewColumn declares a column of type T. The codec of T is resolved now; an
// unregistered type is reported when the column is passed to
// [Datastore.DefineTable].
func NewColumn[T any](name string, props ...Property) *Column[T] {
	ci := &columnInfo{name: name, props: append([]Property(nil), props...)}
	codec, err := typeinfo.Lookup(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		ci.err = fmt.Errorf("column %q: %s", name, err)
	}
	ci.codec = codec
	return &Column[T]{c: ci}
}

func (col *Column[T]) info() *columnInfo {
	return col.c
}

// Name returns the column name.
func (col *Column[T]) Name() string {
	return col.c.ref().Column
}

// Table returns the table owning the column.
func (col *Column[T]) Table() *Table {
	return col.c.owner()
}

// String returns the column qualified by its table name, wrapped in the
// aggregate function for aggregate pseudo columns.
func (col *Column[T]) String() string {
	return col.c.key()
}

// Properties returns the properties the column was declared with.
func (col *Column[T]) Properties() []Property {
	return append([]Property(nil), col.c.props...)
}

func (col *Column[T]) IsPrimaryKey() bool    { return col.c.has(primaryKey) }
func (col *Column[T]) IsAutoIncrement() bool { return col.c.has(autoIncrement) }
func (col *Column[T]) IsUnique() bool        { return col.c.has(unique) }

// References returns the target of the foreign key of the column.
func (col *Column[T]) References() (AnyColumn, bool) {
	for _, p := range col.c.props {
		if p.kind == foreignKey {
			return p.target, true
		}
	}
	return nil, false
}

// Min returns a pseudo column selecting the minimum of col. It can be
// projected like any other column.
func (col *Column[T]) Min() *Column[T] {
	return col.aggregate(expr.Min)
}

// Max returns a pseudo column selecting the maximum of col.
func (col *Column[T]) Max() *Column[T] {
	return col.aggregate(expr.Max)
}

func (col *Column[T]) aggregate(agg expr.Aggregate) *Column[T] {
	base := col.c
	if base.base != nil {
		return &Column[T]{c: &columnInfo{
			name: base.name, codec: base.codec, agg: agg, base: base.base,
			err: fmt.Errorf("cannot nest aggregate %s in %s", base.key(), agg),
		}}
	}
	return &Column[T]{c: &columnInfo{name: base.name, codec: base.codec, agg: agg, base: base, err: base.err}}
}

// Set returns the assignment of v to the column, for use in [Insert] and
// [Update].
func (col *Column[T]) Set(v T) Value {
	ci := col.c
	if ci.agg != expr.NoAggregate {
		return Value{c: ci, err: fmt.Errorf("cannot assign to aggregate %s", ci.key())}
	}
	if err := ci.usable(); err != nil {
		return Value{c: ci, err: err}
	}
	val, err := ci.encode(v)
	return Value{c: ci, val: val, err: err}
}

// Value is a column paired with an encoded value.
type Value struct {
	c   *columnInfo
	val driver.Value
	err error
}

// Column returns the name of the assigned column qualified by its table.
func (v Value) Column() string {
	if v.c == nil {
		return ""
	}
	return v.c.key()
}

// Table is a named, ordered collection of columns owned by a datastore.
type Table struct {
	name    string
	ds      *Datastore
	columns []AnyColumn
	byName  map[string]AnyColumn
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) String() string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return t.name + "(" + strings.Join(names, ", ") + ")"
}

// Columns returns the columns of the table in declaration order.
func (t *Table) Columns() []AnyColumn {
	return append([]AnyColumn(nil), t.columns...)
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (AnyColumn, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// PrimaryKey returns the primary key column of the table, if any.
func (t *Table) PrimaryKey() (AnyColumn, bool) {
	for _, c := range t.columns {
		if c.info().has(primaryKey) {
			return c, true
		}
	}
	return nil, false
}

// autoIncrement returns the auto increment column of the table, if any.
func (t *Table) autoIncrement() *columnInfo {
	for _, c := range t.columns {
		if c.info().has(autoIncrement) {
			return c.info()
		}
	}
	return nil
}
