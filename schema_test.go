// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql_test

import (
	"database/sql"
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/typedsql"
)

type SchemaSuite struct{}

var _ = Suite(&SchemaSuite{})

// point has no codec registered.
type point struct {
	X, Y int
}

// newDatastore returns a datastore on an in-memory SQLite DB. Defining
// tables does not touch the DB.
func newDatastore(c *C) *typedsql.Datastore {
	db, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	ds, err := typedsql.NewDatastore(db)
	c.Assert(err, IsNil)
	return ds
}

func (s *SchemaSuite) TestDefineTable(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	id := typedsql.NewColumn[int64]("id", typedsql.PrimaryKey, typedsql.AutoIncrement)
	name := typedsql.NewColumn[string]("name", typedsql.Unique)
	zip := typedsql.NewColumn[string]("zip")
	c.Check(id.Table(), IsNil)
	c.Check(id.String(), Equals, "?.id")

	suppliers, err := ds.DefineTable("suppliers", id, name, zip)
	c.Assert(err, IsNil)
	c.Check(suppliers.Name(), Equals, "suppliers")
	c.Check(suppliers.String(), Equals, "suppliers(id, name, zip)")
	c.Check(suppliers.Columns(), DeepEquals, []typedsql.AnyColumn{id, name, zip})

	c.Check(id.Table(), Equals, suppliers)
	c.Check(id.Name(), Equals, "id")
	c.Check(id.String(), Equals, "suppliers.id")
	c.Check(id.IsPrimaryKey(), Equals, true)
	c.Check(id.IsAutoIncrement(), Equals, true)
	c.Check(id.IsUnique(), Equals, false)
	c.Check(name.IsUnique(), Equals, true)
	c.Check(name.IsPrimaryKey(), Equals, false)

	pk, ok := suppliers.PrimaryKey()
	c.Assert(ok, Equals, true)
	c.Check(pk, Equals, typedsql.AnyColumn(id))

	col, ok := suppliers.Column("zip")
	c.Assert(ok, Equals, true)
	c.Check(col, Equals, typedsql.AnyColumn(zip))
	_, ok = suppliers.Column("street")
	c.Check(ok, Equals, false)

	// Columns returns a copy.
	cols := suppliers.Columns()
	cols[0] = nil
	c.Check(suppliers.Columns()[0], Equals, typedsql.AnyColumn(id))

	supID := typedsql.NewColumn[int64]("sup_id", typedsql.ForeignKey(id))
	coffees, err := ds.DefineTable("coffees", typedsql.NewColumn[string]("name", typedsql.PrimaryKey), supID)
	c.Assert(err, IsNil)
	target, ok := supID.References()
	c.Assert(ok, Equals, true)
	c.Check(target, Equals, typedsql.AnyColumn(id))
	_, ok = zip.References()
	c.Check(ok, Equals, false)

	_, ok = ds.Table("coffees")
	c.Check(ok, Equals, true)
	_, ok = ds.Table("orders")
	c.Check(ok, Equals, false)
	c.Check(ds.Tables(), DeepEquals, []*typedsql.Table{coffees, suppliers})

	ds.Init()
	c.Check(ds.Initialized(), Equals, true)
	ds.Init()
	c.Check(ds.Initialized(), Equals, true)
}

func (s *SchemaSuite) TestTableWithoutPrimaryKey(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	log := ds.MustDefineTable("log", typedsql.NewColumn[string]("line"))
	_, ok := log.PrimaryKey()
	c.Check(ok, Equals, false)
}

func (s *SchemaSuite) TestAggregateColumns(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	price := typedsql.NewColumn[float64]("price")
	ds.MustDefineTable("coffees", price)

	c.Check(price.Min().String(), Equals, "MIN(coffees.price)")
	c.Check(price.Max().String(), Equals, "MAX(coffees.price)")
	c.Check(price.Max().Name(), Equals, "price")
	c.Check(price.Max().Table(), Equals, price.Table())

	v := price.Max().Set(1.5)
	c.Check(typedsql.Update(v).Err(), ErrorMatches, `update: cannot assign to aggregate MAX\(coffees.price\)`)

	c.Check(typedsql.Select(price.Max().Min()).From(price.Table()).Err(), ErrorMatches,
		`cannot nest aggregate MAX\(coffees.price\) in MIN`)
}

func (s *SchemaSuite) TestPropertyString(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	id := typedsql.NewColumn[int64]("id")
	ds.MustDefineTable("suppliers", id)

	c.Check(typedsql.PrimaryKey.String(), Equals, "PrimaryKey")
	c.Check(typedsql.AutoIncrement.String(), Equals, "AutoIncrement")
	c.Check(typedsql.Unique.String(), Equals, "Unique")
	c.Check(typedsql.ForeignKey(id).String(), Equals, "ForeignKey(suppliers.id)")
	c.Check(typedsql.ForeignKey(nil).String(), Equals, "ForeignKey(nil)")
	c.Check(typedsql.Property{}.String(), Equals, "Property(invalid)")

	props := typedsql.NewColumn[string]("name", typedsql.Unique, typedsql.PrimaryKey).Properties()
	c.Check(props, DeepEquals, []typedsql.Property{typedsql.Unique, typedsql.PrimaryKey})
}

func (s *SchemaSuite) TestDefineTableErrors(c *C) {
	other := newDatastore(c)
	defer other.PlainDB().Close()
	foreignID := typedsql.NewColumn[int64]("id")
	other.MustDefineTable("elsewhere", foreignID)

	var tests = []struct {
		summary string
		define  func(ds *typedsql.Datastore) error
		err     string
	}{{
		summary: "empty table name",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("", typedsql.NewColumn[int64]("id"))
			return err
		},
		err: `cannot define table "": empty table name`,
	}, {
		summary: "no columns",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t")
			return err
		},
		err: `cannot define table "t": no columns`,
	}, {
		summary: "nil column",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("id"), nil)
			return err
		},
		err: `cannot define table "t": column 1 is nil`,
	}, {
		summary: "empty column name",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64](""))
			return err
		},
		err: `cannot define table "t": column 0 has no name`,
	}, {
		summary: "unregistered type",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[point]("p"))
			return err
		},
		err: `cannot define table "t": column "p": no codec registered for type typedsql_test.point, have: .*`,
	}, {
		summary: "duplicate column",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("a"), typedsql.NewColumn[string]("a"))
			return err
		},
		err: `cannot define table "t": duplicate column "a"`,
	}, {
		summary: "two primary keys",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t",
				typedsql.NewColumn[int64]("a", typedsql.PrimaryKey),
				typedsql.NewColumn[int64]("b", typedsql.PrimaryKey),
			)
			return err
		},
		err: `cannot define table "t": more than one primary key: "a" and "b"`,
	}, {
		summary: "two auto increment columns",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t",
				typedsql.NewColumn[int64]("a", typedsql.AutoIncrement),
				typedsql.NewColumn[int64]("b", typedsql.AutoIncrement),
			)
			return err
		},
		err: `cannot define table "t": 2 auto increment columns, at most one allowed`,
	}, {
		summary: "auto increment text",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[string]("name", typedsql.AutoIncrement))
			return err
		},
		err: `cannot define table "t": column "name" of type string cannot be auto incremented`,
	}, {
		summary: "foreign key to an unregistered column",
		define: func(ds *typedsql.Datastore) error {
			target := typedsql.NewColumn[int64]("id")
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("ref", typedsql.ForeignKey(target)))
			return err
		},
		err: `cannot define table "t": foreign key of column "ref" references unregistered column "id"`,
	}, {
		summary: "foreign key to another datastore",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("ref", typedsql.ForeignKey(foreignID)))
			return err
		},
		err: `cannot define table "t": foreign key of column "ref" references column elsewhere.id of another datastore`,
	}, {
		summary: "foreign key without target",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("ref", typedsql.ForeignKey(nil)))
			return err
		},
		err: `cannot define table "t": foreign key of column "ref" has no target`,
	}, {
		summary: "column of another table",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", foreignID)
			return err
		},
		err: `cannot define table "t": column "id" already belongs to table "elsewhere"`,
	}, {
		summary: "aggregate column",
		define: func(ds *typedsql.Datastore) error {
			_, err := ds.DefineTable("t", foreignID.Max())
			return err
		},
		err: `cannot define table "t": aggregate MAX\(elsewhere.id\) cannot be a table column`,
	}, {
		summary: "table defined twice",
		define: func(ds *typedsql.Datastore) error {
			ds.MustDefineTable("t", typedsql.NewColumn[int64]("id"))
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("id"))
			return err
		},
		err: `cannot define table "t": table already defined`,
	}, {
		summary: "datastore initialized",
		define: func(ds *typedsql.Datastore) error {
			ds.Init()
			_, err := ds.DefineTable("t", typedsql.NewColumn[int64]("id"))
			return err
		},
		err: `cannot define table "t": datastore already initialized`,
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		ds := newDatastore(c)
		err := test.define(ds)
		c.Check(err, ErrorMatches, test.err)
		c.Check(errors.Is(err, typedsql.ErrSchema), Equals, true)
		var schemaErr *typedsql.SchemaError
		c.Check(errors.As(err, &schemaErr), Equals, true)
		ds.PlainDB().Close()
	}
}

func (s *SchemaSuite) TestFailedDefinitionClaimsNothing(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	id := typedsql.NewColumn[int64]("id")
	_, err := ds.DefineTable("t", id, typedsql.NewColumn[int64]("id"))
	c.Assert(err, ErrorMatches, `cannot define table "t": duplicate column "id"`)
	c.Check(id.Table(), IsNil)
	_, ok := ds.Table("t")
	c.Check(ok, Equals, false)

	// The column can still be used in a valid table.
	t, err := ds.DefineTable("t", id)
	c.Assert(err, IsNil)
	c.Check(id.Table(), Equals, t)
}

func (s *SchemaSuite) TestMustDefineTablePanics(c *C) {
	ds := newDatastore(c)
	defer ds.PlainDB().Close()

	c.Check(func() { ds.MustDefineTable("t") }, PanicMatches, `cannot define table "t": no columns`)
}

func (s *SchemaSuite) TestNewDatastoreErrors(c *C) {
	_, err := typedsql.NewDatastore(nil)
	c.Check(err, ErrorMatches, "cannot create datastore: nil DB")

	db, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	defer db.Close()

	_, err = typedsql.NewDatastore(db, typedsql.WithDialect("oracle"))
	c.Check(err, ErrorMatches, `cannot create datastore: .*oracle.*`)

	_, err = typedsql.NewDatastore(db, typedsql.WithLogger(nil))
	c.Check(err, ErrorMatches, "cannot create datastore: nil logger")

	ds, err := typedsql.NewDatastore(db)
	c.Assert(err, IsNil)
	c.Check(ds.Dialect(), Equals, "sqlite3")
	c.Check(ds.PlainDB(), Equals, db)
	// The DB belongs to the caller.
	c.Check(ds.Close(), IsNil)
	c.Check(db.Ping(), IsNil)

	ds, err = typedsql.NewDatastore(db, typedsql.WithDialect("postgres"))
	c.Assert(err, IsNil)
	c.Check(ds.Dialect(), Equals, "postgres")
}
