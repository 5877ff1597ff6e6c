// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql_test

import (
	. "gopkg.in/check.v1"

	"github.com/canonical/typedsql"
)

type QuerySuite struct{}

var _ = Suite(&QuerySuite{})

func (s *QuerySuite) TestPredicateString(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	var tests = []struct {
		summary  string
		pred     typedsql.Predicate
		expected string
	}{{
		summary:  "comparison",
		pred:     shop.supID.Equals(101),
		expected: "(suppliers.id = Param[101])",
	}, {
		summary:  "float comparison",
		pred:     shop.price.LessOrEqual(9.5),
		expected: "(coffees.price <= Param[9.5])",
	}, {
		summary:  "column comparison",
		pred:     shop.cofSupID.EqualsColumn(shop.supID),
		expected: "(coffees.sup_id = suppliers.id)",
	}, {
		summary:  "in",
		pred:     shop.supID.In(49, 101),
		expected: "(suppliers.id IN List[49 101])",
	}, {
		summary:  "is null",
		pred:     shop.zip.IsNull(),
		expected: "(suppliers.zip IS NULL)",
	}, {
		summary:  "nested conjunctions are flattened",
		pred:     typedsql.And(shop.sales.GreaterThan(0), typedsql.And(shop.total.LessThan(10), shop.price.NotEquals(1))),
		expected: "AND[(coffees.sales > Param[0]) (coffees.total < Param[10]) (coffees.price <> Param[1])]",
	}, {
		summary:  "method form",
		pred:     shop.sales.GreaterOrEqual(1).Or(shop.total.IsNotNull()),
		expected: "OR[(coffees.sales >= Param[1]) (coffees.total IS NOT NULL)]",
	}, {
		summary:  "mixed connectives",
		pred:     typedsql.Or(shop.cofName.Equals("Espresso"), typedsql.Not(shop.sales.Equals(0)).And(shop.total.Equals(0))),
		expected: "OR[(coffees.name = Param[Espresso]) AND[NOT[(coffees.sales = Param[0])] (coffees.total = Param[0])]]",
	}, {
		summary:  "single term",
		pred:     typedsql.And(shop.zip.IsNotNull()),
		expected: "(suppliers.zip IS NOT NULL)",
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		c.Check(test.pred.Err(), IsNil)
		c.Check(test.pred.String(), Equals, test.expected)
	}
}

func (s *QuerySuite) TestPredicateErrors(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	var tests = []struct {
		summary string
		pred    typedsql.Predicate
		err     string
	}{{
		summary: "zero predicate",
		pred:    typedsql.Predicate{},
		err:     "empty predicate",
	}, {
		summary: "empty in",
		pred:    shop.supID.In(),
		err:     "suppliers.id IN needs at least one value",
	}, {
		summary: "aggregate",
		pred:    shop.price.Max().GreaterThan(1),
		err:     `aggregate MAX\(coffees.price\) cannot be used in a predicate`,
	}, {
		summary: "empty conjunction",
		pred:    typedsql.And(),
		err:     "AND of no predicates",
	}, {
		summary: "invalid term",
		pred:    typedsql.Or(shop.supID.Equals(1), typedsql.Predicate{}),
		err:     "OR term 1: empty predicate",
	}, {
		summary: "negated invalid predicate",
		pred:    typedsql.Not(shop.supID.In()),
		err:     "suppliers.id IN needs at least one value",
	}, {
		summary: "nil column",
		pred:    shop.supID.EqualsColumn(nil),
		err:     "cannot compare suppliers.id with nil column",
	}, {
		summary: "undefined column",
		pred:    typedsql.NewColumn[int64]("id").Equals(1),
		err:     `column "id" does not belong to a defined table`,
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		c.Check(test.pred.Err(), ErrorMatches, test.err)
		c.Check(test.pred.String(), Equals, "<invalid predicate>")
	}
}

func (s *QuerySuite) TestSelectString(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	q := typedsql.Select(shop.cofName, shop.supName).
		From(shop.coffees).
		InnerJoin(shop.suppliers).On(shop.cofSupID.EqualsColumn(shop.supID)).
		Where(shop.price.LessThan(9))
	c.Assert(q.Err(), IsNil)
	c.Check(q.String(), Equals,
		"Select[[coffees.name suppliers.name] From[coffees] Join[suppliers (coffees.sup_id = suppliers.id)] Where[(coffees.price < Param[9])]]")

	agg := typedsql.Select(shop.price.Min(), shop.price.Max()).From(shop.coffees)
	c.Check(agg.String(), Equals, "Select[[MIN(coffees.price) MAX(coffees.price)] From[coffees]]")
}

func (s *QuerySuite) TestQueriesAreImmutable(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	base := typedsql.Select(shop.supName).From(shop.suppliers)
	byID := base.Where(shop.supID.Equals(1))
	byCity := base.Where(shop.city.Equals("Mendocino"))
	both := byID.And(shop.city.Equals("Mendocino")).Where(shop.zip.IsNotNull())

	c.Check(base.String(), Equals, "Select[[suppliers.name] From[suppliers]]")
	c.Check(byID.String(), Equals, "Select[[suppliers.name] From[suppliers] Where[(suppliers.id = Param[1])]]")
	c.Check(byCity.String(), Equals, "Select[[suppliers.name] From[suppliers] Where[(suppliers.city = Param[Mendocino])]]")
	c.Check(both.String(), Equals,
		"Select[[suppliers.name] From[suppliers] Where[AND[(suppliers.id = Param[1]) (suppliers.city = Param[Mendocino]) (suppliers.zip IS NOT NULL)]]]")

	// Extending a query with joins does not alter the original.
	joined := typedsql.Select(shop.cofName).From(shop.coffees)
	withSup := joined.InnerJoin(shop.suppliers).On(shop.cofSupID.EqualsColumn(shop.supID))
	c.Check(joined.String(), Equals, "Select[[coffees.name] From[coffees]]")
	c.Check(withSup.String(), Equals, "Select[[coffees.name] From[coffees] Join[suppliers (coffees.sup_id = suppliers.id)]]")

	ins := typedsql.Insert(shop.supName.Set("Acme, Inc."), shop.zip.Set("95199"))
	more := ins.And(shop.zip.Set("10036"), shop.supName.Set("Superior Coffee"))
	c.Check(ins.Len(), Equals, 1)
	c.Check(more.Len(), Equals, 2)
	c.Check(ins.String(), Equals, "Insert[suppliers [name zip] [[Acme, Inc. 95199]]]")
	c.Check(more.String(), Equals, "Insert[suppliers [name zip] [[Acme, Inc. 95199] [Superior Coffee 10036]]]")

	upd := typedsql.Update(shop.supName.Set("The High Ground"))
	updOne := upd.Where(shop.supID.Equals(49))
	c.Check(upd.String(), Equals, "Update[suppliers name=The High Ground]")
	c.Check(updOne.String(), Equals, "Update[suppliers name=The High Ground Where[(suppliers.id = Param[49])]]")

	del := typedsql.Delete(shop.coffees)
	delSome := del.Where(shop.sales.Equals(0))
	c.Check(del.String(), Equals, "Delete[coffees]")
	c.Check(delSome.String(), Equals, "Delete[coffees Where[(coffees.sales = Param[0])]]")
}

func (s *QuerySuite) TestPositionalInsert(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	withoutKey := typedsql.InsertInto(shop.suppliers, "Acme, Inc.", "99 Market Street", "Groundsville", "CA", "95199")
	c.Assert(withoutKey.Err(), IsNil)
	c.Check(withoutKey.String(), Equals,
		"Insert[suppliers [name street city state zip] [[Acme, Inc. 99 Market Street Groundsville CA 95199]]]")

	withKey := typedsql.InsertIntoBatch(shop.coffees,
		[]any{"Colombian", int64(101), 7.99, 0, 0},
		[]any{"Espresso", int64(150), 9.99, 0, 0},
	)
	c.Assert(withKey.Err(), IsNil)
	c.Check(withKey.Len(), Equals, 2)
	c.Check(withKey.String(), Equals,
		"Insert[coffees [name sup_id price sales total] [[Colombian 101 7.99 0 0] [Espresso 150 9.99 0 0]]]")
}

func (s *QuerySuite) TestQueryErrors(c *C) {
	shop := newCoffeeShop(c)
	defer shop.close()

	other := newDatastore(c)
	defer other.PlainDB().Close()
	otherID := typedsql.NewColumn[int64]("id")
	elsewhere := other.MustDefineTable("elsewhere", otherID)

	var tests = []struct {
		summary string
		query   interface {
			Err() error
			String() string
		}
		err string
	}{{
		summary: "empty projection",
		query:   typedsql.Select().From(shop.suppliers),
		err:     "empty projection",
	}, {
		summary: "nil projection item",
		query:   typedsql.Select(shop.supName, nil).From(shop.suppliers),
		err:     "projection item 1 is nil",
	}, {
		summary: "no source table",
		query:   typedsql.Select(shop.supName).From(nil),
		err:     "no source table",
	}, {
		summary: "column not in query",
		query:   typedsql.Select(shop.cofName).From(shop.suppliers),
		err:     "column coffees.name is not from a table in the query",
	}, {
		summary: "join without condition",
		query:   typedsql.Select(shop.cofName).From(shop.coffees).InnerJoin(shop.suppliers).On(typedsql.Predicate{}),
		err:     "join with suppliers has no condition",
	}, {
		summary: "join with invalid condition",
		query:   typedsql.Select(shop.cofName).From(shop.coffees).InnerJoin(shop.suppliers).On(shop.supID.In()),
		err:     "join with suppliers: suppliers.id IN needs at least one value",
	}, {
		summary: "self join",
		query:   typedsql.Select(shop.supName).From(shop.suppliers).InnerJoin(shop.suppliers).On(shop.supID.EqualsColumn(shop.supID)),
		err:     "table suppliers appears more than once in query",
	}, {
		summary: "join with a table of another datastore",
		query:   typedsql.Select(shop.supName).From(shop.suppliers).InnerJoin(elsewhere).On(otherID.EqualsColumn(otherID)),
		err:     "table elsewhere belongs to another datastore",
	}, {
		summary: "projection from another datastore",
		query:   typedsql.Select(otherID).From(shop.suppliers),
		err:     "column elsewhere.id is not from a table in the query",
	}, {
		summary: "filter on a table outside the query",
		query:   typedsql.Select(shop.supName).From(shop.suppliers).Where(shop.cofName.Equals("Espresso")),
		err:     `filter \(coffees.name = Param\[Espresso\]\) references table coffees which is not in the query`,
	}, {
		summary: "invalid filter",
		query:   typedsql.Select(shop.supName).From(shop.suppliers).Where(shop.supName.In()),
		err:     "invalid filter: suppliers.name IN needs at least one value",
	}, {
		summary: "first error wins",
		query:   typedsql.Select(shop.supName).From(shop.suppliers).Where(typedsql.Predicate{}).Where(shop.supID.In()),
		err:     "invalid filter: empty predicate",
	}, {
		summary: "insert without values",
		query:   typedsql.Insert(),
		err:     "insert row 0 has no values",
	}, {
		summary: "batch insert without rows",
		query:   typedsql.InsertBatch(),
		err:     "insert of no rows",
	}, {
		summary: "insert into two tables",
		query:   typedsql.Insert(shop.supName.Set("Acme, Inc."), shop.cofName.Set("Espresso")),
		err:     "insert row 0: column coffees.name is not from table suppliers",
	}, {
		summary: "insert assigning a column twice",
		query:   typedsql.Insert(shop.supName.Set("Acme, Inc."), shop.supName.Set("Acme")),
		err:     "insert row 0: column suppliers.name assigned more than once",
	}, {
		summary: "insert rows of different length",
		query:   typedsql.Insert(shop.supName.Set("Acme, Inc."), shop.zip.Set("95199")).And(shop.supName.Set("Acme")),
		err:     "insert row 1 has 1 values, expected 2",
	}, {
		summary: "insert rows with different columns",
		query:   typedsql.Insert(shop.supName.Set("Acme, Inc."), shop.zip.Set("95199")).And(shop.supName.Set("Acme"), shop.city.Set("Groundsville")),
		err:     "insert row 1 does not assign column suppliers.zip",
	}, {
		summary: "insert with a zero value",
		query:   typedsql.Insert(typedsql.Value{}),
		err:     "insert row 0: zero Value",
	}, {
		summary: "insert of an undefined column",
		query:   typedsql.Insert(typedsql.NewColumn[string]("name").Set("Acme")),
		err:     `insert row 0: column "name" does not belong to a defined table`,
	}, {
		summary: "positional insert with too few values",
		query:   typedsql.InsertInto(shop.suppliers, "Acme, Inc."),
		err:     "insert into suppliers has 1 values, expected 6 or 5 without id",
	}, {
		summary: "positional insert without auto increment",
		query:   typedsql.InsertInto(shop.coffees, "Espresso"),
		err:     "insert into coffees has 1 values, expected 5",
	}, {
		summary: "positional insert of the wrong type",
		query:   typedsql.InsertInto(shop.coffees, "Espresso", 150, 9.99, 0, 0),
		err:     "insert row 0: cannot encode value for column coffees.sup_id: need int64, got int",
	}, {
		summary: "positional insert of rows of different length",
		query:   typedsql.InsertIntoBatch(shop.coffees, []any{"Espresso", int64(150), 9.99, 0, 0}, []any{"Colombian"}),
		err:     "insert row 1 has 1 values, expected 5",
	}, {
		summary: "positional insert into nil table",
		query:   typedsql.InsertInto(nil, "Espresso"),
		err:     "insert into nil table",
	}, {
		summary: "positional insert extended with values",
		query:   typedsql.InsertInto(shop.suppliers, "Acme, Inc.", "", "", "", "").And(shop.supName.Set("Acme")),
		err:     "positional insert into suppliers cannot be extended with column values",
	}, {
		summary: "update without values",
		query:   typedsql.Update(),
		err:     "update sets no columns",
	}, {
		summary: "update of two tables",
		query:   typedsql.Update(shop.supName.Set("Acme"), shop.sales.Set(1)),
		err:     "update: column coffees.sales is not from table suppliers",
	}, {
		summary: "update filtered on another table",
		query:   typedsql.Update(shop.supName.Set("Acme")).Where(shop.cofName.Equals("Espresso")),
		err:     `filter \(coffees.name = Param\[Espresso\]\) references table coffees which is not in the query`,
	}, {
		summary: "delete from nil table",
		query:   typedsql.Delete(nil),
		err:     "delete from nil table",
	}, {
		summary: "delete filtered on another table",
		query:   typedsql.Delete(shop.coffees).Where(shop.supID.Equals(49)),
		err:     `filter \(suppliers.id = Param\[49\]\) references table suppliers which is not in the query`,
	}}

	for i, test := range tests {
		c.Logf("test %d: %s", i, test.summary)
		c.Check(test.query.Err(), ErrorMatches, test.err)
		c.Check(test.query.String(), Matches, `<invalid query: .*>`)
	}
}
