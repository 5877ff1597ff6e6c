/*
Package typedsql is a typed query builder and executor for SQL databases.

Tables and columns are declared once, in Go, with the type of the values each column holds.
Queries are then built from those declarations instead of SQL strings, so that column references, predicate operands and result shapes are checked by the Go compiler or, at the latest, when the query is built.
Queries run inside sessions, which bind all the work of a logical flow to a single connection and release it when the flow is done.

# Schema

Columns are declared with their Go type and a set of properties, then grouped into tables owned by a [Datastore]:

	ds, err := typedsql.NewDatastore(db)

	supplierID := typedsql.NewColumn[int64]("id", typedsql.PrimaryKey, typedsql.AutoIncrement)
	supplierName := typedsql.NewColumn[string]("name", typedsql.Unique)
	suppliers := ds.MustDefineTable("suppliers", supplierID, supplierName)

	coffeeName := typedsql.NewColumn[string]("name", typedsql.PrimaryKey)
	coffeeSupplier := typedsql.NewColumn[int64]("supplier_id", typedsql.ForeignKey(supplierID))
	coffeePrice := typedsql.NewColumn[float64]("price")
	coffees := ds.MustDefineTable("coffees", coffeeName, coffeeSupplier, coffeePrice)

The type of a column must have a registered [Codec]. The types int, int32, int64, float64, string, bool, []byte and time.Time are registered by default; others are added with [RegisterType].
Definition errors match [ErrSchema]. The schema is frozen by [Datastore.Init] or by the first session.

Creating the tables in the database is left to the application.

# Queries

Queries are immutable values. Each builder method returns a new query:

	q := typedsql.Select(coffeeName, supplierName).
		From(coffees).
		InnerJoin(suppliers).On(coffeeSupplier.EqualsColumn(supplierID)).
		Where(coffeePrice.LessThan(10))

	ins := typedsql.Insert(supplierName.Set("Acme")).And(supplierName.Set("Superior"))

	upd := typedsql.Update(coffeePrice.Set(9.5)).Where(coffeeName.Equals("Colombian"))

Errors found while building a query are recorded on it and returned by its Err method, and by its terminal method before anything is sent to the database.

# Sessions

A session is opened with [InSession] or [InTransaction] and carried by the context passed to the body:

	names, err := typedsql.InSession(ctx, ds, func(ctx context.Context) ([]string, error) {
		rows, err := typedsql.Select(coffeeName).From(coffees).All(ctx)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, row := range rows {
			names = append(names, typedsql.MustGet(row, coffeeName))
		}
		return names, nil
	})

Sessions nest: a scope opened with a context that already carries a session of the same datastore joins it.
The connection of a session is acquired when the first statement runs and is released, along with every prepared statement and open [Result], when the outermost scope ends.
A transactional session commits when its body returns without error and rolls back otherwise.

Results are valid only while their session is open; [Result.All] and [SelectQuery.All] copy the rows out of the session.
*/
package typedsql
