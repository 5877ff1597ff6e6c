// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command typedsql-demo creates a small coffee shop database, fills it in a
// transaction and prints a few queries over it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/canonical/typedsql"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	driver     string
	dsn        string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "typedsql-demo",
		Short:        "Run typed queries against a sample coffee shop database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := typedsql.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("driver") {
				cfg.Driver = opts.driver
			}
			if flags.Changed("dsn") {
				cfg.DSN = opts.dsn
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path of a YAML configuration file")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "database/sql driver name (sqlite3, mysql or postgres)")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "data source name passed to the driver")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "one of debug, info, warn or error")
	return cmd
}

// shop is the schema of the demo.
type shop struct {
	suppliers *typedsql.Table
	supID     *typedsql.Column[int64]
	supName   *typedsql.Column[string]
	city      *typedsql.Column[string]

	coffees  *typedsql.Table
	cofName  *typedsql.Column[string]
	cofSupID *typedsql.Column[int64]
	price    *typedsql.Column[float64]
}

func defineShop(ds *typedsql.Datastore) (*shop, error) {
	s := &shop{
		supID:   typedsql.NewColumn[int64]("id", typedsql.PrimaryKey, typedsql.AutoIncrement),
		supName: typedsql.NewColumn[string]("name", typedsql.Unique),
		city:    typedsql.NewColumn[string]("city"),
		cofName: typedsql.NewColumn[string]("name", typedsql.PrimaryKey),
		price:   typedsql.NewColumn[float64]("price"),
	}
	s.cofSupID = typedsql.NewColumn[int64]("sup_id", typedsql.ForeignKey(s.supID))
	var err error
	if s.suppliers, err = ds.DefineTable("suppliers", s.supID, s.supName, s.city); err != nil {
		return nil, err
	}
	if s.coffees, err = ds.DefineTable("coffees", s.cofName, s.cofSupID, s.price); err != nil {
		return nil, err
	}
	return s, nil
}

// createTables returns the DDL of the demo tables in the dialect of the
// datastore.
func createTables(dialect string) []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch dialect {
	case "postgres":
		id = "SERIAL PRIMARY KEY"
	case "mysql":
		id = "INTEGER AUTO_INCREMENT PRIMARY KEY"
	}
	return []string{
		"DROP TABLE IF EXISTS coffees",
		"DROP TABLE IF EXISTS suppliers",
		"CREATE TABLE suppliers (id " + id + ", name VARCHAR(64) NOT NULL UNIQUE, city VARCHAR(64))",
		"CREATE TABLE coffees (name VARCHAR(64) PRIMARY KEY, sup_id INTEGER NOT NULL REFERENCES suppliers(id), price REAL NOT NULL)",
	}
}

func run(ctx context.Context, cfg *typedsql.Config, out io.Writer) error {
	ds, err := typedsql.Open(cfg)
	if err != nil {
		return err
	}
	defer ds.Close()

	for _, stmt := range createTables(ds.Dialect()) {
		if _, err := ds.PlainDB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot create tables: %w", err)
		}
	}
	s, err := defineShop(ds)
	if err != nil {
		return err
	}

	err = ds.RunTx(ctx, nil, func(ctx context.Context) error {
		type coffee struct {
			name  string
			price float64
		}
		suppliers := []struct {
			name, city string
			coffees    []coffee
		}{
			{"Acme, Inc.", "Groundsville", []coffee{{"Colombian", 7.99}, {"Colombian Decaf", 8.99}}},
			{"Superior Coffee", "Mendocino", []coffee{{"French Roast", 8.99}, {"French Roast Decaf", 9.99}}},
			{"The High Ground", "Meadows", []coffee{{"Espresso", 9.99}, {"House Blend", 6.99}}},
		}
		for _, sup := range suppliers {
			outcome, err := typedsql.Insert(s.supName.Set(sup.name), s.city.Set(sup.city)).Exec(ctx)
			if err != nil {
				return err
			}
			key := outcome.Keys[0]
			if key == typedsql.NoKey {
				row, err := typedsql.Select(s.supID).From(s.suppliers).Where(s.supName.Equals(sup.name)).One(ctx)
				if err != nil {
					return err
				}
				key = typedsql.MustGet(row, s.supID)
			}
			var rows [][]any
			for _, c := range sup.coffees {
				rows = append(rows, []any{c.name, key, c.price})
			}
			if _, err := typedsql.InsertIntoBatch(s.coffees, rows...).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return ds.Run(ctx, func(ctx context.Context) error {
		cheap, err := typedsql.Select(s.cofName, s.supName).
			From(s.coffees).
			InnerJoin(s.suppliers).On(s.cofSupID.EqualsColumn(s.supID)).
			Where(s.price.LessThan(9)).
			And(s.city.NotEquals("Meadows")).
			All(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "coffees under 9.00: %d\n", len(cheap))
		for _, row := range cheap {
			coffee, supplier, err := typedsql.Tuple2(row, s.cofName, s.supName)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s from %s\n", coffee, supplier)
		}

		row, err := typedsql.Select(s.price.Min(), s.price.Max()).From(s.coffees).One(ctx)
		if err != nil {
			return err
		}
		lowest, highest, err := typedsql.Tuple2(row, s.price.Min(), s.price.Max())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "prices range from %.2f to %.2f\n", lowest, highest)
		return nil
	})
}
