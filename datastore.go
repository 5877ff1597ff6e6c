// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/canonical/typedsql/internal/dialect"
	"github.com/canonical/typedsql/internal/expr"
)

// Datastore is the registry of the tables of an application together with
// the backend they live in. Tables are defined until the datastore is
// initialised; afterwards it is read only and safe for concurrent use.
type Datastore struct {
	// db is the underlying database/sql DB object.
	db      *sql.DB
	ownsDB  bool
	dialect dialect.Dialect
	logger  *slog.Logger

	// mutex guards the schema while tables are being defined.
	mutex       sync.RWMutex
	tables      []*Table
	byName      map[string]*Table
	initialized bool

	sessionIDCount int64
}

// Option configures a [Datastore].
type Option func(*Datastore) error

// WithDialect selects the dialect by name instead of detecting it from the
// driver of the DB.
func WithDialect(name string) Option {
	return func(ds *Datastore) error {
		d, err := dialect.ForName(name)
		if err != nil {
			return err
		}
		ds.dialect = d
		return nil
	}
}

// WithLogger sets the logger used for debug output and cleanup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(ds *Datastore) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		ds.logger = logger
		return nil
	}
}

// NewDatastore creates a new [Datastore] on a [sql.DB]. The caller keeps
// ownership of db.
func NewDatastore(db *sql.DB, opts ...Option) (*Datastore, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot create datastore: nil DB")
	}
	ds := &Datastore{
		db:     db,
		logger: slog.Default(),
		byName: map[string]*Table{},
	}
	for _, opt := range opts {
		if err := opt(ds); err != nil {
			return nil, fmt.Errorf("cannot create datastore: %w", err)
		}
	}
	if ds.dialect == nil {
		ds.dialect = dialect.Detect(db.Driver())
	}
	return ds, nil
}

// PlainDB returns the underlying database object.
func (ds *Datastore) PlainDB() *sql.DB {
	return ds.db
}

// Dialect returns the name of the backend dialect.
func (ds *Datastore) Dialect() string {
	return ds.dialect.Name()
}

// Close closes the underlying DB if it was opened by [Open].
func (ds *Datastore) Close() error {
	if !ds.ownsDB {
		return nil
	}
	return ds.db.Close()
}

// DefineTable registers a table made of the given columns, in order. The
// columns become owned by the table. On error nothing is registered and the
// error matches [ErrSchema].
func (ds *Datastore) DefineTable(name string, columns ...AnyColumn) (*Table, error) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if ds.initialized {
		return nil, schemaErrorf(name, "datastore already initialized")
	}
	if name == "" {
		return nil, schemaErrorf(name, "empty table name")
	}
	if _, ok := ds.byName[name]; ok {
		return nil, schemaErrorf(name, "table already defined")
	}
	if len(columns) == 0 {
		return nil, schemaErrorf(name, "no columns")
	}

	t := &Table{name: name, ds: ds, byName: map[string]AnyColumn{}}
	var pk string
	for i, col := range columns {
		if col == nil || col.info() == nil {
			return nil, schemaErrorf(name, "column %d is nil", i)
		}
		ci := col.info()
		if ci.err != nil {
			return nil, schemaErrorf(name, "%s", ci.err)
		}
		if ci.base != nil {
			return nil, schemaErrorf(name, "aggregate %s cannot be a table column", ci.key())
		}
		if ci.table != nil {
			return nil, schemaErrorf(name, "column %q already belongs to table %q", ci.name, ci.table.name)
		}
		if ci.name == "" {
			return nil, schemaErrorf(name, "column %d has no name", i)
		}
		if _, ok := t.byName[ci.name]; ok {
			return nil, schemaErrorf(name, "duplicate column %q", ci.name)
		}
		for _, p := range ci.props {
			switch p.kind {
			case primaryKey:
				if pk != "" {
					return nil, schemaErrorf(name, "more than one primary key: %q and %q", pk, ci.name)
				}
				pk = ci.name
			case autoIncrement:
				if !ci.codec.Integral {
					return nil, schemaErrorf(name, "column %q of type %s cannot be auto incremented", ci.name, ci.codec.Name)
				}
			case foreignKey:
				if err := ds.checkReference(ci, p.target); err != nil {
					return nil, schemaErrorf(name, "%s", err)
				}
			}
		}
		t.columns = append(t.columns, col)
		t.byName[ci.name] = col
	}
	if n := countAutoIncrement(t); n > 1 {
		return nil, schemaErrorf(name, "%d auto increment columns, at most one allowed", n)
	}

	// Only claim the columns once the whole table is valid.
	for _, col := range t.columns {
		col.info().table = t
	}
	ds.tables = append(ds.tables, t)
	ds.byName[name] = t
	return t, nil
}

// MustDefineTable is the same as [Datastore.DefineTable] except that it
// panics on error.
func (ds *Datastore) MustDefineTable(name string, columns ...AnyColumn) *Table {
	t, err := ds.DefineTable(name, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// checkReference checks that the target of a foreign key is a column of a
// table already defined in ds.
func (ds *Datastore) checkReference(ci *columnInfo, target AnyColumn) error {
	if target == nil || target.info() == nil {
		return fmt.Errorf("foreign key of column %q has no target", ci.name)
	}
	ti := target.info()
	if ti.base != nil {
		return fmt.Errorf("foreign key of column %q references aggregate %s", ci.name, ti.key())
	}
	if ti.table == nil {
		return fmt.Errorf("foreign key of column %q references unregistered column %q", ci.name, ti.name)
	}
	if ti.table.ds != ds {
		return fmt.Errorf("foreign key of column %q references column %s of another datastore", ci.name, ti.key())
	}
	return nil
}

func countAutoIncrement(t *Table) int {
	n := 0
	for _, c := range t.columns {
		if c.info().has(autoIncrement) {
			n++
		}
	}
	return n
}

// Init freezes the schema. Opening the first session initialises the
// datastore implicitly. Init may be called more than once.
func (ds *Datastore) Init() {
	ds.mutex.Lock()
	ds.initialized = true
	ds.mutex.Unlock()
}

// Initialized reports whether the schema is frozen.
func (ds *Datastore) Initialized() bool {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.initialized
}

// Table returns the table with the given name.
func (ds *Datastore) Table(name string) (*Table, bool) {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	t, ok := ds.byName[name]
	return t, ok
}

// Tables returns the tables of the datastore sorted by name.
func (ds *Datastore) Tables() []*Table {
	ds.mutex.RLock()
	tables := append([]*Table(nil), ds.tables...)
	ds.mutex.RUnlock()
	sort.Slice(tables, func(i, j int) bool { return tables[i].name < tables[j].name })
	return tables
}

// compile generates the SQL of a statement in the dialect of ds.
func (ds *Datastore) compile(n expr.Node) (*expr.Statement, error) {
	return expr.Compile(ds.dialect, n)
}

func (ds *Datastore) nextSessionID() int64 {
	return atomic.AddInt64(&ds.sessionIDCount, 1)
}
