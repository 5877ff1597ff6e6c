// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// monitors the opening and closing of connections and prepared statements.
// We later use that information to check that sessions acquire at most one
// connection and leak neither connections nor statements.

// openedConns and closedConns count the physical connections opened and
// closed, indexed by test case.
var openedConns = map[string]int{}
var closedConns = map[string]int{}
var connRegistryMutex sync.RWMutex

// openedStmts and closedStmts store the pointers to the created/closed
// statements indexed by test case.
var openedStmts = map[string]map[uintptr]string{}
var closedStmts = map[string]map[uintptr]bool{}
var stmtRegistryMutex sync.RWMutex

// stmtsRun holds the SQL of the statements run through prepared statements,
// in order, indexed by test case.
var stmtsRun = map[string][]string{}
var stmtsRunMutex sync.RWMutex

type countingDriver struct {
	driver.Driver
}

type countingConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type countingStmt struct {
	testName string
	query    string
	*sqlite3.SQLiteStmt
}

func (c *countingConn) Close() error {
	connRegistryMutex.Lock()
	closedConns[c.testName]++
	connRegistryMutex.Unlock()
	return c.SQLiteConn.Close()
}

func (c *countingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	sPtr := &countingStmt{SQLiteStmt: sm, testName: c.testName, query: query}

	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	if _, ok := openedStmts[c.testName]; !ok {
		openedStmts[c.testName] = map[uintptr]string{}
	}
	openedStmts[c.testName][uintptr(unsafe.Pointer(sPtr))] = query
	return sPtr, nil
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (s *countingStmt) Close() error {
	stmtRegistryMutex.Lock()
	if _, ok := closedStmts[s.testName]; !ok {
		closedStmts[s.testName] = map[uintptr]bool{}
	}
	closedStmts[s.testName][uintptr(unsafe.Pointer(s))] = true
	stmtRegistryMutex.Unlock()
	return s.SQLiteStmt.Close()
}

func (s *countingStmt) recordRun() {
	stmtsRunMutex.Lock()
	defer stmtsRunMutex.Unlock()
	stmtsRun[s.testName] = append(stmtsRun[s.testName], s.query)
}

func (s *countingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		s.recordRun()
	}
	return rows, err
}

func (s *countingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	if err == nil {
		s.recordRun()
	}
	return res, err
}

const testNameTag = "testName"

// Open expects the DSN to contain the test name using the testNameTag
// attribute.
func (d *countingDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if key, value, _ := strings.Cut(p, "="); key == testNameTag {
				testName = value
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	sqliteConn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	connRegistryMutex.Lock()
	openedConns[testName]++
	connRegistryMutex.Unlock()
	return &countingConn{SQLiteConn: sqliteConn, testName: testName}, nil
}

func init() {
	sql.Register("sqlite3_counted", &countingDriver{
		&sqlite3.SQLiteDriver{},
	})
}

// resetDriverCounts forgets everything recorded by the counting driver.
func resetDriverCounts() {
	connRegistryMutex.Lock()
	openedConns = map[string]int{}
	closedConns = map[string]int{}
	connRegistryMutex.Unlock()

	stmtRegistryMutex.Lock()
	openedStmts = map[string]map[uintptr]string{}
	closedStmts = map[string]map[uintptr]bool{}
	stmtRegistryMutex.Unlock()

	stmtsRunMutex.Lock()
	stmtsRun = map[string][]string{}
	stmtsRunMutex.Unlock()
}
