// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
//
// Queries are answered, in order, with the rows handed to Run.
package fakedb // import "github.com/go-lpc/codec/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var query struct {
	mu    sync.Mutex
	rows  []Rows
	calls []Call
}

// Call is a query received by the fake driver.
type Call struct {
	Query string
	Args  []driver.Value
}

// Run runs f, answering the queries issued by f with the provided rows.
// Queries issued once rows are exhausted get empty results.
func Run(ctx context.Context, f func(ctx context.Context) error, rows ...Rows) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows
	query.calls = nil

	return f(ctx)
}

// Calls returns the queries received during the last Run.
// Calls must be invoked from within the function passed to Run.
func Calls() []Call {
	return append([]Call(nil), query.calls...)
}

func next(q string, args []driver.Value) *Rows {
	query.calls = append(query.calls, Call{Query: q, Args: args})
	if len(query.rows) == 0 {
		return &Rows{}
	}
	rows := query.rows[0]
	query.rows = query.rows[1:]
	return &rows
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

// Close invalidates the connection.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct {
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: the number of placeholders is not checked.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	panic("not implemented")
}

// Query executes a query that may return rows.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return next(stmt.query, args), nil
}

// Rows is a fake result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row of data.
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
