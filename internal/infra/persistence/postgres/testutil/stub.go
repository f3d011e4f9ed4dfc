// Package testutil provides an in-memory database/sql driver that understands
// the handful of statements the postgres snapshot store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records statements and keeps table rows as column maps.
// The Fail* switches inject errors into the matching driver call.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error

	backup map[string][]map[string]any
}

// NewStubDB registers a fresh driver and returns a handle to it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; the stub only supports direct execution.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements not supported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx snapshots the tables so Rollback can restore them.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	c.backup = make(map[string][]map[string]any, len(c.Tables))
	for name, rows := range c.Tables {
		c.backup[name] = slices.Clone(rows)
	}
	return &stubTx{conn: c}, nil
}

// ExecContext handles CREATE (no-op), TRUNCATE and INSERT.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	head := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(head, "TRUNCATE TABLE"):
		table := strings.ToLower(strings.Fields(query)[2])
		delete(c.Tables, table)
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(head, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if c.FailTables[table] {
			return nil, fmt.Errorf("stub: insert into %s failed", table)
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("stub: %d columns but %d args for %s", len(cols), len(args), table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext returns the rows of the selected table in insertion order.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub: query %s failed", table)
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct{ conn *StubConn }

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.restore()
		return errors.New("stub: commit failed")
	}
	t.conn.backup = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.restore()
	return nil
}

func (t *stubTx) restore() {
	if t.conn.backup != nil {
		t.conn.Tables = maps.Clone(t.conn.backup)
		t.conn.backup = nil
	}
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	rest, ok := cutFold(query, "INTO ")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert: %s", query)
	}
	table, colList, ok := strings.Cut(rest, "(")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert: %s", query)
	}
	colList, _, ok = strings.Cut(colList, ")")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse insert: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(table)), splitColumns(colList), nil
}

func parseSelect(query string) (string, []string, error) {
	rest, ok := cutFold(query, "SELECT ")
	if !ok {
		return "", nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	idx := strings.Index(strings.ToUpper(rest), " FROM ")
	if idx == -1 {
		return "", nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	fields := strings.Fields(rest[idx+len(" FROM "):])
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	return strings.ToLower(fields[0]), splitColumns(rest[:idx]), nil
}

// cutFold returns the text after the first case-insensitive match of sep.
func cutFold(s, sep string) (string, bool) {
	idx := strings.Index(strings.ToUpper(s), strings.ToUpper(sep))
	if idx == -1 {
		return "", false
	}
	return s[idx+len(sep):], true
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
