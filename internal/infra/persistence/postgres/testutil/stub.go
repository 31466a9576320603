// Package testutil provides a schema-aware stub database for postgres store
// tests. The stub learns relations, unique constraints and range checks from
// the DDL it executes and enforces them on every insert, so store tests see
// the same constraint failures a Postgres server would raise.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	createTableRe = regexp.MustCompile(`(?is)^CREATE TABLE IF NOT EXISTS\s+(\w+)\s*\((.*)\)\s*;?$`)
	uniqueIndexRe = regexp.MustCompile(`(?is)^CREATE UNIQUE INDEX IF NOT EXISTS\s+(\w+)\s+ON\s+(\w+)\s*\(([^)]*)\)(?:\s+WHERE\s+(\w+)(?:\s*=\s*(\w+))?)?\s*;?$`)
	rangeCheckRe  = regexp.MustCompile(`(?i)CHECK\s*\(\s*(\w+)\s*>=\s*([\d.]+)\s+AND\s+\w+\s*<=\s*([\d.]+)\s*\)`)
)

// uniqueKey is a unique constraint or partial unique index. A non-empty
// predicate restricts it to rows where that column is true.
type uniqueKey struct {
	name      string
	columns   []string
	predicate string
}

type rangeCheck struct {
	column string
	lo, hi float64
}

type relation struct {
	columns map[string]bool
	uniques []uniqueKey
	checks  []rangeCheck
}

// StubConn records statements and keeps rows per table. Rows are keyed by
// their first column, matching the ON CONFLICT(id) upserts of the store.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool

	relations map[string]*relation
	saved     map[string][]map[string]any
}

// NewStubDB registers a sql.DB backed by a stub connection.
// Each call registers a fresh driver so tests never share rows.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{
		Tables:    make(map[string][]map[string]any),
		relations: make(map[string]*relation),
	}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Rows written inside the
// transaction are discarded on rollback.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		c.saved[table] = append([]map[string]any(nil), rows...)
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	stmt := strings.TrimSpace(query)
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return driver.RowsAffected(0), c.createTable(stmt)
	case strings.HasPrefix(upper, "CREATE UNIQUE INDEX"):
		return driver.RowsAffected(0), c.createUniqueIndex(stmt)
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.insert(stmt, args)
	case strings.HasPrefix(upper, "DELETE FROM"):
		return c.delete(stmt, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) createTable(stmt string) error {
	m := createTableRe.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("cannot parse create table: %s", stmt)
	}
	table := strings.ToLower(m[1])
	rel := &relation{columns: map[string]bool{}}
	for _, line := range strings.Split(m[2], "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "UNIQUE") {
			cols := splitColumns(between(line, "(", ")"))
			rel.uniques = append(rel.uniques, uniqueKey{
				name:    table + "_" + strings.Join(cols, "_") + "_key",
				columns: cols,
			})
			continue
		}
		col := strings.ToLower(strings.Fields(line)[0])
		rel.columns[col] = true
		if r := rangeCheckRe.FindStringSubmatch(line); r != nil {
			lo, _ := strconv.ParseFloat(r[2], 64)
			hi, _ := strconv.ParseFloat(r[3], 64)
			rel.checks = append(rel.checks, rangeCheck{column: strings.ToLower(r[1]), lo: lo, hi: hi})
		}
	}
	if prev, ok := c.relations[table]; ok {
		rel.uniques = append(rel.uniques, prev.uniques...)
	}
	c.relations[table] = rel
	return nil
}

func (c *StubConn) createUniqueIndex(stmt string) error {
	m := uniqueIndexRe.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("cannot parse unique index: %s", stmt)
	}
	table := strings.ToLower(m[2])
	rel, ok := c.relations[table]
	if !ok {
		return fmt.Errorf("relation %q does not exist", table)
	}
	rel.uniques = append(rel.uniques, uniqueKey{
		name:      strings.ToLower(m[1]),
		columns:   splitColumns(m[3]),
		predicate: strings.ToLower(m[4]),
	})
	return nil
}

func (c *StubConn) insert(stmt string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(stmt)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	rel := c.relations[table]
	if rel != nil {
		if err := rel.validate(table, row); err != nil {
			return nil, err
		}
	}

	upper := strings.ToUpper(stmt)
	primary := cols[0]
	others := make([]map[string]any, 0, len(c.Tables[table]))
	for _, existing := range c.Tables[table] {
		if existing[primary] != row[primary] {
			others = append(others, existing)
			continue
		}
		switch {
		case strings.Contains(upper, "DO NOTHING"):
			return driver.RowsAffected(0), nil
		case !strings.Contains(upper, "ON CONFLICT"):
			return nil, fmt.Errorf("duplicate key value violates unique constraint %q", table+"_pkey")
		}
	}
	if rel != nil {
		for _, key := range rel.uniques {
			for _, existing := range others {
				if key.collides(existing, row) {
					return nil, fmt.Errorf("duplicate key value violates unique constraint %q", key.name)
				}
			}
		}
	}
	c.Tables[table] = append(others, row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) delete(stmt string, args []driver.NamedValue) (driver.Result, error) {
	table, col, err := parseDelete(stmt)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing args for delete %s", table)
	}
	target := args[0].Value
	var kept []map[string]any
	var removed int64
	for _, row := range c.Tables[table] {
		if row[col] == target {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(removed), nil
}

func (r *relation) validate(table string, row map[string]any) error {
	for col := range row {
		if !r.columns[col] {
			return fmt.Errorf("column %q of relation %q does not exist", col, table)
		}
	}
	for _, check := range r.checks {
		v, ok := row[check.column].(float64)
		if ok && (v < check.lo || v > check.hi) {
			return fmt.Errorf("new row for relation %q violates check constraint on %s", table, check.column)
		}
	}
	return nil
}

func (k uniqueKey) collides(a, b map[string]any) bool {
	if k.predicate != "" && (!truthy(a[k.predicate]) || !truthy(b[k.predicate])) {
		return false
	}
	for _, col := range k.columns {
		if a[col] == nil || a[col] != b[col] {
			return false
		}
	}
	return true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	}
	return false
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
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

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.restore()
		return fmt.Errorf("commit fail")
	}
	t.conn.saved = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.restore()
	return nil
}

func (c *StubConn) restore() {
	if c.saved != nil {
		c.Tables = c.saved
		c.saved = nil
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

func between(s, open, closing string) string {
	start := strings.Index(s, open)
	end := strings.LastIndex(s, closing)
	if start == -1 || end <= start {
		return ""
	}
	return s[start+1 : end]
}

func parseInsert(query string) (string, []string, error) {
	rest := strings.TrimSpace(query[len("INSERT INTO"):])
	open := strings.Index(rest, "(")
	end := strings.Index(rest, ")")
	if open <= 0 || end <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	cols := splitColumns(rest[open+1 : end])
	if len(cols) == 0 || cols[0] == "" {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(rest[:open])), cols, nil
}

func parseDelete(query string) (string, string, error) {
	rest := strings.TrimSpace(query[len("DELETE FROM"):])
	table, where, ok := strings.Cut(rest, " ")
	if !ok {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	where = strings.TrimSpace(where)
	if !strings.HasPrefix(strings.ToUpper(where), "WHERE ") {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	col, _, ok := strings.Cut(where[len("WHERE "):], "=")
	if !ok {
		return "", "", fmt.Errorf("cannot parse delete predicate: %s", query)
	}
	return strings.ToLower(table), strings.ToLower(strings.TrimSpace(col)), nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fields := strings.Fields(query[fromIdx+len(" from "):])
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return strings.ToLower(fields[0]), splitColumns(query[len("select "):fromIdx]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}

// Count returns the number of rows recorded for table.
func (c *StubConn) Count(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Tables[table])
}

// Row returns the recorded row whose id column equals id.
func (c *StubConn) Row(table, id string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.Tables[table] {
		if row["id"] == id {
			return row, true
		}
	}
	return nil, false
}

// ExecutedDDL reports whether any CREATE TABLE statement was executed.
func (c *StubConn) ExecutedDDL() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.relations) > 0
}

// Constraints lists the unique constraint names learned for table.
func (c *StubConn) Constraints(table string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rel, ok := c.relations[table]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(rel.uniques))
	for _, key := range rel.uniques {
		names = append(names, key.name)
	}
	return names
}
