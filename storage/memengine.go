package storage

import (
	"fmt"
	"sync"
)

// MemEngine is an in-memory Engine used by tests and the demo. It keeps the
// same visible behavior as a real table store: per-table column lists and
// rows addressable only through equality conditions.
type MemEngine struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	columns []string
	rows    []Row
}

func NewMemEngine() *MemEngine {
	return &MemEngine{tables: make(map[string]*memTable)}
}

// CreateTable registers a table with its column order and initial rows.
func (m *MemEngine) CreateTable(name string, columns []string, rows []Row) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := &memTable{columns: append([]string(nil), columns...)}
	for _, r := range rows {
		tbl.rows = append(tbl.rows, copyRow(r))
	}
	m.tables[name] = tbl
}

func (m *MemEngine) ReadRows(table string, conds []Condition) ([]Row, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tbl, ok := m.tables[table]
	if !ok {
		return nil, nil, nil
	}
	var out []Row
	for _, row := range tbl.rows {
		if rowMatches(row, conds) {
			out = append(out, copyRow(row))
		}
	}
	return out, append([]string(nil), tbl.columns...), nil
}

func (m *MemEngine) InsertRows(table string, columns []string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl, ok := m.tables[table]
	if !ok {
		tbl = &memTable{}
		m.tables[table] = tbl
	}
	for _, col := range columns {
		if !containsColumn(tbl.columns, col) {
			tbl.columns = append(tbl.columns, col)
		}
	}
	for _, row := range rows {
		if row == nil {
			return fmt.Errorf("cannot insert nil row into %s", table)
		}
		tbl.rows = append(tbl.rows, copyRow(row))
	}
	return nil
}

func (m *MemEngine) DeleteRows(table string, conds []Condition) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl, ok := m.tables[table]
	if !ok {
		return 0, nil
	}
	kept := tbl.rows[:0]
	deleted := 0
	for _, row := range tbl.rows {
		if rowMatches(row, conds) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	tbl.rows = kept
	return deleted, nil
}

func rowMatches(row Row, conds []Condition) bool {
	for _, c := range conds {
		v, ok := row[c.Column]
		if !ok || !ValueEqual(v, c.Value) {
			return false
		}
	}
	return true
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
