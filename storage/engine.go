package storage

import (
	"errors"
	"reflect"
)

// ErrUnavailable is returned when no storage collaborator is configured.
// Redo/undo must fail outright on it rather than completing partially.
var ErrUnavailable = errors.New("storage engine unavailable")

// Row is a stored row keyed by column name.
type Row map[string]any

// Condition is a column = value equality predicate.
type Condition struct {
	Column string
	Value  any
}

// Engine is the boundary to the physical storage collaborator. The
// recovery core only needs point lookups, inserts and deletes by
// column-value conditions.
type Engine interface {
	// ReadRows returns the rows matching every condition plus the table's
	// live non-system column names.
	ReadRows(table string, conds []Condition) ([]Row, []string, error)

	// InsertRows inserts rows with an explicit column order.
	InsertRows(table string, columns []string, rows []Row) error

	// DeleteRows removes the rows matching every condition and reports how
	// many were deleted.
	DeleteRows(table string, conds []Condition) (int, error)
}

// ValueEqual compares two cell values, coercing across numeric types so an
// int64 written by a caller matches the same number read back from the
// durable log.
func ValueEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
