package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duraDB/log_record"
)

func opRecord(t *testing.T, lsn int64, table string, key any, oldValue, newValue log_record.RowImage) *log_record.LogRecord {
	t.Helper()
	rec, err := log_record.NewOperationRecord(lsn, 1, time.Now(), table, key, oldValue, newValue)
	require.NoError(t, err)
	return rec
}

func seededEngine() *MemEngine {
	engine := NewMemEngine()
	engine.CreateTable("accounts", []string{"id", "balance"}, []Row{
		{"id": int64(1), "balance": int64(3000)},
		{"id": int64(2), "balance": int64(4000)},
	})
	return engine
}

func readOne(t *testing.T, engine *MemEngine, table string, conds []Condition) Row {
	t.Helper()
	rows, _, err := engine.ReadRows(table, conds)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestNewAdapterRequiresEngine(t *testing.T) {
	_, err := NewAdapter(nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedoAppliesNewValue(t *testing.T) {
	engine := seededEngine()
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	rec := opRecord(t, 1, "accounts", int64(1),
		log_record.RowImage{"id": int64(1), "balance": int64(3000)},
		log_record.RowImage{"id": int64(1), "balance": int64(5000)})
	require.NoError(t, a.Redo(rec))

	row := readOne(t, engine, "accounts", []Condition{{Column: "id", Value: int64(1)}})
	assert.True(t, ValueEqual(row["balance"], int64(5000)))
}

func TestRedoIsIdempotent(t *testing.T) {
	engine := seededEngine()
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	rec := opRecord(t, 1, "accounts", int64(1),
		log_record.RowImage{"id": int64(1), "balance": int64(3000)},
		log_record.RowImage{"id": int64(1), "balance": int64(5000)})
	require.NoError(t, a.Redo(rec))
	require.NoError(t, a.Redo(rec))

	rows, _, err := engine.ReadRows("accounts", []Condition{{Column: "id", Value: int64(1)}})
	require.NoError(t, err)
	require.Len(t, rows, 1, "redo twice must not duplicate the row")
	assert.True(t, ValueEqual(rows[0]["balance"], int64(5000)))
}

func TestRedoInsertsMissingRow(t *testing.T) {
	engine := seededEngine()
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	rec := opRecord(t, 1, "accounts", int64(3), nil,
		log_record.RowImage{"id": int64(3), "balance": int64(9000)})
	require.NoError(t, a.Redo(rec))

	row := readOne(t, engine, "accounts", []Condition{{Column: "id", Value: int64(3)}})
	assert.True(t, ValueEqual(row["balance"], int64(9000)))
}

func TestRedoOfDeleteRemovesRow(t *testing.T) {
	engine := seededEngine()
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	rec := opRecord(t, 1, "accounts", int64(2),
		log_record.RowImage{"id": int64(2), "balance": int64(4000)}, nil)
	require.NoError(t, a.Redo(rec))

	rows, _, err := engine.ReadRows("accounts", []Condition{{Column: "id", Value: int64(2)}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUndoInsertDeletesRow(t *testing.T) {
	engine := seededEngine()
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	ins := opRecord(t, 1, "accounts", int64(3), nil,
		log_record.RowImage{"id": int64(3), "balance": int64(9000)})
	require.NoError(t, a.Redo(ins))
	require.NoError(t, a.Undo(ins))

	rows, _, err := engine.ReadRows("accounts", []Condition{{Column: "id", Value: int64(3)}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUndoRestoresOldValuePreservingOtherColumns(t *testing.T) {
	engine := NewMemEngine()
	engine.CreateTable("employee", []string{"id", "salary", "name"}, []Row{
		{"id": int64(1), "salary": int64(5000), "name": "Alice"},
	})
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	// Partial before/after images: undo must overlay the old image onto the
	// live row rather than drop the untouched name column.
	rec := opRecord(t, 1, "employee", int64(1),
		log_record.RowImage{"salary": int64(3000)},
		log_record.RowImage{"salary": int64(5000)})
	require.NoError(t, a.Undo(rec))

	row := readOne(t, engine, "employee", []Condition{{Column: "id", Value: int64(1)}})
	assert.True(t, ValueEqual(row["salary"], int64(3000)))
	assert.Equal(t, "Alice", row["name"])
}

func TestUndoOfDeleteReinsertsRow(t *testing.T) {
	engine := NewMemEngine()
	engine.CreateTable("accounts", []string{"id", "balance"}, nil)
	a, err := NewAdapter(engine)
	require.NoError(t, err)

	rec := opRecord(t, 1, "accounts", int64(1),
		log_record.RowImage{"id": int64(1), "balance": int64(3000)}, nil)
	require.NoError(t, a.Undo(rec))

	row := readOne(t, engine, "accounts", []Condition{{Column: "id", Value: int64(1)}})
	assert.True(t, ValueEqual(row["balance"], int64(3000)))
}

func TestMatchPrecedence(t *testing.T) {
	a := &Adapter{engine: NewMemEngine()}

	// Explicit primary-key field wins over the operation key.
	rec := opRecord(t, 1, "t", int64(99),
		log_record.RowImage{"id": int64(1), "v": int64(10)},
		log_record.RowImage{"id": int64(1), "v": int64(20)})
	assert.Equal(t, []Condition{{Column: PrimaryKeyColumn, Value: int64(1)}}, a.matchConditions(rec))

	// No primary-key field: the operation key identifies the row.
	rec = opRecord(t, 2, "t", int64(7),
		log_record.RowImage{"v": int64(10)}, log_record.RowImage{"v": int64(20)})
	assert.Equal(t, []Condition{{Column: PrimaryKeyColumn, Value: int64(7)}}, a.matchConditions(rec))

	// Neither: fall back to the full after-image field set.
	rec = opRecord(t, 3, "t", nil,
		log_record.RowImage{"v": int64(10)}, log_record.RowImage{"v": int64(20), "w": int64(1)})
	conds := a.matchConditions(rec)
	assert.ElementsMatch(t, []Condition{
		{Column: "v", Value: int64(20)},
		{Column: "w", Value: int64(1)},
	}, conds)
}
