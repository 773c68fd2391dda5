package storage

import (
	"fmt"
	"sort"

	"duraDB/log_record"
)

// PrimaryKeyColumn is the conventional primary-key field of a row image.
// When an operation's images carry it, row matching uses it ahead of the
// operation key or the full field set.
const PrimaryKeyColumn = "id"

// Adapter translates OPERATION log records into concrete reads, inserts and
// deletes against the storage collaborator.
type Adapter struct {
	engine Engine
}

func NewAdapter(engine Engine) (*Adapter, error) {
	if engine == nil {
		return nil, ErrUnavailable
	}
	return &Adapter{engine: engine}, nil
}

// Redo reapplies an operation's after image. Redo is idempotent: matching
// rows are replaced by the merged row, so re-running redo on a row that
// already reflects the after image neither duplicates nor corrupts it.
func (a *Adapter) Redo(rec *log_record.LogRecord) error {
	if rec.Kind != log_record.OPERATION {
		return fmt.Errorf("cannot redo %s record at LSN %d", rec.Kind, rec.LSN)
	}
	conds := a.matchConditions(rec)
	if rec.IsDelete() {
		if _, err := a.engine.DeleteRows(rec.Table, conds); err != nil {
			return fmt.Errorf("redo delete on %s: %w", rec.Table, err)
		}
		return nil
	}

	rows, columns, err := a.engine.ReadRows(rec.Table, conds)
	if err != nil {
		return fmt.Errorf("redo lookup on %s: %w", rec.Table, err)
	}
	if len(rows) == 0 {
		return a.insertImage(rec.Table, columns, Row(rec.NewValue))
	}
	merged := overlay(rows[0], rec.NewValue)
	if _, err := a.engine.DeleteRows(rec.Table, conds); err != nil {
		return fmt.Errorf("redo delete on %s: %w", rec.Table, err)
	}
	return a.insertImage(rec.Table, columns, merged)
}

// Undo reverts an operation: an insert is deleted, anything else has the
// after-state rows replaced by the before image overlaid onto whatever row
// currently matches.
func (a *Adapter) Undo(rec *log_record.LogRecord) error {
	if rec.Kind != log_record.OPERATION {
		return fmt.Errorf("cannot undo %s record at LSN %d", rec.Kind, rec.LSN)
	}
	conds := a.matchConditions(rec)
	if rec.IsInsert() {
		if _, err := a.engine.DeleteRows(rec.Table, conds); err != nil {
			return fmt.Errorf("undo insert on %s: %w", rec.Table, err)
		}
		return nil
	}

	rows, columns, err := a.engine.ReadRows(rec.Table, conds)
	if err != nil {
		return fmt.Errorf("undo lookup on %s: %w", rec.Table, err)
	}
	restored := Row(rec.OldValue)
	if len(rows) > 0 {
		restored = overlay(rows[0], rec.OldValue)
		if _, err := a.engine.DeleteRows(rec.Table, conds); err != nil {
			return fmt.Errorf("undo delete on %s: %w", rec.Table, err)
		}
	}
	return a.insertImage(rec.Table, columns, restored)
}

// matchConditions builds the equality predicate identifying the operation's
// row. Precedence: explicit primary-key field in the new or old image, then
// the operation's row identifier, then the full after-image field set.
func (a *Adapter) matchConditions(rec *log_record.LogRecord) []Condition {
	if pk, ok := rec.NewValue[PrimaryKeyColumn]; ok {
		return []Condition{{Column: PrimaryKeyColumn, Value: pk}}
	}
	if pk, ok := rec.OldValue[PrimaryKeyColumn]; ok {
		return []Condition{{Column: PrimaryKeyColumn, Value: pk}}
	}
	if rec.Key != nil {
		return []Condition{{Column: PrimaryKeyColumn, Value: rec.Key}}
	}
	image := rec.NewValue
	if image == nil {
		image = rec.OldValue
	}
	conds := make([]Condition, 0, len(image))
	for _, col := range sortedKeys(image) {
		conds = append(conds, Condition{Column: col, Value: image[col]})
	}
	return conds
}

func (a *Adapter) insertImage(table string, columns []string, img Row) error {
	if len(img) == 0 {
		return fmt.Errorf("empty row image for %s", table)
	}
	order := append([]string(nil), columns...)
	for _, col := range sortedKeys(log_record.RowImage(img)) {
		if !containsColumn(order, col) {
			order = append(order, col)
		}
	}
	if err := a.engine.InsertRows(table, order, []Row{copyRow(img)}); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func overlay(base Row, img log_record.RowImage) Row {
	out := copyRow(base)
	for k, v := range img {
		out[k] = v
	}
	return out
}

func sortedKeys(img log_record.RowImage) []string {
	keys := make([]string, 0, len(img))
	for k := range img {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
