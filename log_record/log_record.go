package log_record

import (
	"fmt"
	"time"
)

// Kind identifies which of the five record shapes a LogRecord carries.
type Kind int32

const (
	CHECKPOINT Kind = iota
	START
	OPERATION
	COMMIT
	ABORT
)

var kindNames = map[Kind]string{
	CHECKPOINT: "CHECKPOINT",
	START:      "START",
	OPERATION:  "OPERATION",
	COMMIT:     "COMMIT",
	ABORT:      "ABORT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// KindFromName maps a wire-format kind name back to its Kind.
func KindFromName(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown log record kind %q", name)
}

// RowImage is a row snapshot keyed by column name. An OPERATION record
// carries the before image in OldValue and the after image in NewValue;
// an insert has no before image, a delete has no after image.
type RowImage map[string]any

// LogRecord is the append-only unit of the log. Records are immutable
// once appended; the LSN is assigned by the log manager at write time.
type LogRecord struct {
	LSN       int64
	TxID      int64
	Kind      Kind
	Timestamp time.Time

	// OPERATION fields.
	Table    string
	Key      any
	OldValue RowImage
	NewValue RowImage

	// Set on OPERATION records written while undoing, so a second pass
	// never undoes the undo.
	Compensation bool

	// CHECKPOINT field.
	ActiveTx []int64
}

func (r *LogRecord) validate() error {
	if _, ok := kindNames[r.Kind]; !ok {
		return fmt.Errorf("invalid log record kind %d", int32(r.Kind))
	}
	if r.Kind == CHECKPOINT {
		if r.TxID != 0 {
			return fmt.Errorf("checkpoint record must not carry a transaction id, got %d", r.TxID)
		}
		return nil
	}
	if r.TxID <= 0 {
		return fmt.Errorf("%s record requires a transaction id", r.Kind)
	}
	if r.Kind == OPERATION {
		if r.Table == "" {
			return fmt.Errorf("operation record requires a table")
		}
		if r.OldValue == nil && r.NewValue == nil {
			return fmt.Errorf("operation record requires an old or new value")
		}
	}
	return nil
}

// IsInsert reports whether an OPERATION record describes an insert.
func (r *LogRecord) IsInsert() bool {
	return r.Kind == OPERATION && r.OldValue == nil
}

// IsDelete reports whether an OPERATION record describes a delete.
func (r *LogRecord) IsDelete() bool {
	return r.Kind == OPERATION && r.NewValue == nil
}

func (r *LogRecord) String() string {
	switch r.Kind {
	case START:
		return fmt.Sprintf("%d: <T%d, Start>", r.LSN, r.TxID)
	case OPERATION:
		return fmt.Sprintf("%d: <T%d, %s.%v, %v, %v>", r.LSN, r.TxID, r.Table, r.Key, r.OldValue, r.NewValue)
	case COMMIT:
		return fmt.Sprintf("%d: <T%d, Commit>", r.LSN, r.TxID)
	case ABORT:
		return fmt.Sprintf("%d: <T%d, Abort>", r.LSN, r.TxID)
	case CHECKPOINT:
		return fmt.Sprintf("%d: <Checkpoint, T: %v>", r.LSN, r.ActiveTx)
	}
	return fmt.Sprintf("%d: <T%d, Unknown>", r.LSN, r.TxID)
}
