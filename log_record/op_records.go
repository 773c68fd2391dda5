package log_record

import "time"

// Constructor functions. Every record kind goes through one of these so the
// construction invariants hold for anything that ever reaches the log.

func NewStartRecord(lsn int64, txid int64, ts time.Time) (*LogRecord, error) {
	rec := &LogRecord{LSN: lsn, TxID: txid, Kind: START, Timestamp: ts}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func NewOperationRecord(lsn int64, txid int64, ts time.Time, table string, key any, oldValue, newValue RowImage) (*LogRecord, error) {
	rec := &LogRecord{
		LSN:       lsn,
		TxID:      txid,
		Kind:      OPERATION,
		Timestamp: ts,
		Table:     table,
		Key:       key,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// NewCompensationRecord builds the operation record logged while undoing
// another operation: the images are swapped so redoing the compensation
// re-applies the undo.
func NewCompensationRecord(lsn int64, txid int64, ts time.Time, table string, key any, undone *LogRecord) (*LogRecord, error) {
	rec := &LogRecord{
		LSN:          lsn,
		TxID:         txid,
		Kind:         OPERATION,
		Timestamp:    ts,
		Table:        table,
		Key:          key,
		OldValue:     undone.NewValue,
		NewValue:     undone.OldValue,
		Compensation: true,
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func NewCommitRecord(lsn int64, txid int64, ts time.Time) (*LogRecord, error) {
	rec := &LogRecord{LSN: lsn, TxID: txid, Kind: COMMIT, Timestamp: ts}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func NewAbortRecord(lsn int64, txid int64, ts time.Time) (*LogRecord, error) {
	rec := &LogRecord{LSN: lsn, TxID: txid, Kind: ABORT, Timestamp: ts}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func NewCheckpointRecord(lsn int64, ts time.Time, activeTx []int64) (*LogRecord, error) {
	rec := &LogRecord{LSN: lsn, Kind: CHECKPOINT, Timestamp: ts, ActiveTx: activeTx}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
