package log

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"duraDB/log_record"
	"duraDB/wal"
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("log operation %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrDuplicateTx means begin was called for a transaction that is
	// still active.
	ErrDuplicateTx = errors.New("transaction already active")
	// ErrUnknownTx means an operation was logged for a transaction with no
	// open start record.
	ErrUnknownTx = errors.New("transaction not active")
	// ErrProtocol means commit or abort arrived without a matching begin.
	// It indicates a logic bug upstream and is never swallowed.
	ErrProtocol = errors.New("commit or abort without matching begin")
)

// Config carries the tunables of the log manager. The checkpoint threshold
// is the buffer size at which a commit triggers a checkpoint; the clock is
// injectable so recovery scenarios can control record timestamps.
type Config struct {
	CheckpointThreshold int
	Clock               func() time.Time
}

func DefaultConfig() Config {
	return Config{
		CheckpointThreshold: 10,
		Clock:               time.Now,
	}
}

// LogMgr owns the one piece of shared mutable state in the recovery core:
// the last assigned LSN, the in-memory record buffer and the active
// transaction set, all guarded by a single mutex so LSN assignment plus
// buffer append happen as one atomic unit.
type LogMgr struct {
	mu            sync.Mutex
	cfg           Config
	wf            *wal.WalFile
	buffer        []*log_record.LogRecord
	lastLSN       int64
	lastTimestamp time.Time
	activeTx      map[int64]struct{}
	closedTx      map[int64]struct{}
}

func NewLogMgr(wf *wal.WalFile, cfg Config) (*LogMgr, error) {
	if wf == nil {
		return nil, &Error{Op: "new", Err: fmt.Errorf("wal file cannot be nil")}
	}
	if cfg.CheckpointThreshold <= 0 {
		cfg.CheckpointThreshold = DefaultConfig().CheckpointThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &LogMgr{
		cfg:      cfg,
		wf:       wf,
		activeTx: make(map[int64]struct{}),
		closedTx: make(map[int64]struct{}),
	}, nil
}

// AppendBegin opens txid with a START record.
func (lm *LogMgr) AppendBegin(txid int64) (*log_record.LogRecord, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, active := lm.activeTx[txid]; active {
		return nil, &Error{Op: "begin", Err: fmt.Errorf("transaction %d: %w", txid, ErrDuplicateTx)}
	}
	// Committed and aborted are terminal: the id cannot re-enter ACTIVE.
	if _, closed := lm.closedTx[txid]; closed {
		return nil, &Error{Op: "begin", Err: fmt.Errorf("transaction %d already finished: %w", txid, ErrProtocol)}
	}
	rec, err := log_record.NewStartRecord(lm.lastLSN+1, txid, lm.tickLocked())
	if err != nil {
		return nil, &Error{Op: "begin", Err: err}
	}
	lm.pushLocked(rec)
	lm.activeTx[txid] = struct{}{}
	return rec, nil
}

// AppendOperation logs a row mutation belonging to an open transaction.
func (lm *LogMgr) AppendOperation(txid int64, table string, key any, oldValue, newValue log_record.RowImage) (*log_record.LogRecord, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, active := lm.activeTx[txid]; !active {
		return nil, &Error{Op: "operation", Err: fmt.Errorf("transaction %d: %w", txid, ErrUnknownTx)}
	}
	rec, err := log_record.NewOperationRecord(lm.lastLSN+1, txid, lm.tickLocked(), table, key, oldValue, newValue)
	if err != nil {
		return nil, &Error{Op: "operation", Err: err}
	}
	lm.pushLocked(rec)
	return rec, nil
}

// AppendCompensation logs the undo of an earlier operation. The owning
// transaction may already be terminally closed (point-in-time recovery
// rewinds committed work), so no active check applies, and appending here
// never re-enters recovery or checkpoint policy.
func (lm *LogMgr) AppendCompensation(undone *log_record.LogRecord) (*log_record.LogRecord, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	rec, err := log_record.NewCompensationRecord(lm.lastLSN+1, undone.TxID, lm.tickLocked(), undone.Table, undone.Key, undone)
	if err != nil {
		return nil, &Error{Op: "compensation", Err: err}
	}
	lm.pushLocked(rec)
	return rec, nil
}

// AppendCommit closes txid with a COMMIT record and drops it from the
// active set.
func (lm *LogMgr) AppendCommit(txid int64) (*log_record.LogRecord, error) {
	return lm.appendClose(txid, log_record.COMMIT)
}

// AppendAbort closes txid with an ABORT record and drops it from the active
// set. The synchronous undo that precedes the abort is driven by the caller
// (transaction.Mgr), which keeps this package free of a recovery
// dependency.
func (lm *LogMgr) AppendAbort(txid int64) (*log_record.LogRecord, error) {
	return lm.appendClose(txid, log_record.ABORT)
}

func (lm *LogMgr) appendClose(txid int64, kind log_record.Kind) (*log_record.LogRecord, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	op := "commit"
	if kind == log_record.ABORT {
		op = "abort"
	}
	if _, active := lm.activeTx[txid]; !active {
		return nil, &Error{Op: op, Err: fmt.Errorf("transaction %d: %w", txid, ErrProtocol)}
	}
	var rec *log_record.LogRecord
	var err error
	if kind == log_record.COMMIT {
		rec, err = log_record.NewCommitRecord(lm.lastLSN+1, txid, lm.tickLocked())
	} else {
		rec, err = log_record.NewAbortRecord(lm.lastLSN+1, txid, lm.tickLocked())
	}
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	lm.pushLocked(rec)
	delete(lm.activeTx, txid)
	lm.closedTx[txid] = struct{}{}
	return rec, nil
}

// pushLocked commits the record into the buffer and advances the LSN;
// callers hold lm.mu.
func (lm *LogMgr) pushLocked(rec *log_record.LogRecord) {
	lm.lastLSN = rec.LSN
	lm.buffer = append(lm.buffer, rec)
}

// tickLocked reads the clock clamped to never move backward, so timestamp
// order always follows LSN order.
func (lm *LogMgr) tickLocked() time.Time {
	now := lm.cfg.Clock()
	if now.Before(lm.lastTimestamp) {
		now = lm.lastTimestamp
	}
	lm.lastTimestamp = now
	return now
}

func (lm *LogMgr) LastLSN() int64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.lastLSN
}

func (lm *LogMgr) BufferLen() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.buffer)
}

// BufferSnapshot returns a copy of the unflushed record sequence.
func (lm *LogMgr) BufferSnapshot() []*log_record.LogRecord {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return append([]*log_record.LogRecord(nil), lm.buffer...)
}

func (lm *LogMgr) IsActive(txid int64) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, ok := lm.activeTx[txid]
	return ok
}

// ActiveTx returns the open transaction ids in ascending order.
func (lm *LogMgr) ActiveTx() []int64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.activeTxLocked()
}

func (lm *LogMgr) activeTxLocked() []int64 {
	out := make([]int64, 0, len(lm.activeTx))
	for txid := range lm.activeTx {
		out = append(out, txid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deactivate drops txid from the active set without closing it in the log.
// Used by recovery when a rollback retires a transaction.
func (lm *LogMgr) Deactivate(txid int64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.activeTx, txid)
}

// Restore installs the state recovery computed: the active set is replaced
// outright and the LSN counter moves forward to the highest LSN observed,
// never backward.
func (lm *LogMgr) Restore(lastLSN int64, activeTx []int64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lastLSN > lm.lastLSN {
		lm.lastLSN = lastLSN
	}
	lm.activeTx = make(map[int64]struct{}, len(activeTx))
	for _, txid := range activeTx {
		lm.activeTx[txid] = struct{}{}
	}
}

// WalFile exposes the durable log for the checkpoint and recovery managers.
func (lm *LogMgr) WalFile() *wal.WalFile {
	return lm.wf
}

// CheckpointThreshold reports the configured commit-time checkpoint policy.
func (lm *LogMgr) CheckpointThreshold() int {
	return lm.cfg.CheckpointThreshold
}
