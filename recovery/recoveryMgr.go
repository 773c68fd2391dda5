package recovery

import (
	"errors"
	"fmt"
	syslog "log"
	"sort"
	"time"

	"duraDB/log"
	"duraDB/log_record"
	"duraDB/storage"
	"duraDB/utils"
	"duraDB/wal"
)

// Mgr drives the three recovery modes over the log manager's history:
// single-transaction undo, point-in-time rollback and full ARIES crash
// recovery. It runs stop-the-world relative to the log; callers must not
// admit appends while a recovery is in flight.
type Mgr struct {
	lm      *log.LogMgr
	cf      *wal.CheckpointFile
	adapter *storage.Adapter
}

func NewRecoveryMgr(lm *log.LogMgr, cf *wal.CheckpointFile, adapter *storage.Adapter) (*Mgr, error) {
	if lm == nil {
		return nil, fmt.Errorf("recovery: log manager cannot be nil")
	}
	if cf == nil {
		return nil, fmt.Errorf("recovery: checkpoint file cannot be nil")
	}
	return &Mgr{lm: lm, cf: cf, adapter: adapter}, nil
}

// Recover dispatches on the criteria. Once started, a mode runs to
// completion; redo and undo are idempotent, so an interrupted recovery is
// safely re-run from the start.
func (r *Mgr) Recover(c Criteria) error {
	if err := c.validate(); err != nil {
		return err
	}
	if r.adapter == nil {
		return fmt.Errorf("recover: %w", storage.ErrUnavailable)
	}
	switch {
	case c.TxID > 0:
		err := r.RollbackTransaction(c.TxID)
		var notFound *TargetNotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return err
		}
		r.lm.Deactivate(c.TxID)
		return err
	case !c.Timestamp.IsZero():
		return r.recoverToTimestamp(c.Timestamp)
	default:
		return r.crashRecover()
	}
}

// allRecords returns the full history in LSN order: the durable prefix
// followed by everything still buffered in memory.
func (r *Mgr) allRecords() ([]*log_record.LogRecord, error) {
	durable, err := r.lm.WalFile().Scan()
	if err != nil {
		return nil, fmt.Errorf("reading durable log: %w", err)
	}
	return append(durable, r.lm.BufferSnapshot()...), nil
}

// RollbackTransaction undoes the target transaction's own operations,
// scanning backward from the most recent record and stopping at the
// target's START. Other transactions' records are skipped, not removed.
// The caller owns retiring the transaction from the active set (the abort
// path does it by appending the ABORT record).
func (r *Mgr) RollbackTransaction(txid int64) error {
	if r.adapter == nil {
		return fmt.Errorf("rollback transaction %d: %w", txid, storage.ErrUnavailable)
	}
	recs, err := r.allRecords()
	if err != nil {
		return err
	}
	syslog.Printf("Starting backward recovery from LSN %d", lastLSN(recs))

	if !hasStart(recs, txid) {
		return r.rollbackToStartOfHistory(recs, txid)
	}

	undone := 0
	it := utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, err := it.Next()
		if err != nil {
			return err
		}
		if rec.TxID != txid {
			continue
		}
		if rec.Kind == log_record.START {
			syslog.Printf("Reached transaction %d START at LSN %d", txid, rec.LSN)
			break
		}
		if rec.Kind == log_record.OPERATION && !rec.Compensation {
			r.applyUndo(rec)
			undone++
		}
	}
	syslog.Printf("Undoing %d operations", undone)
	return nil
}

// rollbackToStartOfHistory is the degraded fallback when the target has no
// START record: every operation in the log is undone, newest first, and the
// miss is reported.
func (r *Mgr) rollbackToStartOfHistory(recs []*log_record.LogRecord, txid int64) error {
	syslog.Printf("Transaction %d START not found in logs", txid)
	undone := 0
	it := utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, err := it.Next()
		if err != nil {
			return err
		}
		if rec.Kind == log_record.OPERATION && !rec.Compensation {
			r.applyUndo(rec)
			undone++
		}
	}
	syslog.Printf("Undoing %d operations", undone)
	return &TargetNotFoundError{TxID: txid}
}

// RollbackToMarker is the alternate by-transaction semantics: every
// operation logged after the target's START is undone regardless of which
// transaction wrote it, discarding later committed work. Transactions
// started after the marker are retired from the active set. This is a
// distinct mode from the abort-path rollback and the two are not
// interchangeable.
func (r *Mgr) RollbackToMarker(txid int64) error {
	if r.adapter == nil {
		return fmt.Errorf("rollback to marker %d: %w", txid, storage.ErrUnavailable)
	}
	recs, err := r.allRecords()
	if err != nil {
		return err
	}
	syslog.Printf("Starting backward recovery from LSN %d", lastLSN(recs))

	if !hasStart(recs, txid) {
		err := r.rollbackToStartOfHistory(recs, txid)
		r.lm.Deactivate(txid)
		return err
	}

	undone := 0
	it := utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, iterErr := it.Next()
		if iterErr != nil {
			return iterErr
		}
		if rec.TxID == txid && rec.Kind == log_record.START {
			syslog.Printf("Reached transaction %d START at LSN %d", txid, rec.LSN)
			break
		}
		switch rec.Kind {
		case log_record.OPERATION:
			if !rec.Compensation {
				r.applyUndo(rec)
				undone++
			}
		case log_record.START:
			r.lm.Deactivate(rec.TxID)
		}
	}
	r.lm.Deactivate(txid)
	syslog.Printf("Undoing %d operations", undone)
	return nil
}

// recoverToTimestamp rewinds the database to its state at the target
// instant. Classification follows record timestamps, which the log manager
// keeps monotonic with LSN.
func (r *Mgr) recoverToTimestamp(target time.Time) error {
	recs, err := r.allRecords()
	if err != nil {
		return err
	}

	// Analysis: split transactions into committed at-or-before the target
	// and still in flight at the target.
	committedBefore := make(map[int64]bool)
	activeAtTarget := make(map[int64]bool)
	for _, rec := range recs {
		switch rec.Kind {
		case log_record.START:
			if !rec.Timestamp.After(target) {
				activeAtTarget[rec.TxID] = true
			}
		case log_record.COMMIT:
			if !rec.Timestamp.After(target) {
				committedBefore[rec.TxID] = true
				delete(activeAtTarget, rec.TxID)
			}
		case log_record.ABORT:
			if !rec.Timestamp.After(target) {
				delete(activeAtTarget, rec.TxID)
			}
		}
	}

	// Redo: operations before the target belonging to transactions that
	// committed before the target.
	for _, rec := range recs {
		if rec.Kind == log_record.OPERATION && !rec.Timestamp.After(target) && committedBefore[rec.TxID] {
			r.applyRedo(rec)
		}
	}

	// Undo everything after the target, any transaction, newest first.
	undone := 0
	it := utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, iterErr := it.Next()
		if iterErr != nil {
			return iterErr
		}
		if !rec.Timestamp.After(target) {
			syslog.Printf("Reached target timestamp at LSN %d", rec.LSN)
			break
		}
		if rec.Kind == log_record.OPERATION && !rec.Compensation {
			r.applyUndo(rec)
			undone++
		}
	}

	// Undo operations of transactions still in flight at the target.
	it = utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, iterErr := it.Next()
		if iterErr != nil {
			return iterErr
		}
		if rec.Kind != log_record.OPERATION || rec.Timestamp.After(target) {
			continue
		}
		if activeAtTarget[rec.TxID] && !rec.Compensation {
			r.applyUndo(rec)
			undone++
		}
	}
	syslog.Printf("Undoing %d operations", undone)

	// The data rewinds; the sequence counter does not.
	r.lm.Restore(r.lm.LastLSN(), setToSlice(activeAtTarget))
	return nil
}

// crashRecover is the ARIES restart path: analysis seeded from the
// checkpoint, unconditional redo of everything logged past it, then undo of
// the loser transactions.
func (r *Mgr) crashRecover() error {
	syslog.Printf("=== Crash Recovery (ARIES) ===")

	meta, err := r.cf.Load()
	if err != nil {
		return fmt.Errorf("loading checkpoint metadata: %w", err)
	}
	var checkpointLSN int64
	active := make(map[int64]bool)
	if meta != nil {
		checkpointLSN = meta.CheckpointLSN
		for _, txid := range meta.ActiveTx {
			active[txid] = true
		}
	}

	all, err := r.allRecords()
	if err != nil {
		return err
	}
	recs := make([]*log_record.LogRecord, 0, len(all))
	for _, rec := range all {
		if rec.LSN > checkpointLSN {
			recs = append(recs, rec)
		}
	}

	syslog.Printf("Phase 1: ANALYSIS (checkpoint LSN %d)", checkpointLSN)
	maxLSN := checkpointLSN
	for _, rec := range recs {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		switch rec.Kind {
		case log_record.START:
			active[rec.TxID] = true
			syslog.Printf("T%d started", rec.TxID)
		case log_record.COMMIT:
			delete(active, rec.TxID)
			syslog.Printf("T%d committed", rec.TxID)
		case log_record.ABORT:
			delete(active, rec.TxID)
			syslog.Printf("T%d aborted", rec.TxID)
		}
	}

	// Install the recovered counter before undo so compensating records get
	// fresh LSNs past everything already logged.
	r.lm.Restore(maxLSN, setToSlice(active))

	syslog.Printf("Phase 2: REDO")
	for _, rec := range recs {
		if rec.Kind == log_record.OPERATION {
			r.applyRedo(rec)
		}
	}

	syslog.Printf("Phase 3: UNDO")
	it := utils.NewLogIterator(recs)
	for it.HasNext() {
		rec, iterErr := it.Next()
		if iterErr != nil {
			return iterErr
		}
		if rec.Kind == log_record.OPERATION && !rec.Compensation && active[rec.TxID] {
			r.applyUndo(rec)
		}
	}

	// The losers are fully rolled back now; close them so a later restart
	// does not treat them as still in flight.
	losers := setToSlice(active)
	sort.Slice(losers, func(i, j int) bool { return losers[i] < losers[j] })
	for _, txid := range losers {
		if _, err := r.lm.AppendAbort(txid); err != nil {
			syslog.Printf("closing rolled-back T%d failed: %v", txid, err)
			continue
		}
		syslog.Printf("T%d rolled back", txid)
	}
	return nil
}

// applyRedo reapplies one operation's after image. A row-level failure is
// logged and skipped so one bad record never abandons the rest of the scan.
func (r *Mgr) applyRedo(rec *log_record.LogRecord) {
	if err := r.adapter.Redo(rec); err != nil {
		syslog.Printf("REDO LSN %d failed, skipping: %v", rec.LSN, err)
		return
	}
	syslog.Printf("REDO LSN %d: %s.%v = %v", rec.LSN, rec.Table, rec.Key, rec.NewValue)
}

// applyUndo restores one operation's before image and logs a compensating
// record so a second crash during undo cannot re-apply the undone change.
func (r *Mgr) applyUndo(rec *log_record.LogRecord) {
	if err := r.adapter.Undo(rec); err != nil {
		syslog.Printf("UNDO LSN %d failed, skipping: %v", rec.LSN, err)
		return
	}
	if _, err := r.lm.AppendCompensation(rec); err != nil {
		syslog.Printf("compensation record for LSN %d failed: %v", rec.LSN, err)
	}
	syslog.Printf("UNDO LSN %d: %s.%v from %v to %v (T%d)", rec.LSN, rec.Table, rec.Key, rec.NewValue, rec.OldValue, rec.TxID)
}

func hasStart(recs []*log_record.LogRecord, txid int64) bool {
	for _, rec := range recs {
		if rec.TxID == txid && rec.Kind == log_record.START {
			return true
		}
	}
	return false
}

func lastLSN(recs []*log_record.LogRecord) int64 {
	if len(recs) == 0 {
		return 0
	}
	return recs[len(recs)-1].LSN
}

func setToSlice(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for txid := range set {
		out = append(out, txid)
	}
	return out
}
