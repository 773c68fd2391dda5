package transaction

import (
	"fmt"

	"duraDB/log"
	"duraDB/log_record"
	"duraDB/recovery"
	"duraDB/storage"
	"duraDB/wal"
)

// Mgr is the upward interface consumed by the query executor. Calls map 1:1
// onto the log manager; Commit applies the checkpoint threshold policy and
// Abort runs the synchronous single-transaction undo before the abort
// becomes visible.
type Mgr struct {
	lm *log.LogMgr
	cm *log.CheckpointMgr
	rm *recovery.Mgr
}

func NewTransactionMgr(lm *log.LogMgr, cm *log.CheckpointMgr, rm *recovery.Mgr) (*Mgr, error) {
	if lm == nil || cm == nil || rm == nil {
		return nil, fmt.Errorf("transaction manager requires log, checkpoint and recovery managers")
	}
	return &Mgr{lm: lm, cm: cm, rm: rm}, nil
}

// Open wires a complete recovery core over a log directory and a storage
// collaborator. engine may be nil; logging keeps working, but any recovery
// call fails with the storage-unavailable error.
func Open(dir string, engine storage.Engine, cfg log.Config) (*Mgr, error) {
	wf, err := wal.OpenWalFile(dir)
	if err != nil {
		return nil, err
	}
	cf, err := wal.OpenCheckpointFile(dir)
	if err != nil {
		return nil, err
	}
	lm, err := log.NewLogMgr(wf, cfg)
	if err != nil {
		return nil, err
	}
	cm, err := log.NewCheckpointMgr(lm, cf)
	if err != nil {
		return nil, err
	}
	var adapter *storage.Adapter
	if engine != nil {
		if adapter, err = storage.NewAdapter(engine); err != nil {
			return nil, err
		}
	}
	rm, err := recovery.NewRecoveryMgr(lm, cf, adapter)
	if err != nil {
		return nil, err
	}
	return NewTransactionMgr(lm, cm, rm)
}

// Begin opens a transaction.
func (t *Mgr) Begin(txid int64) error {
	_, err := t.lm.AppendBegin(txid)
	return err
}

// RecordOperation logs one row mutation for an open transaction.
func (t *Mgr) RecordOperation(txid int64, table string, key any, oldValue, newValue log_record.RowImage) error {
	_, err := t.lm.AppendOperation(txid, table, key, oldValue, newValue)
	return err
}

// Commit closes the transaction and checkpoints when the buffer has grown
// past the configured threshold. Only commits consult the policy.
func (t *Mgr) Commit(txid int64) error {
	if _, err := t.lm.AppendCommit(txid); err != nil {
		return err
	}
	if t.cm.ShouldCheckpoint() {
		if err := t.cm.SaveCheckpoint(); err != nil {
			return fmt.Errorf("post-commit checkpoint: %w", err)
		}
	}
	return nil
}

// Abort rolls the transaction's physical effects back, then closes it with
// an ABORT record. The undo blocks the caller; the abort is not visible
// until the rollback has completed.
func (t *Mgr) Abort(txid int64) error {
	if !t.lm.IsActive(txid) {
		_, err := t.lm.AppendAbort(txid)
		return err
	}
	if err := t.rm.RollbackTransaction(txid); err != nil {
		return fmt.Errorf("abort of transaction %d: %w", txid, err)
	}
	_, err := t.lm.AppendAbort(txid)
	return err
}

// Recover dispatches to the recovery engine; see recovery.Criteria for mode
// selection.
func (t *Mgr) Recover(c recovery.Criteria) error {
	return t.rm.Recover(c)
}

// SaveCheckpoint forces a checkpoint regardless of the threshold policy.
func (t *Mgr) SaveCheckpoint() error {
	return t.cm.SaveCheckpoint()
}

func (t *Mgr) LogMgr() *log.LogMgr {
	return t.lm
}

func (t *Mgr) RecoveryMgr() *recovery.Mgr {
	return t.rm
}
