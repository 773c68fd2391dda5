package log

import (
	"fmt"

	"duraDB/log_record"
	"duraDB/wal"
)

// CheckpointMgr flushes the in-memory buffer to the durable log and stamps
// a CHECKPOINT record carrying the active transaction set. It shares the
// log manager's mutex so the buffer it flushes and the set it snapshots are
// consistent with each other and no append is admitted mid-checkpoint.
type CheckpointMgr struct {
	lm *LogMgr
	cf *wal.CheckpointFile
}

func NewCheckpointMgr(lm *LogMgr, cf *wal.CheckpointFile) (*CheckpointMgr, error) {
	if lm == nil {
		return nil, &Error{Op: "new checkpoint", Err: fmt.Errorf("log manager cannot be nil")}
	}
	if cf == nil {
		return nil, &Error{Op: "new checkpoint", Err: fmt.Errorf("checkpoint file cannot be nil")}
	}
	return &CheckpointMgr{lm: lm, cf: cf}, nil
}

// SaveCheckpoint durably appends every buffered record followed by a new
// CHECKPOINT record, overwrites the checkpoint metadata and clears the
// buffer. A no-op when nothing is buffered. All-or-nothing with respect to
// in-memory state: on any I/O failure the buffer stays populated and the
// last LSN unadvanced, so a retry is safe; a torn durable suffix from the
// failed attempt is discarded by the prefix scan.
func (cm *CheckpointMgr) SaveCheckpoint() error {
	lm := cm.lm
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if len(lm.buffer) == 0 {
		return nil
	}

	activeTx := lm.activeTxLocked()
	ts := lm.tickLocked()
	ckpt, err := log_record.NewCheckpointRecord(lm.lastLSN+1, ts, activeTx)
	if err != nil {
		return &Error{Op: "checkpoint", Err: err}
	}

	batch := make([]*log_record.LogRecord, 0, len(lm.buffer)+1)
	batch = append(batch, lm.buffer...)
	batch = append(batch, ckpt)
	if err := lm.wf.AppendAll(batch); err != nil {
		return &Error{Op: "checkpoint", Err: err}
	}

	meta := &wal.CheckpointMeta{
		CheckpointLSN: ckpt.LSN,
		ActiveTx:      activeTx,
		Timestamp:     ts.UnixMilli(),
	}
	if err := cm.cf.Store(meta); err != nil {
		return &Error{Op: "checkpoint", Err: err}
	}

	lm.lastLSN = ckpt.LSN
	lm.buffer = nil
	return nil
}

// ShouldCheckpoint reports whether the commit-time threshold policy asks
// for a checkpoint.
func (cm *CheckpointMgr) ShouldCheckpoint() bool {
	return cm.lm.BufferLen() >= cm.lm.CheckpointThreshold()
}

// Meta exposes the checkpoint metadata file for crash recovery.
func (cm *CheckpointMgr) Meta() *wal.CheckpointFile {
	return cm.cf
}
