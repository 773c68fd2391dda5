package log

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"duraDB/log_record"
	"duraDB/wal"
)

func newTestLogMgr(t *testing.T, cfg Config) *LogMgr {
	t.Helper()
	wf, err := wal.OpenWalFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { wf.Close() })

	lm, err := NewLogMgr(wf, cfg)
	require.NoError(t, err)
	return lm
}

func TestAppendBeginTracksActiveSet(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	rec, err := lm.AppendBegin(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.LSN)
	assert.Equal(t, log_record.START, rec.Kind)
	assert.True(t, lm.IsActive(1))

	_, err = lm.AppendBegin(2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, lm.ActiveTx())
}

func TestDuplicateBeginFails(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	_, err := lm.AppendBegin(1)
	require.NoError(t, err)

	_, err = lm.AppendBegin(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTx)

	// The failed begin must not consume an LSN.
	assert.Equal(t, int64(1), lm.LastLSN())
}

func TestOperationRequiresOpenTransaction(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	_, err := lm.AppendOperation(5, "accounts", int64(1), nil, log_record.RowImage{"balance": int64(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTx)
}

func TestCommitAbortWithoutBeginIsProtocolError(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	_, err := lm.AppendCommit(9)
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = lm.AppendAbort(9)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestCommitClosesTransaction(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	_, err := lm.AppendBegin(1)
	require.NoError(t, err)
	_, err = lm.AppendCommit(1)
	require.NoError(t, err)
	assert.False(t, lm.IsActive(1))

	// COMMITTED is terminal: the same id can neither close again nor
	// re-enter ACTIVE.
	_, err = lm.AppendCommit(1)
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = lm.AppendBegin(1)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestLSNSequenceIsGapFree(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	_, err := lm.AppendBegin(1)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err = lm.AppendOperation(1, "t", int64(i),
			log_record.RowImage{"v": int64(i)}, log_record.RowImage{"v": int64(i + 1)})
		require.NoError(t, err)
	}
	_, err = lm.AppendCommit(1)
	require.NoError(t, err)

	recs := lm.BufferSnapshot()
	require.Len(t, recs, 12)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.LSN)
	}
}

func TestConcurrentAppendsKeepLSNsUniqueAndGapFree(t *testing.T) {
	lm := newTestLogMgr(t, DefaultConfig())

	const workers = 8
	const opsPerWorker = 50

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		txid := int64(w + 1)
		g.Go(func() error {
			if _, err := lm.AppendBegin(txid); err != nil {
				return err
			}
			for i := 0; i < opsPerWorker; i++ {
				_, err := lm.AppendOperation(txid, "t", txid,
					log_record.RowImage{"v": int64(i)}, log_record.RowImage{"v": int64(i + 1)})
				if err != nil {
					return err
				}
			}
			_, err := lm.AppendCommit(txid)
			return err
		})
	}
	require.NoError(t, g.Wait())

	recs := lm.BufferSnapshot()
	total := workers * (opsPerWorker + 2)
	require.Len(t, recs, total)

	seen := make(map[int64]bool, total)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.LSN, "buffer order must equal LSN order")
		assert.False(t, seen[rec.LSN], "duplicate LSN %d", rec.LSN)
		seen[rec.LSN] = true
	}
	assert.Equal(t, int64(total), lm.LastLSN())
}

func TestTimestampsNeverMoveBackward(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{
		base,
		base.Add(5 * time.Second),
		base.Add(2 * time.Second), // clock stepped back
		base.Add(8 * time.Second),
	}
	i := 0
	cfg := DefaultConfig()
	cfg.Clock = func() time.Time {
		ts := ticks[i%len(ticks)]
		i++
		return ts
	}
	lm := newTestLogMgr(t, cfg)

	_, err := lm.AppendBegin(1)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		_, err = lm.AppendOperation(1, "t", int64(j),
			log_record.RowImage{"v": int64(j)}, log_record.RowImage{"v": int64(j + 1)})
		require.NoError(t, err)
	}

	recs := lm.BufferSnapshot()
	for j := 1; j < len(recs); j++ {
		assert.False(t, recs[j].Timestamp.Before(recs[j-1].Timestamp),
			fmt.Sprintf("timestamp at LSN %d moved backward", recs[j].LSN))
	}
}

func TestNewLogMgrRequiresWalFile(t *testing.T) {
	_, err := NewLogMgr(nil, DefaultConfig())
	assert.Error(t, err)
}
