package transaction_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duraDB/log"
	"duraDB/log_record"
	"duraDB/storage"
	"duraDB/transaction"
	"duraDB/wal"
)

func openWithThreshold(t *testing.T, threshold int) (*transaction.Mgr, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := log.DefaultConfig()
	cfg.CheckpointThreshold = threshold
	tm, err := transaction.Open(dir, storage.NewMemEngine(), cfg)
	require.NoError(t, err)
	return tm, dir
}

func metaExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, wal.CheckpointFileName))
	return err == nil
}

func TestCommitAtThresholdTriggersCheckpoint(t *testing.T) {
	tm, dir := openWithThreshold(t, 3)

	require.NoError(t, tm.Begin(1))
	require.NoError(t, tm.RecordOperation(1, "t", int64(1),
		log_record.RowImage{"v": int64(1)}, log_record.RowImage{"v": int64(2)}))
	require.NoError(t, tm.RecordOperation(1, "t", int64(1),
		log_record.RowImage{"v": int64(2)}, log_record.RowImage{"v": int64(3)}))
	require.False(t, metaExists(dir), "operations alone must not checkpoint")

	// The commit record pushes the buffer to the threshold.
	require.NoError(t, tm.Commit(1))

	assert.Equal(t, 0, tm.LogMgr().BufferLen())
	assert.True(t, metaExists(dir))

	recs, err := tm.LogMgr().WalFile().Scan()
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, log_record.CHECKPOINT, recs[len(recs)-1].Kind)
}

func TestCommitBelowThresholdDoesNotCheckpoint(t *testing.T) {
	tm, dir := openWithThreshold(t, 10)

	require.NoError(t, tm.Begin(1))
	require.NoError(t, tm.RecordOperation(1, "t", int64(1),
		log_record.RowImage{"v": int64(1)}, log_record.RowImage{"v": int64(2)}))
	require.NoError(t, tm.Commit(1))

	assert.Equal(t, 3, tm.LogMgr().BufferLen())
	assert.False(t, metaExists(dir))
}

func TestNonCommitOperationsNeverCheckpoint(t *testing.T) {
	tm, dir := openWithThreshold(t, 3)

	require.NoError(t, tm.Begin(1))
	for i := 0; i < 8; i++ {
		require.NoError(t, tm.RecordOperation(1, "t", int64(i),
			log_record.RowImage{"v": int64(i)}, log_record.RowImage{"v": int64(i + 1)}))
	}
	require.NoError(t, tm.Begin(2))
	require.NoError(t, tm.Abort(2))

	assert.False(t, metaExists(dir))
	assert.Greater(t, tm.LogMgr().BufferLen(), 3)
}

func TestAbortWithoutBeginFails(t *testing.T) {
	tm, _ := openWithThreshold(t, 10)

	err := tm.Abort(42)
	assert.ErrorIs(t, err, log.ErrProtocol)
}

func TestBeginDuplicateSurfaces(t *testing.T) {
	tm, _ := openWithThreshold(t, 10)

	require.NoError(t, tm.Begin(1))
	err := tm.Begin(1)
	assert.ErrorIs(t, err, log.ErrDuplicateTx)
}

func TestAbortIsSynchronous(t *testing.T) {
	dir := t.TempDir()
	engine := storage.NewMemEngine()
	engine.CreateTable("t", []string{"id", "v"}, []storage.Row{
		{"id": int64(1), "v": int64(2)},
	})
	tm, err := transaction.Open(dir, engine, log.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, tm.Begin(1))
	require.NoError(t, tm.RecordOperation(1, "t", int64(1),
		log_record.RowImage{"v": int64(1)}, log_record.RowImage{"v": int64(2)}))

	// When Abort returns, the rollback has already landed in storage.
	require.NoError(t, tm.Abort(1))

	rows, _, err := engine.ReadRows("t", nil)
	require.NoError(t, err)
	assert.True(t, storage.ValueEqual(rows[0]["v"], int64(1)))
	assert.False(t, tm.LogMgr().IsActive(1))
}
