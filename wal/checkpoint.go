package wal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// CheckpointMeta is the single overwritten checkpoint descriptor. Timestamp
// is epoch milliseconds.
type CheckpointMeta struct {
	CheckpointLSN int64   `json:"checkpoint_lsn"`
	ActiveTx      []int64 `json:"active_tx"`
	Timestamp     int64   `json:"timestamp"`
}

// CheckpointFile persists CheckpointMeta as one JSON object, overwritten
// (not appended) on every checkpoint.
type CheckpointFile struct {
	mu   sync.Mutex
	path string
}

func OpenCheckpointFile(dir string) (*CheckpointFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return &CheckpointFile{path: filepath.Join(dir, CheckpointFileName)}, nil
}

// Load returns the stored metadata, or nil when no checkpoint has ever been
// taken.
func (c *CheckpointFile) Load() (*CheckpointMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Op: "load checkpoint", Err: err}
	}
	var meta CheckpointMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &Error{Op: "load checkpoint", Err: err}
	}
	return &meta, nil
}

// Store overwrites the metadata and fsyncs before returning.
func (c *CheckpointFile) Store(meta *CheckpointMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(meta)
	if err != nil {
		return &Error{Op: "store checkpoint", Err: err}
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Op: "store checkpoint", Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &Error{Op: "store checkpoint", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &Error{Op: "store checkpoint", Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "store checkpoint", Err: err}
	}
	return nil
}
