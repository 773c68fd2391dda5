package wal

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"duraDB/log_record"
)

// Default file names inside the log directory.
const (
	WalFileName        = "wal.log"
	CheckpointFileName = "last_checkpoint.json"
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("wal operation %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WalFile is the durable log: an append-only file of newline-delimited
// records. Appends are fsync'd before they are acknowledged; once a record
// is on disk it is never rewritten or reordered.
type WalFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func OpenWalFile(dir string) (*WalFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	path := filepath.Join(dir, WalFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return &WalFile{path: path, file: f}, nil
}

// AppendAll durably appends the records in order. Every record is encoded
// before the first byte is written, so an encoding failure cannot leave a
// partial batch; an I/O failure can leave a torn trailing line, which Scan
// discards.
func (w *WalFile) AppendAll(recs []*log_record.LogRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return &Error{Op: "append", Err: fmt.Errorf("wal file is closed")}
	}
	var buf bytes.Buffer
	for _, rec := range recs {
		line, err := rec.Encode()
		if err != nil {
			return &Error{Op: "append", Err: err}
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return &Error{Op: "append", Err: err}
	}
	if err := w.file.Sync(); err != nil {
		return &Error{Op: "append", Err: err}
	}
	return nil
}

// Scan reads the durable log from the beginning. A malformed or truncated
// final line is treated as a torn write and ignored; a malformed line with
// durable records after it means real corruption and fails the scan.
func (w *WalFile) Scan() ([]*log_record.LogRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Op: "scan", Err: err}
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Op: "scan", Err: err}
	}

	recs := make([]*log_record.LogRecord, 0, len(lines))
	for i, line := range lines {
		rec, err := log_record.Decode(line)
		if err != nil {
			if i == len(lines)-1 {
				// Torn trailing write from a crash mid-append.
				break
			}
			return nil, &Error{Op: "scan", Err: fmt.Errorf("corrupt record at line %d: %w", i+1, err)}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (w *WalFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return &Error{Op: "close", Err: err}
	}
	return nil
}
