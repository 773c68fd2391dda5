package utils

import (
	"fmt"

	"duraDB/log_record"
)

// LogIterator walks a snapshot of log records backward, newest record
// first. Every reverse scan in recovery goes through this.
type LogIterator struct {
	recs       []*log_record.LogRecord
	currentPos int
}

func NewLogIterator(recs []*log_record.LogRecord) *LogIterator {
	return &LogIterator{recs: recs, currentPos: len(recs) - 1}
}

// HasNext indicates whether there's another record to read.
func (it *LogIterator) HasNext() bool {
	return it.currentPos >= 0
}

// Next fetches the next record, moving toward the start of history.
func (it *LogIterator) Next() (*log_record.LogRecord, error) {
	if it.currentPos < 0 {
		return nil, fmt.Errorf("no more log records")
	}
	rec := it.recs[it.currentPos]
	it.currentPos--
	return rec, nil
}

var _ Iterator[*log_record.LogRecord] = (*LogIterator)(nil)
