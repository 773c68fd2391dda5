package log_record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// wireRecord is the durable-log shape of a LogRecord: one JSON object per
// line, absent fields omitted rather than written as null, kind rendered by
// name and the timestamp as ISO-8601.
type wireRecord struct {
	LSN          int64    `json:"lsn"`
	TxID         int64    `json:"txid,omitempty"`
	Kind         string   `json:"kind"`
	Timestamp    string   `json:"timestamp"`
	Table        string   `json:"table,omitempty"`
	Key          any      `json:"key,omitempty"`
	OldValue     RowImage `json:"old_value,omitempty"`
	NewValue     RowImage `json:"new_value,omitempty"`
	Compensation bool     `json:"compensation,omitempty"`
	ActiveTx     []int64  `json:"active_transactions,omitempty"`
}

// Encode serializes the record as a single JSON line (no trailing newline).
func (r *LogRecord) Encode() ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("refusing to encode invalid record: %w", err)
	}
	w := wireRecord{
		LSN:          r.LSN,
		TxID:         r.TxID,
		Kind:         r.Kind.String(),
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
		Table:        r.Table,
		Key:          r.Key,
		OldValue:     r.OldValue,
		NewValue:     r.NewValue,
		Compensation: r.Compensation,
		ActiveTx:     r.ActiveTx,
	}
	return json.Marshal(w)
}

// Decode parses one durable-log line back into a LogRecord. The decode is
// strict: unknown fields, unknown kinds and records violating construction
// invariants are all rejected rather than patched over.
func Decode(line []byte) (*LogRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("malformed log record: %w", err)
	}
	kind, err := KindFromName(w.Kind)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("malformed log record timestamp %q: %w", w.Timestamp, err)
	}
	rec := &LogRecord{
		LSN:          w.LSN,
		TxID:         w.TxID,
		Kind:         kind,
		Timestamp:    ts,
		Table:        w.Table,
		Key:          normalizeValue(w.Key),
		OldValue:     normalizeImage(w.OldValue),
		NewValue:     normalizeImage(w.NewValue),
		Compensation: w.Compensation,
		ActiveTx:     w.ActiveTx,
	}
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("malformed log record: %w", err)
	}
	return rec, nil
}

// normalizeValue collapses json.Number into int64 where the value is
// integral, float64 otherwise, so values survive an encode/decode round trip
// comparable to what was appended.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, elem := range t {
			t[k] = normalizeValue(elem)
		}
		return t
	case []any:
		for i, elem := range t {
			t[i] = normalizeValue(elem)
		}
		return t
	default:
		return v
	}
}

func normalizeImage(img RowImage) RowImage {
	if img == nil {
		return nil
	}
	for k, v := range img {
		img[k] = normalizeValue(v)
	}
	return img
}
