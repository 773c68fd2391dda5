package recovery

import (
	"fmt"
	"time"
)

// Criteria selects the recovery mode. At most one field may be populated:
// a transaction id requests single-transaction undo, a timestamp requests
// point-in-time recovery, and the zero Criteria requests full crash
// recovery.
type Criteria struct {
	TxID      int64
	Timestamp time.Time
}

func (c Criteria) validate() error {
	if c.TxID > 0 && !c.Timestamp.IsZero() {
		return fmt.Errorf("recover criteria must name a transaction id or a timestamp, not both")
	}
	if c.TxID < 0 {
		return fmt.Errorf("invalid target transaction id %d", c.TxID)
	}
	return nil
}

// TargetNotFoundError reports that the transaction named by Criteria.TxID
// has no START record anywhere in history. Recovery proceeds with the
// conservative fallback of rolling back to the start of history; the caller
// decides whether that degraded outcome is acceptable.
type TargetNotFoundError struct {
	TxID int64
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("transaction %d START not found in logs; rolled back to start of history", e.TxID)
}
