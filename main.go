package main

import (
	"fmt"
	syslog "log"
	"path/filepath"

	"duraDB/log"
	"duraDB/log_record"
	"duraDB/recovery"
	"duraDB/storage"
	"duraDB/transaction"
)

func main() {
	dbDir := filepath.Join(".", "mydb")

	engine := storage.NewMemEngine()
	engine.CreateTable("accounts", []string{"id", "balance"}, []storage.Row{
		{"id": int64(1), "balance": int64(3000)},
		{"id": int64(2), "balance": int64(4000)},
	})

	tm, err := transaction.Open(dbDir, engine, log.DefaultConfig())
	if err != nil {
		syslog.Fatalf("Failed to open recovery core: %v", err)
	}

	// T1 transfers money and commits.
	if err := tm.Begin(1); err != nil {
		syslog.Fatalf("Failed to begin T1: %v", err)
	}
	err = tm.RecordOperation(1, "accounts", int64(1),
		log_record.RowImage{"id": int64(1), "balance": int64(3000)},
		log_record.RowImage{"id": int64(1), "balance": int64(5000)})
	if err != nil {
		syslog.Fatalf("Failed to record T1 operation: %v", err)
	}
	applyUpdate(engine, "accounts", int64(1), storage.Row{"id": int64(1), "balance": int64(5000)})
	if err := tm.SaveCheckpoint(); err != nil {
		syslog.Fatalf("Failed to checkpoint: %v", err)
	}
	if err := tm.Commit(1); err != nil {
		syslog.Fatalf("Failed to commit T1: %v", err)
	}

	// T2 changes a balance, then thinks better of it.
	if err := tm.Begin(2); err != nil {
		syslog.Fatalf("Failed to begin T2: %v", err)
	}
	err = tm.RecordOperation(2, "accounts", int64(2),
		log_record.RowImage{"id": int64(2), "balance": int64(4000)},
		log_record.RowImage{"id": int64(2), "balance": int64(7000)})
	if err != nil {
		syslog.Fatalf("Failed to record T2 operation: %v", err)
	}
	applyUpdate(engine, "accounts", int64(2), storage.Row{"id": int64(2), "balance": int64(7000)})
	if err := tm.Abort(2); err != nil {
		syslog.Fatalf("Failed to abort T2: %v", err)
	}

	// Replay everything from the durable log, as a restart would.
	if err := tm.Recover(recovery.Criteria{}); err != nil {
		syslog.Fatalf("Crash recovery failed: %v", err)
	}

	rows, _, err := engine.ReadRows("accounts", nil)
	if err != nil {
		syslog.Fatalf("Failed to read accounts: %v", err)
	}
	fmt.Println("accounts after recovery:")
	for _, row := range rows {
		fmt.Printf("  id=%v balance=%v\n", row["id"], row["balance"])
	}
	fmt.Printf("active transactions: %v\n", tm.LogMgr().ActiveTx())
}

// applyUpdate mirrors what a query executor would do with the new row image.
func applyUpdate(engine *storage.MemEngine, table string, id any, row storage.Row) {
	conds := []storage.Condition{{Column: "id", Value: id}}
	if _, err := engine.DeleteRows(table, conds); err != nil {
		syslog.Fatalf("Failed to apply update to %s: %v", table, err)
	}
	if err := engine.InsertRows(table, []string{"id", "balance"}, []storage.Row{row}); err != nil {
		syslog.Fatalf("Failed to apply update to %s: %v", table, err)
	}
}
