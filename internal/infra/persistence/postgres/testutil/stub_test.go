package testutil

import (
	"context"
	"testing"
)

func TestStubDBInsertSelectAndRollback(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO architectures (arch_index, arch_str) VALUES ($1,$2)", 0, "|none~0|"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE architectures"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(conn.Tables["architectures"]) != 0 {
		t.Fatalf("truncate left rows: %v", conn.Tables)
	}
	_ = tx.Rollback()

	rows, err := db.QueryContext(ctx, "select arch_index, arch_str from architectures order by arch_index")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		t.Fatalf("rollback should restore the row")
	}
	var idx int
	var arch string
	if err := rows.Scan(&idx, &arch); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if idx != 0 || arch != "|none~0|" {
		t.Fatalf("unexpected row %d %q", idx, arch)
	}
}
