// Package postgres keeps benchmark snapshots in Postgres through the pgx
// database/sql driver. Aggregates are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"nasbench201/internal/infra/persistence"
	"nasbench201/pkg/nasbench"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/nasbench201?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store reads and writes the architectures table.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open connects to dsn (defaulting to a local database) and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + persistence.Table + ` (
		arch_index INTEGER PRIMARY KEY,
		arch_str TEXT NOT NULL UNIQUE,
		evaluated BOOLEAN NOT NULL,
		full_state JSONB,
		less_state JSONB
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s table: %w", persistence.Table, err)
	}
	return nil
}

// Load reads the stored snapshot.
func (s *Store) Load(ctx context.Context) (nasbench.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT arch_index, arch_str, evaluated, full_state, less_state FROM `+persistence.Table+` ORDER BY arch_index`)
	if err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("select architectures: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []persistence.Row
	for rows.Next() {
		var r persistence.Row
		if err := rows.Scan(&r.Index, &r.Arch, &r.Evaluated, &r.FullState, &r.LessState); err != nil {
			return nasbench.Snapshot{}, fmt.Errorf("scan architecture: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("iterate architectures: %w", err)
	}
	return persistence.FromRows(out)
}

// Save truncates the table and writes snap in one transaction.
func (s *Store) Save(ctx context.Context, snap nasbench.Snapshot) error {
	rows, err := persistence.ToRows(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE `+persistence.Table); err != nil {
		return fmt.Errorf("truncate architectures: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+persistence.Table+`(arch_index, arch_str, evaluated, full_state, less_state) VALUES($1,$2,$3,$4,$5)`,
			r.Index, r.Arch, r.Evaluated, jsonArg(r.FullState), jsonArg(r.LessState)); err != nil {
			return fmt.Errorf("insert %06d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// jsonArg sends absent documents as NULL rather than an empty JSONB value.
func jsonArg(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sql.Open function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
