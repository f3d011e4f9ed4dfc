// Package sqlite keeps benchmark snapshots in a single SQLite file using the
// pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"nasbench201/internal/infra/persistence"
	"nasbench201/pkg/nasbench"
)

const defaultPath = "nasbench201.db"

// Store reads and writes the architectures table. Save replaces the whole
// table in one transaction.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+persistence.Table+` (
		arch_index INTEGER PRIMARY KEY,
		arch_str TEXT NOT NULL UNIQUE,
		evaluated BOOLEAN NOT NULL,
		full_state BLOB,
		less_state BLOB
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s table: %w", persistence.Table, err)
	}
	return &Store{db: db, path: path}, nil
}

// Load reads every row back into a snapshot.
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
			return nasbench.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("iterate architectures: %w", err)
	}
	return persistence.FromRows(out)
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snap nasbench.Snapshot) (retErr error) {
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
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+persistence.Table); err != nil {
		return fmt.Errorf("clear architectures: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+persistence.Table+`(arch_index, arch_str, evaluated, full_state, less_state) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Index, r.Arch, r.Evaluated, r.FullState, r.LessState); err != nil {
			return fmt.Errorf("insert %06d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file.
func (s *Store) Path() string { return s.path }
