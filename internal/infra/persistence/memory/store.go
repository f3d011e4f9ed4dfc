// Package memory keeps a snapshot in process memory. It backs tests and
// short-lived tools that build a store without touching disk.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nasbench201/pkg/nasbench"
)

// Store holds one encoded snapshot. Encoding on Save keeps later caller
// mutations from leaking into the stored copy.
type Store struct {
	mu  sync.RWMutex
	doc []byte
}

// New returns a store seeded with snap; a zero snapshot leaves it empty.
func New(snap nasbench.Snapshot) (*Store, error) {
	s := &Store{}
	if snap.MetaArchs == nil {
		return s, nil
	}
	if err := s.Save(context.Background(), snap); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns a copy of the stored snapshot.
func (s *Store) Load(ctx context.Context) (nasbench.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nasbench.Snapshot{}, fmt.Errorf("%w: no snapshot saved", nasbench.ErrNotFound)
	}
	var snap nasbench.Snapshot
	if err := json.Unmarshal(s.doc, &snap); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, ctx.Err()
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snap nasbench.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
