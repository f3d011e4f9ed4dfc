package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"nasbench201/internal/infra/persistence"
	"nasbench201/pkg/nasbench"
)

func sampleSnapshot() nasbench.Snapshot {
	full := nasbench.ArchState{ArchIndex: 1, ArchStr: "|skip_connect~0|", DatasetSeed: map[string][]int{}}
	less := nasbench.ArchState{ArchIndex: 1, ArchStr: "|skip_connect~0|", DatasetSeed: map[string][]int{}}
	return nasbench.Snapshot{
		MetaArchs:        []string{"|none~0|", "|skip_connect~0|"},
		Arch2Infos:       map[int]nasbench.ArchivePair{1: {Full: &full, Less: &less}},
		EvaluatedIndexes: []int{1},
	}
}

func TestSQLiteStoreSaveAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bench.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
	snap, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.MetaArchs) != 2 || snap.MetaArchs[1] != "|skip_connect~0|" {
		t.Fatalf("unexpected meta archs %v", snap.MetaArchs)
	}
	if len(snap.EvaluatedIndexes) != 1 || snap.EvaluatedIndexes[0] != 1 {
		t.Fatalf("unexpected evaluated %v", snap.EvaluatedIndexes)
	}
	if pair, ok := snap.Arch2Infos[1]; !ok || pair.Full == nil || pair.Less == nil {
		t.Fatalf("missing results for 1: %+v", snap.Arch2Infos)
	}
	if _, err := nasbench.New(snap); err != nil {
		t.Fatalf("loaded snapshot should build a store: %v", err)
	}
}

func TestSQLiteStoreSaveReplacesContents(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, nasbench.Snapshot{MetaArchs: []string{"|none~0|"}, Arch2Infos: map[int]nasbench.ArchivePair{}, EvaluatedIndexes: []int{}}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM ` + persistence.Table).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row after replace, got %d", n)
	}
}

func TestSQLiteStoreRejectsDuplicateArchitectures(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	dup := nasbench.Snapshot{MetaArchs: []string{"|none~0|", "|none~0|"}, Arch2Infos: map[int]nasbench.ArchivePair{}, EvaluatedIndexes: []int{}}
	if err := store.Save(ctx, dup); err == nil {
		t.Fatalf("expected unique constraint failure")
	}
	snap, err := store.Load(ctx)
	if err != nil || len(snap.MetaArchs) != 2 || snap.MetaArchs[1] != "|skip_connect~0|" {
		t.Fatalf("failed save must roll back: %v %v", snap.MetaArchs, err)
	}
}

func TestSQLiteStoreDetectsGaps(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.DB().Exec(`INSERT INTO ` + persistence.Table + `(arch_index, arch_str, evaluated) VALUES(3, 'x', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, nasbench.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}
