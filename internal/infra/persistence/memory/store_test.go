package memory

import (
	"context"
	"errors"
	"testing"

	"nasbench201/pkg/nasbench"
)

func TestStoreCopiesSnapshots(t *testing.T) {
	ctx := context.Background()
	empty, err := New(nasbench.Snapshot{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := empty.Load(ctx); !errors.Is(err, nasbench.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	snap := nasbench.Snapshot{MetaArchs: []string{"|none~0|"}, Arch2Infos: map[int]nasbench.ArchivePair{}, EvaluatedIndexes: []int{}}
	s, err := New(snap)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snap.MetaArchs[0] = "mutated"
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.MetaArchs[0] != "|none~0|" || got.EvaluatedIndexes == nil || got.Arch2Infos == nil {
		t.Fatalf("stored snapshot changed or lost keys: %+v", got)
	}
	got.MetaArchs[0] = "again"
	again, _ := s.Load(ctx)
	if again.MetaArchs[0] != "|none~0|" {
		t.Fatalf("loaded snapshot aliases the store")
	}
}
