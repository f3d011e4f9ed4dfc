package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"nasbench201/internal/blob"
	"nasbench201/pkg/nasbench"
)

const testArch = "|nor_conv_3x3~0|+|nor_conv_1x1~0|skip_connect~1|+|none~0|none~1|avg_pool_3x3~2|"

func archState(t *testing.T, index int, acc float64, epochs int) *nasbench.ArchState {
	t.Helper()
	a := nasbench.NewArchResults(index, testArch)
	for _, seed := range []int{777, 888} {
		curve := make([]float64, epochs)
		for i := range curve {
			curve[i] = acc
		}
		rec, err := nasbench.NewTrialRecord(nasbench.TrialSpec{
			Name:        "run",
			TrainAcc1:   curve,
			TrainLosses: curve,
			FLOPs:       10,
			Params:      0.1,
			Seed:        seed,
			Epochs:      epochs,
		})
		if err != nil {
			t.Fatalf("trial: %v", err)
		}
		if err := a.Update("cifar10", seed, rec); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	st := a.State()
	return &st
}

func pair(t *testing.T, index int, acc float64) nasbench.ArchivePair {
	return nasbench.ArchivePair{Full: archState(t, index, acc, 4), Less: archState(t, index, acc-10, 2)}
}

func TestKey(t *testing.T) {
	if got := Key(42); got != "000042-FULL.json" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, store := range []blob.Store{blob.NewMemory(), blob.NewMockS3ForTests()} {
		w := Writer{Store: store, Prefix: "nb201/"}
		info, err := w.Put(ctx, 3, pair(t, 3, 90))
		if err != nil {
			t.Fatalf("%s: put: %v", store.Driver(), err)
		}
		if info.Key != "nb201/000003-FULL.json" {
			t.Fatalf("%s: unexpected key %q", store.Driver(), info.Key)
		}
		got, err := Reader{Store: store, Prefix: "nb201/"}.Fetch(ctx, 3)
		if err != nil {
			t.Fatalf("%s: fetch: %v", store.Driver(), err)
		}
		if got.Full.ArchIndex != 3 || len(got.Less.AllResults) != 2 {
			t.Fatalf("%s: unexpected pair %+v", store.Driver(), got)
		}
		if _, err := w.Put(ctx, 3, pair(t, 3, 90)); !errors.Is(err, blob.ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", store.Driver(), err)
		}
	}
}

func TestFetchErrors(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	r := Reader{Store: store}
	if _, err := r.Fetch(ctx, 9); !errors.Is(err, nasbench.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, _ = store.Put(ctx, Key(1), bytes.NewReader([]byte("not json")), blob.PutOptions{})
	if _, err := r.Fetch(ctx, 1); !errors.Is(err, nasbench.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad json, got %v", err)
	}
	_, _ = store.Put(ctx, Key(2), bytes.NewReader([]byte(`{"full":{}}`)), blob.PutOptions{})
	if _, err := r.Fetch(ctx, 2); !errors.Is(err, nasbench.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing less, got %v", err)
	}
	if _, err := (Writer{Store: store}).Put(ctx, 4, nasbench.ArchivePair{}); !errors.Is(err, nasbench.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty pair, got %v", err)
	}
}

func TestExportThenReload(t *testing.T) {
	ctx := context.Background()
	snap := nasbench.Snapshot{
		MetaArchs:        []string{testArch, "|skip_connect~0|+|skip_connect~0|skip_connect~1|+|skip_connect~0|skip_connect~1|skip_connect~2|"},
		Arch2Infos:       map[int]nasbench.ArchivePair{0: pair(t, 0, 90), 1: pair(t, 1, 80)},
		EvaluatedIndexes: []int{0, 1},
	}
	src, err := nasbench.New(snap)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store := blob.NewMemory()
	n, err := Export(ctx, src, Writer{Store: store}, 2)
	if err != nil || n != 2 {
		t.Fatalf("export: %d %v", n, err)
	}
	list, _ := store.List(ctx, "")
	if len(list) != 2 || list[1].Key != Key(1) {
		t.Fatalf("unexpected archive listing %+v", list)
	}

	snap.Arch2Infos[0] = pair(t, 0, 10)
	dst, err := nasbench.New(snap)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := dst.Reload(ctx, Reader{Store: store}, 0); err != nil {
		t.Fatalf("reload: %v", err)
	}
	m, err := dst.Metrics(0, "cifar10", nasbench.TrainSet, nasbench.LastEpoch, nasbench.RegimeFull, nasbench.SelectAverage())
	if err != nil || m.Accuracy != 90 {
		t.Fatalf("reload should restore exported accuracy 90, got %v (%v)", m.Accuracy, err)
	}

	if _, err := Export(ctx, src, Writer{Store: store}, 1); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected create-only export to fail, got %v", err)
	}
	if _, err := Export(ctx, src, Writer{Store: store, Overwrite: true}, 0); err != nil {
		t.Fatalf("overwrite export: %v", err)
	}
}
