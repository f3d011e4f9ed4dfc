package nasbench

import (
	"errors"
	"fmt"
	"testing"
)

const (
	archA = "|nor_conv_3x3~0|+|nor_conv_1x1~0|skip_connect~1|+|none~0|none~1|avg_pool_3x3~2|"
	archB = "|avg_pool_3x3~0|+|none~0|none~1|+|skip_connect~0|nor_conv_3x3~1|nor_conv_1x1~2|"
	archC = "|skip_connect~0|+|skip_connect~0|skip_connect~1|+|skip_connect~0|skip_connect~1|skip_connect~2|"
)

type trialOpts struct {
	seed     int
	epochs   int
	acc      float64
	flops    float64
	params   float64
	latency  []float64
	times    []float64
	evalSets []string
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// newTrial builds a trial whose accuracy is constant over train epochs and
// equals acc+1 on every evaluation set.
func newTrial(t *testing.T, arch string, o trialOpts) *TrialRecord {
	t.Helper()
	if o.epochs == 0 {
		o.epochs = 3
	}
	rec, err := NewTrialRecord(TrialSpec{
		Name:        fmt.Sprintf("arch-%d", o.seed),
		NetState:    []byte(fmt.Sprintf("weights-%d", o.seed)),
		TrainAcc1:   filled(o.epochs, o.acc),
		TrainLosses: filled(o.epochs, 1-o.acc/100),
		Params:      o.params,
		FLOPs:       o.flops,
		ArchConfig:  ArchConfig{Channel: 16, NumCells: 5, ArchStr: arch, ClassNum: 10},
		Seed:        o.seed,
		Epochs:      o.epochs,
		Latency:     o.latency,
	})
	if err != nil {
		t.Fatalf("new trial: %v", err)
	}
	if o.times != nil {
		if err := rec.UpdateTrainInfo(filled(o.epochs, o.acc), nil, filled(o.epochs, 1-o.acc/100), o.times); err != nil {
			t.Fatalf("update train info: %v", err)
		}
	}
	if len(o.evalSets) > 0 {
		accs := make(map[string]float64)
		losses := make(map[string]float64)
		for _, set := range o.evalSets {
			for i := 0; i < o.epochs; i++ {
				accs[evalKey(set, i)] = o.acc + 1
				losses[evalKey(set, i)] = 0.5
			}
		}
		if err := rec.UpdateEval(accs, losses, nil); err != nil {
			t.Fatalf("update eval: %v", err)
		}
	}
	return rec
}

func mustUpdate(t *testing.T, a *ArchResults, dataset string, rec *TrialRecord) {
	t.Helper()
	if err := a.Update(dataset, rec.Seed(), rec); err != nil {
		t.Fatalf("update %s/%d: %v", dataset, rec.Seed(), err)
	}
}

// newArch builds an aggregate with two seeds per dataset. Accuracies are
// base and base+2, so the seed average is base+1.
func newArch(t *testing.T, index int, arch string, base, flops float64, epochs int) *ArchResults {
	t.Helper()
	a := NewArchResults(index, arch)
	sets := map[string][]string{
		DatasetCifar10Valid: {SetValid, SetOriTest},
		DatasetCifar10:      {SetOriTest},
		DatasetCifar100:     {SetValid, SetTest, SetOriTest},
	}
	for dataset, evalSets := range sets {
		for i, seed := range []int{777, 888} {
			mustUpdate(t, a, dataset, newTrial(t, arch, trialOpts{
				seed:     seed,
				epochs:   epochs,
				acc:      base + float64(2*i),
				flops:    flops,
				params:   flops / 100,
				times:    filled(epochs, 2),
				evalSets: evalSets,
			}))
		}
	}
	return a
}

func pairOf(t *testing.T, index int, arch string, base, flops float64) ArchivePair {
	t.Helper()
	full := newArch(t, index, arch, base, flops, 4).State()
	less := newArch(t, index, arch, base-10, flops, 2).State()
	return ArchivePair{Full: &full, Less: &less}
}

// sampleSnapshot has three architectures; 0 and 2 are evaluated.
func sampleSnapshot(t *testing.T) Snapshot {
	t.Helper()
	return Snapshot{
		MetaArchs: []string{archA, archB, archC},
		Arch2Infos: map[int]ArchivePair{
			0: pairOf(t, 0, archA, 90, 100),
			2: pairOf(t, 2, archC, 93, 40),
		},
		EvaluatedIndexes: []int{0, 2},
	}
}

func newSampleStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(sampleSnapshot(t), opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
