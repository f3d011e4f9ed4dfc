package testutil

import (
	"fmt"
	"testing"

	"nasbench201/pkg/nasbench"
)

// Fixture architectures. Index 1 is listed but never evaluated.
var FixtureArchs = []string{
	"|nor_conv_3x3~0|+|nor_conv_1x1~0|skip_connect~1|+|none~0|none~1|avg_pool_3x3~2|",
	"|avg_pool_3x3~0|+|none~0|none~1|+|skip_connect~0|nor_conv_3x3~1|nor_conv_1x1~2|",
	"|skip_connect~0|+|skip_connect~0|skip_connect~1|+|skip_connect~0|skip_connect~1|skip_connect~2|",
}

// FixtureSeeds are the seeds every evaluated architecture was trained with.
var FixtureSeeds = []int{777, 888}

// fixtureSets lists the evaluation sets recorded per dataset.
var fixtureSets = map[string][]string{
	nasbench.DatasetCifar10Valid: {nasbench.SetValid, nasbench.SetOriTest},
	nasbench.DatasetCifar10:      {nasbench.SetOriTest},
	nasbench.DatasetCifar100:     {nasbench.SetValid, nasbench.SetTest, nasbench.SetOriTest},
	nasbench.DatasetImageNet16:   {nasbench.SetValid, nasbench.SetTest},
}

type fixtureArch struct {
	base  float64
	flops float64
}

// Index 2 is the most accurate and the cheapest.
var fixtureEvaluated = map[int]fixtureArch{
	0: {base: 90, flops: 100},
	2: {base: 93, flops: 40},
}

// Snapshot builds a small benchmark: full results train for 4 epochs, less
// results for 2 epochs at 10 points lower accuracy. Seed 888 is 2 points
// above seed 777, so seed-averaged accuracy is base+1 on train and base+2 on
// every evaluation set.
func Snapshot() (nasbench.Snapshot, error) {
	snap := nasbench.Snapshot{
		MetaArchs:        append([]string(nil), FixtureArchs...),
		Arch2Infos:       make(map[int]nasbench.ArchivePair),
		EvaluatedIndexes: []int{},
	}
	for idx := range FixtureArchs {
		spec, ok := fixtureEvaluated[idx]
		if !ok {
			continue
		}
		full, err := fixtureResults(idx, spec.base, spec.flops, 4)
		if err != nil {
			return nasbench.Snapshot{}, err
		}
		less, err := fixtureResults(idx, spec.base-10, spec.flops, 2)
		if err != nil {
			return nasbench.Snapshot{}, err
		}
		fs, ls := full.State(), less.State()
		snap.Arch2Infos[idx] = nasbench.ArchivePair{Full: &fs, Less: &ls}
		snap.EvaluatedIndexes = append(snap.EvaluatedIndexes, idx)
	}
	return snap, nil
}

// MustSnapshot is Snapshot for tests.
func MustSnapshot(t testing.TB) nasbench.Snapshot {
	t.Helper()
	snap, err := Snapshot()
	if err != nil {
		t.Fatalf("build fixture snapshot: %v", err)
	}
	return snap
}

func fixtureResults(idx int, base, flops float64, epochs int) (*nasbench.ArchResults, error) {
	arch := FixtureArchs[idx]
	res := nasbench.NewArchResults(idx, arch)
	for dataset, sets := range fixtureSets {
		for i, seed := range FixtureSeeds {
			acc := base + float64(2*i)
			rec, err := fixtureTrial(arch, dataset, seed, acc, flops, epochs, sets)
			if err != nil {
				return nil, err
			}
			if err := res.Update(dataset, seed, rec); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

func fixtureTrial(arch, dataset string, seed int, acc, flops float64, epochs int, sets []string) (*nasbench.TrialRecord, error) {
	rec, err := nasbench.NewTrialRecord(nasbench.TrialSpec{
		Name:        fmt.Sprintf("%s-%d", dataset, seed),
		NetState:    []byte(fmt.Sprintf("weights-%s-%d", dataset, seed)),
		TrainAcc1:   repeat(epochs, acc),
		TrainLosses: repeat(epochs, 1-acc/100),
		Params:      flops / 100,
		FLOPs:       flops,
		ArchConfig:  nasbench.ArchConfig{Channel: 16, NumCells: 5, ArchStr: arch, ClassNum: 10},
		Seed:        seed,
		Epochs:      epochs,
		Latency:     []float64{0.01, 0.03},
	})
	if err != nil {
		return nil, err
	}
	if err := rec.UpdateTrainInfo(repeat(epochs, acc), nil, repeat(epochs, 1-acc/100), repeat(epochs, 2)); err != nil {
		return nil, err
	}
	accs := make(map[string]float64)
	losses := make(map[string]float64)
	times := make(map[string]float64)
	for _, set := range sets {
		for e := 0; e < epochs; e++ {
			key := fmt.Sprintf("%s@%d", set, e)
			accs[key] = acc + 1
			losses[key] = 0.5
			times[key] = 1
		}
	}
	if err := rec.UpdateEval(accs, losses, times); err != nil {
		return nil, err
	}
	return rec, nil
}

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
