package nasbench

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Well-known dataset and split names of the published benchmark.
const (
	DatasetCifar10Valid = "cifar10-valid"
	DatasetCifar10      = "cifar10"
	DatasetCifar100     = "cifar100"
	DatasetImageNet16   = "ImageNet16-120"

	SetValid   = "x-valid"
	SetTest    = "x-test"
	SetOriTest = "ori-test"
)

// Ceilings bound the cost of FindBest candidates. Nil fields are unbounded.
type Ceilings struct {
	FLOPs  *float64
	Params *float64
}

// FindBest scans the evaluated architectures in index order and returns the
// one with the highest seed-averaged accuracy on set, skipping candidates
// whose mean FLOPs or params exceed the ceilings. Ties keep the earlier
// index. It returns (-1, nil) when nothing qualifies.
func (s *Store) FindBest(dataset, set string, c Ceilings, regime Regime) (best int, acc *float64, err error) {
	defer s.observe(context.Background(), OpFindBest, time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(regime)
	if err != nil {
		return -1, nil, err
	}
	best = -1
	for _, idx := range s.evaluated {
		a, ok := t[idx]
		if !ok {
			return -1, nil, fmt.Errorf("%w: arch %d was not evaluated under %s", ErrNotFound, idx, regime)
		}
		cost, err := a.CompCosts(dataset)
		if err != nil {
			return -1, nil, err
		}
		if c.FLOPs != nil && cost.FLOPs > *c.FLOPs {
			continue
		}
		if c.Params != nil && cost.Params > *c.Params {
			continue
		}
		m, err := a.Metrics(dataset, set, LastEpoch, SelectAverage())
		if err != nil {
			return -1, nil, err
		}
		if best == -1 || m.Accuracy > *acc {
			best, acc = idx, lo.ToPtr(m.Accuracy)
		}
	}
	return best, acc, nil
}

// MoreInfo is the flattened summary returned by Store.MoreInfo. Fields of
// splits the dataset does not expose are nil.
type MoreInfo struct {
	TrainLoss        float64  `json:"train-loss"`
	TrainAccuracy    float64  `json:"train-accuracy"`
	TrainPerTime     *float64 `json:"train-per-time,omitempty"`
	TrainAllTime     *float64 `json:"train-all-time,omitempty"`
	ValidLoss        *float64 `json:"valid-loss,omitempty"`
	ValidAccuracy    *float64 `json:"valid-accuracy,omitempty"`
	ValidAllTime     *float64 `json:"valid-all-time,omitempty"`
	ValidPerTime     *float64 `json:"valid-per-time,omitempty"`
	TestLoss         *float64 `json:"test-loss,omitempty"`
	TestAccuracy     *float64 `json:"test-accuracy,omitempty"`
	EstValidLoss     *float64 `json:"est-valid-loss,omitempty"`
	EstValidAccuracy *float64 `json:"est-valid-accuracy,omitempty"`
}

// MoreInfo summarizes train, validation and test metrics of index on
// dataset. Which splits are read depends on the dataset; splits the trials do
// not expose are left out. A random selection draws one seed and uses it for
// every split.
func (s *Store) MoreInfo(index int, dataset string, epoch EpochRef, regime Regime, sel Selection) (info MoreInfo, err error) {
	defer s.observe(context.Background(), OpMoreInfo, time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return MoreInfo{}, err
	}
	if sel.IsRandom() {
		rng := sel.rng
		if rng == nil {
			rng = s.rng
		}
		seeds, err := a.DatasetSeeds(dataset)
		if err != nil {
			return MoreInfo{}, err
		}
		sel = SelectSeed(seeds[rng.IntN(len(seeds))])
	}
	split := func(set string) (*Metrics, error) {
		if !a.HasSplit(dataset, set) {
			return nil, nil
		}
		m, err := a.Metrics(dataset, set, epoch, sel)
		if err != nil {
			return nil, err
		}
		return &m, nil
	}

	train, err := a.Metrics(dataset, TrainSet, epoch, sel)
	if err != nil {
		return MoreInfo{}, err
	}
	info = MoreInfo{TrainLoss: train.Loss, TrainAccuracy: train.Accuracy}

	if dataset == DatasetCifar10Valid {
		valid, err := a.Metrics(dataset, SetValid, epoch, sel)
		if err != nil {
			return MoreInfo{}, err
		}
		test, err := split(SetOriTest)
		if err != nil {
			return MoreInfo{}, err
		}
		total := float64(train.Epoch + 1)
		info.TrainAllTime = train.AllTime
		info.TrainPerTime = perEpoch(train.AllTime, total)
		info.ValidLoss = lo.ToPtr(valid.Loss)
		info.ValidAccuracy = lo.ToPtr(valid.Accuracy)
		info.ValidAllTime = valid.AllTime
		info.ValidPerTime = perEpoch(valid.AllTime, total)
		if test != nil {
			info.TestLoss = lo.ToPtr(test.Loss)
			info.TestAccuracy = lo.ToPtr(test.Accuracy)
		}
		return info, nil
	}

	testSet := SetTest
	if dataset == DatasetCifar10 {
		testSet = SetOriTest
	}
	test, err := split(testSet)
	if err != nil {
		return MoreInfo{}, err
	}
	valid, err := split(SetValid)
	if err != nil {
		return MoreInfo{}, err
	}
	estValid, err := split(SetOriTest)
	if err != nil {
		return MoreInfo{}, err
	}
	if test != nil {
		info.TestLoss = lo.ToPtr(test.Loss)
		info.TestAccuracy = lo.ToPtr(test.Accuracy)
	}
	if valid != nil {
		info.ValidLoss = lo.ToPtr(valid.Loss)
		info.ValidAccuracy = lo.ToPtr(valid.Accuracy)
	}
	if estValid != nil {
		info.EstValidLoss = lo.ToPtr(estValid.Loss)
		info.EstValidAccuracy = lo.ToPtr(estValid.Accuracy)
	}
	return info, nil
}

func perEpoch(total *float64, epochs float64) *float64 {
	if total == nil {
		return nil
	}
	return lo.ToPtr(*total / epochs)
}

// Reload replaces both regime aggregates of index with the record fetched
// from src. The fetch and decode happen before the write lock is taken, so a
// failure leaves the previous aggregates in place.
func (s *Store) Reload(ctx context.Context, src ArchiveSource, index int) (err error) {
	defer s.observe(ctx, OpReload, time.Now(), &err)
	if src == nil {
		return fmt.Errorf("%w: nil archive source", ErrInvalidArgument)
	}
	if index < 0 || index >= len(s.metaArchs) {
		return fmt.Errorf("%w: index %d outside [0, %d)", ErrInvalidArgument, index, len(s.metaArchs))
	}
	pair, err := src.Fetch(ctx, index)
	if err != nil {
		s.logger.Warn("archive fetch failed", "index", index, "error", err)
		return fmt.Errorf("fetch archive %06d: %w", index, err)
	}
	full, less, err := decodePair(index, pair)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tables[RegimeFull][index] = full
	s.tables[RegimeLess][index] = less
	s.mu.Unlock()
	s.logger.Info("reloaded architecture", "index", index, "full_runs", len(full.results), "less_runs", len(less.results))
	return nil
}

// Export returns a snapshot of the current store contents.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		MetaArchs:        append([]string{}, s.metaArchs...),
		Arch2Infos:       make(map[int]ArchivePair, len(s.tables[RegimeFull])),
		EvaluatedIndexes: append([]int{}, s.evaluated...),
	}
	for idx, full := range s.tables[RegimeFull] {
		less, ok := s.tables[RegimeLess][idx]
		if !ok {
			continue
		}
		fs, ls := full.State(), less.State()
		snap.Arch2Infos[idx] = ArchivePair{Full: &fs, Less: &ls}
	}
	return snap
}
