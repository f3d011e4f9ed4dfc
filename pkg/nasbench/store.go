// Package nasbench answers queries over a precomputed architecture benchmark:
// per-epoch metrics, seed-averaged statistics, cost metrics and best
// architecture search across two training regimes.
package nasbench

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ArchivePair holds the aggregates of one architecture for both regimes.
type ArchivePair struct {
	Full *ArchState `json:"full"`
	Less *ArchState `json:"less"`
}

// Snapshot is the wholesale input of a Store.
type Snapshot struct {
	MetaArchs        []string            `json:"meta_archs"`
	Arch2Infos       map[int]ArchivePair `json:"arch2infos"`
	EvaluatedIndexes []int               `json:"evaluated_indexes"`
}

// ArchiveSource supplies the per-architecture record used by Store.Reload.
type ArchiveSource interface {
	Fetch(ctx context.Context, index int) (ArchivePair, error)
}

// Store is the top-level query surface. Queries run under a read lock;
// Reload and ClearParams take the write lock. Values returned to callers are
// copies and never alias the store's tables.
type Store struct {
	mu        sync.RWMutex
	metaArchs []string
	archIndex map[string]int
	evaluated []int
	tables    map[Regime]map[int]*ArchResults

	logger  Logger
	metrics MetricsRecorder
	rng     *rand.Rand
	workers int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink. A nil recorder is ignored.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRandSource replaces the source used for random trial and index
// selection. Access to src is serialized by the store.
func WithRandSource(src rand.Source) Option {
	return func(s *Store) {
		if src != nil {
			s.rng = newSharedRand(src)
		}
	}
}

// WithSeed makes random selection reproducible.
func WithSeed(seed uint64) Option {
	return WithRandSource(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// WithDecodeConcurrency bounds the goroutines that decode the snapshot.
func WithDecodeConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New builds a store from a snapshot. The snapshot is not retained.
func New(snap Snapshot, opts ...Option) (*Store, error) {
	s := &Store{
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = newSharedRand(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	switch {
	case snap.MetaArchs == nil:
		return nil, fmt.Errorf("%w: snapshot is missing meta_archs", ErrInvalidArgument)
	case snap.Arch2Infos == nil:
		return nil, fmt.Errorf("%w: snapshot is missing arch2infos", ErrInvalidArgument)
	case snap.EvaluatedIndexes == nil:
		return nil, fmt.Errorf("%w: snapshot is missing evaluated_indexes", ErrInvalidArgument)
	}

	s.metaArchs = slices.Clone(snap.MetaArchs)
	s.archIndex = make(map[string]int, len(s.metaArchs))
	for idx, arch := range s.metaArchs {
		if prev, dup := s.archIndex[arch]; dup {
			return nil, fmt.Errorf("%w: arch %d %q already registered at %d", ErrInconsistentState, idx, arch, prev)
		}
		s.archIndex[arch] = idx
	}

	keys := make([]int, 0, len(snap.Arch2Infos))
	for k := range snap.Arch2Infos {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) > 0 && (keys[0] < 0 || keys[len(keys)-1] >= len(s.metaArchs)) {
		bad := keys[0]
		if bad >= 0 {
			bad = keys[len(keys)-1]
		}
		return nil, fmt.Errorf("%w: results for index %d outside [0, %d)", ErrInconsistentState, bad, len(s.metaArchs))
	}
	fulls := make([]*ArchResults, len(keys))
	lesses := make([]*ArchResults, len(keys))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, key := range keys {
		pair := snap.Arch2Infos[key]
		g.Go(func() error {
			var err error
			fulls[i], lesses[i], err = decodePair(key, pair)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.tables = map[Regime]map[int]*ArchResults{
		RegimeFull: make(map[int]*ArchResults, len(keys)),
		RegimeLess: make(map[int]*ArchResults, len(keys)),
	}
	for i, key := range keys {
		s.tables[RegimeFull][key] = fulls[i]
		s.tables[RegimeLess][key] = lesses[i]
	}

	s.evaluated = slices.Compact(slices.Sorted(slices.Values(snap.EvaluatedIndexes)))
	for _, idx := range s.evaluated {
		if idx < 0 || idx >= len(s.metaArchs) {
			return nil, fmt.Errorf("%w: evaluated index %d outside [0, %d)", ErrInconsistentState, idx, len(s.metaArchs))
		}
		if _, ok := snap.Arch2Infos[idx]; !ok {
			return nil, fmt.Errorf("%w: evaluated index %d has no results", ErrInconsistentState, idx)
		}
	}
	s.logger.Info("benchmark store ready", "architectures", len(s.metaArchs), "evaluated", len(s.evaluated), "results", len(keys))
	return s, nil
}

func decodePair(index int, pair ArchivePair) (*ArchResults, *ArchResults, error) {
	if pair.Full == nil || pair.Less == nil {
		return nil, nil, fmt.Errorf("%w: arch %06d needs both full and less results", ErrInvalidArgument, index)
	}
	full, err := NewArchResultsFromState(*pair.Full)
	if err != nil {
		return nil, nil, fmt.Errorf("decode full results of %06d: %w", index, err)
	}
	less, err := NewArchResultsFromState(*pair.Less)
	if err != nil {
		return nil, nil, fmt.Errorf("decode less results of %06d: %w", index, err)
	}
	return full, less, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%d/%d architectures)", len(s.evaluated), len(s.metaArchs))
}

// Len returns the size of the search space.
func (s *Store) Len() int { return len(s.metaArchs) }

// Arch returns the encoding of the index-th architecture.
func (s *Store) Arch(index int) (string, error) {
	if index < 0 || index >= len(s.metaArchs) {
		return "", fmt.Errorf("%w: index %d outside [0, %d)", ErrInvalidArgument, index, len(s.metaArchs))
	}
	return s.metaArchs[index], nil
}

// EvaluatedIndexes returns the sorted indexes that have results.
func (s *Store) EvaluatedIndexes() []int { return slices.Clone(s.evaluated) }

// RandomIndex draws an index of the search space, or -1 when it is empty.
// A nil rng uses the store's source.
func (s *Store) RandomIndex(rng *rand.Rand) int {
	if len(s.metaArchs) == 0 {
		return -1
	}
	if rng == nil {
		rng = s.rng
	}
	return rng.IntN(len(s.metaArchs))
}

// table returns the regime table. Callers hold s.mu.
func (s *Store) table(regime Regime) (map[int]*ArchResults, error) {
	t, ok := s.tables[regime]
	if !ok {
		return nil, fmt.Errorf("%w: unknown regime %q", ErrInvalidArgument, regime)
	}
	return t, nil
}

// lookup returns the live aggregate. Callers hold s.mu.
func (s *Store) lookup(index int, regime Regime) (*ArchResults, error) {
	t, err := s.table(regime)
	if err != nil {
		return nil, err
	}
	a, ok := t[index]
	if !ok {
		return nil, fmt.Errorf("%w: arch %d was not evaluated under %s", ErrNotFound, index, regime)
	}
	return a, nil
}

// QueryByIndex returns a copy of the aggregate of index under regime.
func (s *Store) QueryByIndex(index int, regime Regime) (res *ArchResults, err error) {
	defer s.observe(context.Background(), OpQueryByIndex, time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// QueryTrials returns copies of every trial of index on dataset keyed by seed.
func (s *Store) QueryTrials(index int, dataset string, regime Regime) (map[int]*TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return nil, err
	}
	all, err := a.QueryAll(dataset)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*TrialRecord, len(all))
	for seed, t := range all {
		out[seed] = t.clone()
	}
	return out, nil
}

// NetParam returns the weights of one trial.
func (s *Store) NetParam(index int, dataset string, seed int, regime Regime) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return nil, err
	}
	return a.NetParam(dataset, seed)
}

// NetParams returns the weights of every trial on dataset keyed by seed.
func (s *Store) NetParams(index int, dataset string, regime Regime) (map[int][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return nil, err
	}
	return a.NetParams(dataset)
}

// NetConfig returns the instantiation descriptor of index on dataset, taken
// from the trial with the smallest seed of the full regime.
func (s *Store) NetConfig(index int, dataset string, decoder TopologyDecoder) (NetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, RegimeFull)
	if err != nil {
		return NetConfig{}, err
	}
	seeds, err := a.DatasetSeeds(dataset)
	if err != nil {
		return NetConfig{}, err
	}
	t, err := a.Query(dataset, seeds[0])
	if err != nil {
		return NetConfig{}, err
	}
	return t.Config(decoder)
}

// CostInfo returns the cost metrics of index on dataset.
func (s *Store) CostInfo(index int, dataset string, regime Regime) (CostInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return CostInfo{}, err
	}
	return a.CompCosts(dataset)
}

// Metrics runs ArchResults.Metrics for index. A random selection without a
// source uses the store's.
func (s *Store) Metrics(index int, dataset, set string, epoch EpochRef, regime Regime, sel Selection) (Metrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(index, regime)
	if err != nil {
		return Metrics{}, err
	}
	if sel.IsRandom() && sel.rng == nil {
		sel.rng = s.rng
	}
	return a.Metrics(dataset, set, epoch, sel)
}

// ClearParams drops the weights of every aggregate of regime.
func (s *Store) ClearParams(regime Regime) (err error) {
	defer s.observe(context.Background(), OpClearParams, time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(regime)
	if err != nil {
		return err
	}
	for _, a := range t {
		a.ClearParams()
	}
	s.logger.Info("cleared network parameters", "regime", regime, "architectures", len(t))
	return nil
}

func (s *Store) observe(ctx context.Context, op string, start time.Time, errp *error) {
	s.metrics.Observe(ctx, op, *errp == nil, time.Since(start))
}
