package nasbench

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

type trialKey struct {
	dataset string
	seed    int
}

// ArchResults owns every trial of one architecture under one regime, keyed
// by dataset and seed. It is not safe for concurrent mutation; Store guards
// the instances it owns.
type ArchResults struct {
	archIndex    int
	archStr      string
	datasetSeeds map[string][]int
	results      map[trialKey]*TrialRecord
	clearNetDone bool
}

// CostInfo aggregates the cost metrics of one dataset. Latency is nil when no
// trial measured a positive latency. Times folds TrialRecord.Times.
type CostInfo struct {
	FLOPs   float64             `json:"flops"`
	Params  float64             `json:"params"`
	Latency *float64            `json:"latency"`
	Times   map[string]*float64 `json:"times,omitempty"`
}

// TrialEntry is one (dataset, seed) element of ArchState.AllResults.
type TrialEntry struct {
	Dataset string     `json:"dataset"`
	Seed    int        `json:"seed"`
	Result  TrialState `json:"result"`
}

// ArchState is the serialized form of ArchResults.
type ArchState struct {
	ArchIndex    int              `json:"arch_index"`
	ArchStr      string           `json:"arch_str"`
	DatasetSeed  map[string][]int `json:"dataset_seed"`
	AllResults   []TrialEntry     `json:"all_results"`
	ClearNetDone bool             `json:"clear_net_done"`
}

// NewArchResults returns an empty aggregate.
func NewArchResults(archIndex int, archStr string) *ArchResults {
	return &ArchResults{
		archIndex:    archIndex,
		archStr:      archStr,
		datasetSeeds: make(map[string][]int),
		results:      make(map[trialKey]*TrialRecord),
	}
}

// NewArchResultsFromState restores an aggregate. Trials are inserted through
// Update so the duplicate and epoch-budget invariants hold for loaded data.
func NewArchResultsFromState(st ArchState) (*ArchResults, error) {
	a := NewArchResults(st.ArchIndex, st.ArchStr)
	for _, entry := range st.AllResults {
		trial, err := NewTrialRecordFromState(entry.Result)
		if err != nil {
			return nil, fmt.Errorf("arch %06d %s/%d: %w", st.ArchIndex, entry.Dataset, entry.Seed, err)
		}
		if err := a.Update(entry.Dataset, entry.Seed, trial); err != nil {
			return nil, err
		}
	}
	if len(st.DatasetSeed) != len(a.datasetSeeds) {
		return nil, fmt.Errorf("%w: arch %06d dataset_seed lists %d datasets, results cover %d", ErrInconsistentState, st.ArchIndex, len(st.DatasetSeed), len(a.datasetSeeds))
	}
	for dataset, seeds := range st.DatasetSeed {
		want := slices.Sorted(slices.Values(seeds))
		if !slices.Equal(want, a.datasetSeeds[dataset]) {
			return nil, fmt.Errorf("%w: arch %06d seeds of %s disagree with results", ErrInconsistentState, st.ArchIndex, dataset)
		}
	}
	a.clearNetDone = st.ClearNetDone
	return a, nil
}

// State returns the serialized form. Entries are ordered by dataset, then seed.
func (a *ArchResults) State() ArchState {
	st := ArchState{
		ArchIndex:    a.archIndex,
		ArchStr:      a.archStr,
		DatasetSeed:  make(map[string][]int, len(a.datasetSeeds)),
		AllResults:   make([]TrialEntry, 0, len(a.results)),
		ClearNetDone: a.clearNetDone,
	}
	for _, dataset := range a.DatasetNames() {
		seeds := a.datasetSeeds[dataset]
		st.DatasetSeed[dataset] = slices.Clone(seeds)
		for _, seed := range seeds {
			st.AllResults = append(st.AllResults, TrialEntry{
				Dataset: dataset,
				Seed:    seed,
				Result:  a.results[trialKey{dataset, seed}].State(),
			})
		}
	}
	return st
}

// Clone returns a deep copy.
func (a *ArchResults) Clone() *ArchResults {
	out := NewArchResults(a.archIndex, a.archStr)
	for dataset, seeds := range a.datasetSeeds {
		out.datasetSeeds[dataset] = slices.Clone(seeds)
	}
	for key, trial := range a.results {
		out.results[key] = trial.clone()
	}
	out.clearNetDone = a.clearNetDone
	return out
}

// ArchIndex returns the architecture index.
func (a *ArchResults) ArchIndex() int { return a.archIndex }

// ArchStr returns the architecture encoding.
func (a *ArchResults) ArchStr() string { return a.archStr }

// IndexString renders an architecture index zero-padded to six digits, the
// form used in archive names.
func IndexString(index int) string { return fmt.Sprintf("%06d", index) }

// ArchIndexString is IndexString of the aggregate's index.
func (a *ArchResults) ArchIndexString() string { return IndexString(a.archIndex) }

// Cleared reports whether ClearParams ran since the last Update.
func (a *ArchResults) Cleared() bool { return a.clearNetDone }

// Update inserts the trial for (dataset, seed).
func (a *ArchResults) Update(dataset string, seed int, trial *TrialRecord) error {
	if trial == nil {
		return fmt.Errorf("%w: nil trial for %s/%d", ErrInvalidArgument, dataset, seed)
	}
	key := trialKey{dataset, seed}
	if _, dup := a.results[key]; dup {
		return fmt.Errorf("%w: arch %06d already has seed %d on %s", ErrInconsistentState, a.archIndex, seed, dataset)
	}
	if seeds := a.datasetSeeds[dataset]; len(seeds) > 0 {
		existing := a.results[trialKey{dataset, seeds[0]}].TotalEpoch()
		if existing != trial.TotalEpoch() {
			return fmt.Errorf("%w: arch %06d on %s mixes %d and %d epochs", ErrInconsistentState, a.archIndex, dataset, existing, trial.TotalEpoch())
		}
	}
	seeds := append(a.datasetSeeds[dataset], seed)
	slices.Sort(seeds)
	a.datasetSeeds[dataset] = seeds
	a.results[key] = trial
	a.clearNetDone = false
	return nil
}

// DatasetNames lists datasets in lexical order.
func (a *ArchResults) DatasetNames() []string {
	names := lo.Keys(a.datasetSeeds)
	slices.Sort(names)
	return names
}

// DatasetSeeds returns the sorted seeds evaluated on dataset.
func (a *ArchResults) DatasetSeeds(dataset string) ([]int, error) {
	seeds, ok := a.datasetSeeds[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q for arch %06d", ErrNotFound, dataset, a.archIndex)
	}
	return slices.Clone(seeds), nil
}

func (a *ArchResults) trials(dataset string) ([]*TrialRecord, []int, error) {
	seeds, ok := a.datasetSeeds[dataset]
	if !ok {
		return nil, nil, fmt.Errorf("%w: dataset %q for arch %06d", ErrNotFound, dataset, a.archIndex)
	}
	out := make([]*TrialRecord, len(seeds))
	for i, seed := range seeds {
		out[i] = a.results[trialKey{dataset, seed}]
	}
	return out, seeds, nil
}

// HasSplit reports whether every trial on dataset exposes set. The training
// set is always present.
func (a *ArchResults) HasSplit(dataset, set string) bool {
	trials, _, err := a.trials(dataset)
	if err != nil {
		return false
	}
	if set == TrainSet {
		return true
	}
	for _, t := range trials {
		if !t.HasEvalSet(set) {
			return false
		}
	}
	return true
}

// Metrics reads set ("train" or an eval set) at epoch from every trial on
// dataset and reduces the results with sel.
func (a *ArchResults) Metrics(dataset, set string, epoch EpochRef, sel Selection) (Metrics, error) {
	if err := sel.validate(); err != nil {
		return Metrics{}, err
	}
	trials, seeds, err := a.trials(dataset)
	if err != nil {
		return Metrics{}, err
	}
	infos := make([]Metrics, len(trials))
	for i, t := range trials {
		if infos[i], err = t.metricsFor(set, epoch); err != nil {
			return Metrics{}, err
		}
	}
	switch sel.kind {
	case selectRandom:
		return infos[sel.rng.IntN(len(infos))], nil
	case selectSeed:
		i, ok := slices.BinarySearch(seeds, sel.seed)
		if !ok {
			return Metrics{}, fmt.Errorf("%w: seed %d not in %v", ErrNotFound, sel.seed, seeds)
		}
		return infos[i], nil
	default:
		return Metrics{
			Epoch:    infos[0].Epoch,
			Loss:     lo.MeanBy(infos, func(m Metrics) float64 { return m.Loss }),
			Accuracy: lo.MeanBy(infos, func(m Metrics) float64 { return m.Accuracy }),
			CurTime:  meanOptional(lo.Map(infos, func(m Metrics, _ int) *float64 { return m.CurTime })),
			AllTime:  meanOptional(lo.Map(infos, func(m Metrics, _ int) *float64 { return m.AllTime })),
		}, nil
	}
}

// CompCosts averages FLOPs, params, latency and timing over the trials on
// dataset. Trials without a positive latency do not contribute to Latency.
func (a *ArchResults) CompCosts(dataset string) (CostInfo, error) {
	trials, _, err := a.trials(dataset)
	if err != nil {
		return CostInfo{}, err
	}
	info := CostInfo{
		FLOPs:  lo.MeanBy(trials, func(t *TrialRecord) float64 { return t.FLOPs() }),
		Params: lo.MeanBy(trials, func(t *TrialRecord) float64 { return t.Params() }),
		Times:  make(map[string]*float64),
	}
	latencies := lo.Filter(lo.Map(trials, func(t *TrialRecord, _ int) float64 { return t.Latency() }), func(x float64, _ int) bool { return x > 0 })
	if len(latencies) > 0 {
		info.Latency = lo.ToPtr(lo.Mean(latencies))
	}
	timeInfos := make(map[string][]*float64)
	for _, t := range trials {
		for key, value := range t.Times() {
			timeInfos[key] = append(timeInfos[key], value)
		}
	}
	for key, values := range timeInfos {
		info.Times[key] = meanOptional(values)
	}
	return info, nil
}

// TotalEpoch returns the shared epoch budget of dataset, or of every dataset
// when dataset is empty.
func (a *ArchResults) TotalEpoch(dataset string) (int, error) {
	var epochs []int
	if dataset == "" {
		for _, name := range a.DatasetNames() {
			for _, seed := range a.datasetSeeds[name] {
				epochs = append(epochs, a.results[trialKey{name, seed}].TotalEpoch())
			}
		}
	} else {
		trials, _, err := a.trials(dataset)
		if err != nil {
			return 0, err
		}
		epochs = lo.Map(trials, func(t *TrialRecord, _ int) int { return t.TotalEpoch() })
	}
	if len(epochs) == 0 {
		return 0, fmt.Errorf("%w: arch %06d has no trials", ErrNotFound, a.archIndex)
	}
	if distinct := lo.Uniq(epochs); len(distinct) > 1 {
		return 0, fmt.Errorf("%w: arch %06d trials disagree on epochs %v", ErrInconsistentState, a.archIndex, distinct)
	}
	return epochs[len(epochs)-1], nil
}

// Query returns the trial for (dataset, seed).
func (a *ArchResults) Query(dataset string, seed int) (*TrialRecord, error) {
	t, ok := a.results[trialKey{dataset, seed}]
	if !ok {
		return nil, fmt.Errorf("%w: arch %06d has no seed %d on %s", ErrNotFound, a.archIndex, seed, dataset)
	}
	return t, nil
}

// QueryAll returns every trial on dataset keyed by seed.
func (a *ArchResults) QueryAll(dataset string) (map[int]*TrialRecord, error) {
	trials, seeds, err := a.trials(dataset)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*TrialRecord, len(trials))
	for i, seed := range seeds {
		out[seed] = trials[i]
	}
	return out, nil
}

// NetParam returns the weights of one trial.
func (a *ArchResults) NetParam(dataset string, seed int) ([]byte, error) {
	t, err := a.Query(dataset, seed)
	if err != nil {
		return nil, err
	}
	return t.NetParam(), nil
}

// NetParams returns the weights of every trial on dataset keyed by seed.
func (a *ArchResults) NetParams(dataset string) (map[int][]byte, error) {
	all, err := a.QueryAll(dataset)
	if err != nil {
		return nil, err
	}
	return lo.MapValues(all, func(t *TrialRecord, _ int) []byte { return t.NetParam() }), nil
}

// ClearParams drops every weight blob. It cannot be undone.
func (a *ArchResults) ClearParams() {
	for _, t := range a.results {
		t.clearNetState()
	}
	a.clearNetDone = true
}

func (a *ArchResults) String() string {
	return fmt.Sprintf("ArchResults(arch-index=%d, arch=%s, %d runs, clear=%t)", a.archIndex, a.archStr, len(a.results), a.clearNetDone)
}

// meanOptional averages optional values. A nil first value marks the field
// unavailable; otherwise nil entries are skipped.
func meanOptional(values []*float64) *float64 {
	if len(values) == 0 || values[0] == nil {
		return nil
	}
	present := lo.FilterMap(values, func(v *float64, _ int) (float64, bool) {
		if v == nil {
			return 0, false
		}
		return *v, true
	})
	return lo.ToPtr(lo.Mean(present))
}
