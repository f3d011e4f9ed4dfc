package nasbench

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// LatencyUnavailable is returned by TrialRecord.Latency when no samples were
// recorded. It is distinct from a measured latency of zero.
const LatencyUnavailable = -1.0

// TrainSet is the set name that addresses the training curve.
const TrainSet = "train"

// ArchConfig describes the network that was instantiated for a trial.
type ArchConfig struct {
	Channel  int    `json:"channel"`
	NumCells int    `json:"num_cells"`
	ArchStr  string `json:"arch_str"`
	ClassNum int    `json:"class_num"`
}

// Metrics is one point of a training or evaluation curve. CurTime and AllTime
// are nil when timing was not recorded.
type Metrics struct {
	Epoch    int      `json:"iepoch"`
	Loss     float64  `json:"loss"`
	Accuracy float64  `json:"accuracy"`
	CurTime  *float64 `json:"cur_time"`
	AllTime  *float64 `json:"all_time"`
}

// NetConfig is the instantiation descriptor returned by TrialRecord.Config.
type NetConfig struct {
	Name       string `json:"name"`
	C          int    `json:"C"`
	N          int    `json:"N"`
	ArchStr    string `json:"arch_str,omitempty"`
	Genotype   any    `json:"genotype,omitempty"`
	NumClasses int    `json:"num_classes"`
}

// TopologyDecoder turns an architecture string into a topology value.
type TopologyDecoder func(archStr string) (any, error)

// TrialSpec carries the raw fields of a freshly recorded trial.
type TrialSpec struct {
	Name        string
	NetState    []byte
	TrainAcc1   []float64
	TrainLosses []float64
	Params      float64
	FLOPs       float64
	ArchConfig  ArchConfig
	Seed        int
	Epochs      int
	Latency     []float64
}

// TrialState is the serialized form of a TrialRecord.
type TrialState struct {
	Name        string             `json:"name"`
	NetState    []byte             `json:"net_state_dict,omitempty"`
	TrainAcc1   []float64          `json:"train_acc1es"`
	TrainAcc5   []float64          `json:"train_acc5es,omitempty"`
	TrainLosses []float64          `json:"train_losses"`
	TrainTimes  []float64          `json:"train_times,omitempty"`
	ArchConfig  ArchConfig         `json:"arch_config"`
	Params      float64            `json:"params"`
	FLOPs       float64            `json:"flop"`
	Seed        int                `json:"seed"`
	Epochs      int                `json:"epochs"`
	Latency     []float64          `json:"latency,omitempty"`
	EvalNames   []string           `json:"eval_names"`
	EvalAcc1    map[string]float64 `json:"eval_acc1es"`
	EvalLosses  map[string]float64 `json:"eval_losses"`
	EvalTimes   map[string]float64 `json:"eval_times,omitempty"`
}

// TrialRecord holds the curves of one training run of one architecture on
// one dataset with one seed.
type TrialRecord struct {
	st TrialState
}

// NewTrialRecord builds a record without evaluation sets; register them with
// UpdateEval.
func NewTrialRecord(spec TrialSpec) (*TrialRecord, error) {
	st := TrialState{
		Name:        spec.Name,
		NetState:    spec.NetState,
		TrainAcc1:   spec.TrainAcc1,
		TrainLosses: spec.TrainLosses,
		ArchConfig:  spec.ArchConfig,
		Params:      spec.Params,
		FLOPs:       spec.FLOPs,
		Seed:        spec.Seed,
		Epochs:      spec.Epochs,
		Latency:     spec.Latency,
	}
	return NewTrialRecordFromState(st)
}

// NewTrialRecordFromState restores a record, checking that every curve is
// dense over [0, epochs).
func NewTrialRecordFromState(st TrialState) (*TrialRecord, error) {
	if st.Epochs <= 0 {
		return nil, fmt.Errorf("%w: trial %q has %d epochs", ErrInvalidArgument, st.Name, st.Epochs)
	}
	if len(st.TrainAcc1) != st.Epochs || len(st.TrainLosses) != st.Epochs {
		return nil, fmt.Errorf("%w: trial %q train curves must have %d points", ErrInvalidArgument, st.Name, st.Epochs)
	}
	if st.TrainAcc5 != nil && len(st.TrainAcc5) != st.Epochs {
		return nil, fmt.Errorf("%w: trial %q top-5 curve must have %d points", ErrInvalidArgument, st.Name, st.Epochs)
	}
	if st.TrainTimes != nil && len(st.TrainTimes) != st.Epochs {
		return nil, fmt.Errorf("%w: trial %q train times must have %d points", ErrInvalidArgument, st.Name, st.Epochs)
	}
	seen := make(map[string]struct{}, len(st.EvalNames))
	for _, name := range st.EvalNames {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: trial %q lists eval set %q twice", ErrInconsistentState, st.Name, name)
		}
		seen[name] = struct{}{}
		for i := 0; i < st.Epochs; i++ {
			key := evalKey(name, i)
			_, okAcc := st.EvalAcc1[key]
			_, okLoss := st.EvalLosses[key]
			if !okAcc || !okLoss {
				return nil, fmt.Errorf("%w: trial %q eval set %q misses epoch %d", ErrInvalidArgument, st.Name, name, i)
			}
		}
	}
	st = cloneTrialState(st)
	if st.EvalAcc1 == nil {
		st.EvalAcc1 = make(map[string]float64)
	}
	if st.EvalLosses == nil {
		st.EvalLosses = make(map[string]float64)
	}
	return &TrialRecord{st: st}, nil
}

// State returns a deep copy of the record's serialized form.
func (r *TrialRecord) State() TrialState { return cloneTrialState(r.st) }

func (r *TrialRecord) clone() *TrialRecord { return &TrialRecord{st: cloneTrialState(r.st)} }

// Name returns the run name.
func (r *TrialRecord) Name() string { return r.st.Name }

// Seed returns the random seed of the run.
func (r *TrialRecord) Seed() int { return r.st.Seed }

// FLOPs returns the measured FLOPs (in millions).
func (r *TrialRecord) FLOPs() float64 { return r.st.FLOPs }

// Params returns the parameter count (in MB).
func (r *TrialRecord) Params() float64 { return r.st.Params }

// TotalEpoch returns the number of training epochs.
func (r *TrialRecord) TotalEpoch() int { return r.st.Epochs }

// NetParam returns the weight blob, nil once cleared.
func (r *TrialRecord) NetParam() []byte { return slices.Clone(r.st.NetState) }

// EvalSets lists registered evaluation sets in registration order.
func (r *TrialRecord) EvalSets() []string { return slices.Clone(r.st.EvalNames) }

// HasEvalSet reports whether name was registered.
func (r *TrialRecord) HasEvalSet(name string) bool { return slices.Contains(r.st.EvalNames, name) }

// UpdateTrainInfo replaces the training curves. acc5 and times may be nil.
func (r *TrialRecord) UpdateTrainInfo(acc1, acc5, losses, times []float64) error {
	n := r.st.Epochs
	if len(acc1) != n || len(losses) != n || (acc5 != nil && len(acc5) != n) || (times != nil && len(times) != n) {
		return fmt.Errorf("%w: train curves of %q must have %d points", ErrInvalidArgument, r.st.Name, n)
	}
	r.st.TrainAcc1 = slices.Clone(acc1)
	r.st.TrainAcc5 = slices.Clone(acc5)
	r.st.TrainLosses = slices.Clone(losses)
	r.st.TrainTimes = slices.Clone(times)
	return nil
}

// UpdateLatency replaces the latency samples; nil marks latency unavailable.
func (r *TrialRecord) UpdateLatency(samples []float64) { r.st.Latency = slices.Clone(samples) }

// ResetEval drops every evaluation set.
func (r *TrialRecord) ResetEval() {
	r.st.EvalNames = nil
	r.st.EvalAcc1 = make(map[string]float64)
	r.st.EvalLosses = make(map[string]float64)
	r.st.EvalTimes = nil
}

// UpdateEval registers the evaluation sets named by the "{set}@{epoch}" keys
// of accs. Each set must cover every epoch; times may be nil.
func (r *TrialRecord) UpdateEval(accs, losses, times map[string]float64) error {
	names := make([]string, 0)
	for key := range accs {
		name, _, ok := strings.Cut(key, "@")
		if !ok {
			return fmt.Errorf("%w: eval key %q has no epoch", ErrInvalidArgument, key)
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if r.HasEvalSet(name) {
			return fmt.Errorf("%w: eval set %q already registered on %q", ErrInconsistentState, name, r.st.Name)
		}
		for i := 0; i < r.st.Epochs; i++ {
			key := evalKey(name, i)
			_, okAcc := accs[key]
			_, okLoss := losses[key]
			_, okTime := times[key]
			if !okAcc || !okLoss || (times != nil && !okTime) {
				return fmt.Errorf("%w: eval set %q misses epoch %d", ErrInvalidArgument, name, i)
			}
		}
	}
	for _, name := range names {
		r.st.EvalNames = append(r.st.EvalNames, name)
		for i := 0; i < r.st.Epochs; i++ {
			key := evalKey(name, i)
			r.st.EvalAcc1[key] = accs[key]
			r.st.EvalLosses[key] = losses[key]
			if times != nil {
				if r.st.EvalTimes == nil {
					r.st.EvalTimes = make(map[string]float64)
				}
				r.st.EvalTimes[key] = times[key]
			}
		}
	}
	return nil
}

// Latency returns the mean latency or LatencyUnavailable.
func (r *TrialRecord) Latency() float64 {
	if len(r.st.Latency) == 0 {
		return LatencyUnavailable
	}
	return lo.Sum(r.st.Latency) / float64(len(r.st.Latency))
}

// Times reports mean and total train/eval time per set. Values are nil when
// timing was never recorded.
func (r *TrialRecord) Times() map[string]*float64 {
	out := make(map[string]*float64, 2+2*len(r.st.EvalNames))
	if r.st.TrainTimes == nil {
		out["T-train@epoch"], out["T-train@total"] = nil, nil
		for _, name := range r.st.EvalNames {
			out["T-"+name+"@epoch"], out["T-"+name+"@total"] = nil, nil
		}
		return out
	}
	out["T-train@epoch"] = lo.ToPtr(lo.Mean(r.st.TrainTimes))
	out["T-train@total"] = lo.ToPtr(lo.Sum(r.st.TrainTimes))
	for _, name := range r.st.EvalNames {
		xs, ok := r.evalTimes(name, r.st.Epochs-1)
		if !ok {
			out["T-"+name+"@epoch"], out["T-"+name+"@total"] = nil, nil
			continue
		}
		out["T-"+name+"@epoch"] = lo.ToPtr(lo.Mean(xs))
		out["T-"+name+"@total"] = lo.ToPtr(lo.Sum(xs))
	}
	return out
}

// Train returns the training metrics at epoch.
func (r *TrialRecord) Train(epoch EpochRef) (Metrics, error) {
	idx, err := epoch.resolve(r.st.Epochs)
	if err != nil {
		return Metrics{}, err
	}
	m := Metrics{Epoch: idx, Loss: r.st.TrainLosses[idx], Accuracy: r.st.TrainAcc1[idx]}
	if r.st.TrainTimes != nil {
		m.CurTime = lo.ToPtr(r.st.TrainTimes[idx])
		m.AllTime = lo.ToPtr(lo.Sum(r.st.TrainTimes[:idx+1]))
	}
	return m, nil
}

// Eval returns the metrics of evaluation set name at epoch.
func (r *TrialRecord) Eval(name string, epoch EpochRef) (Metrics, error) {
	if !r.HasEvalSet(name) {
		return Metrics{}, fmt.Errorf("%w: eval set %q on %q", ErrNotFound, name, r.st.Name)
	}
	idx, err := epoch.resolve(r.st.Epochs)
	if err != nil {
		return Metrics{}, err
	}
	key := evalKey(name, idx)
	m := Metrics{Epoch: idx, Loss: r.st.EvalLosses[key], Accuracy: r.st.EvalAcc1[key]}
	if xs, ok := r.evalTimes(name, idx); ok {
		m.CurTime = lo.ToPtr(xs[idx])
		m.AllTime = lo.ToPtr(lo.Sum(xs))
	}
	return m, nil
}

// metricsFor dispatches between the training curve and an evaluation set.
func (r *TrialRecord) metricsFor(set string, epoch EpochRef) (Metrics, error) {
	if set == TrainSet {
		return r.Train(epoch)
	}
	return r.Eval(set, epoch)
}

// Config returns the instantiation descriptor. With a decoder the genotype
// replaces the raw architecture string.
func (r *TrialRecord) Config(decoder TopologyDecoder) (NetConfig, error) {
	cfg := NetConfig{
		Name:       "infer.tiny",
		C:          r.st.ArchConfig.Channel,
		N:          r.st.ArchConfig.NumCells,
		NumClasses: r.st.ArchConfig.ClassNum,
	}
	if decoder == nil {
		cfg.ArchStr = r.st.ArchConfig.ArchStr
		return cfg, nil
	}
	genotype, err := decoder(r.st.ArchConfig.ArchStr)
	if err != nil {
		return NetConfig{}, err
	}
	cfg.Genotype = genotype
	return cfg, nil
}

func (r *TrialRecord) String() string {
	return fmt.Sprintf("TrialRecord(%s, arch=%s, FLOP=%.2fM, Param=%.3fMB, seed=%d, %d eval-sets: [%s])",
		r.st.Name, r.st.ArchConfig.ArchStr, r.st.FLOPs, r.st.Params, r.st.Seed, len(r.st.EvalNames), strings.Join(r.st.EvalNames, ", "))
}

// evalTimes returns the times of set name for epochs [0, upto].
func (r *TrialRecord) evalTimes(name string, upto int) ([]float64, bool) {
	if len(r.st.EvalTimes) == 0 {
		return nil, false
	}
	xs := make([]float64, 0, upto+1)
	for i := 0; i <= upto; i++ {
		v, ok := r.st.EvalTimes[evalKey(name, i)]
		if !ok {
			return nil, false
		}
		xs = append(xs, v)
	}
	return xs, true
}

func (r *TrialRecord) clearNetState() { r.st.NetState = nil }

func evalKey(name string, epoch int) string { return name + "@" + strconv.Itoa(epoch) }

func cloneTrialState(st TrialState) TrialState {
	st.NetState = slices.Clone(st.NetState)
	st.TrainAcc1 = slices.Clone(st.TrainAcc1)
	st.TrainAcc5 = slices.Clone(st.TrainAcc5)
	st.TrainLosses = slices.Clone(st.TrainLosses)
	st.TrainTimes = slices.Clone(st.TrainTimes)
	st.Latency = slices.Clone(st.Latency)
	st.EvalNames = slices.Clone(st.EvalNames)
	st.EvalAcc1 = maps.Clone(st.EvalAcc1)
	st.EvalLosses = maps.Clone(st.EvalLosses)
	st.EvalTimes = maps.Clone(st.EvalTimes)
	return st
}
