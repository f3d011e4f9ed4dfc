package nasbench

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// EpochRef selects an epoch of a training curve. The zero value is LastEpoch.
type EpochRef struct {
	index    int
	explicit bool
}

// LastEpoch refers to the final epoch of a curve.
var LastEpoch = EpochRef{}

// AtEpoch refers to a zero-based epoch.
func AtEpoch(i int) EpochRef { return EpochRef{index: i, explicit: true} }

func (e EpochRef) resolve(total int) (int, error) {
	idx := total - 1
	if e.explicit {
		idx = e.index
	}
	if idx < 0 || idx >= total {
		return 0, fmt.Errorf("%w: epoch %d outside [0, %d)", ErrInvalidArgument, idx, total)
	}
	return idx, nil
}

func (e EpochRef) String() string {
	if !e.explicit {
		return "last"
	}
	return fmt.Sprintf("%d", e.index)
}

type selectionKind int

const (
	selectUnset selectionKind = iota
	selectRandom
	selectAverage
	selectSeed
)

// Selection decides how trials of one dataset are reduced to a single
// result. The zero value is invalid.
type Selection struct {
	kind selectionKind
	seed int
	rng  *rand.Rand
}

// SelectRandom picks one trial uniformly with rng. ArchResults requires a
// non-nil rng; Store substitutes its own source when rng is nil.
func SelectRandom(rng *rand.Rand) Selection { return Selection{kind: selectRandom, rng: rng} }

// SelectAverage averages every field across trials.
func SelectAverage() Selection { return Selection{kind: selectAverage} }

// SelectSeed returns the trial trained with seed.
func SelectSeed(seed int) Selection { return Selection{kind: selectSeed, seed: seed} }

// IsRandom reports whether the selection draws a trial at random.
func (s Selection) IsRandom() bool { return s.kind == selectRandom }

func (s Selection) validate() error {
	switch s.kind {
	case selectAverage, selectSeed:
		return nil
	case selectRandom:
		if s.rng == nil {
			return fmt.Errorf("%w: random selection needs a random source", ErrInvalidArgument)
		}
		return nil
	default:
		return fmt.Errorf("%w: unresolvable selection mode", ErrInvalidArgument)
	}
}

func (s Selection) String() string {
	switch s.kind {
	case selectRandom:
		return "random"
	case selectAverage:
		return "average"
	case selectSeed:
		return fmt.Sprintf("seed=%d", s.seed)
	default:
		return "unset"
	}
}

// Regime names a training-budget configuration.
type Regime string

const (
	// RegimeFull is the long schedule (200 epochs in the published data).
	RegimeFull Regime = "full"
	// RegimeLess is the short schedule (12 epochs).
	RegimeLess Regime = "less"
)

// ParseRegime validates a regime name. The empty string means RegimeFull.
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case "", RegimeFull:
		return RegimeFull, nil
	case RegimeLess:
		return RegimeLess, nil
	default:
		return "", fmt.Errorf("%w: unknown regime %q", ErrInvalidArgument, s)
	}
}

// lockedSource serializes access to a rand.Source so one *rand.Rand can be
// shared by concurrent readers.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func newSharedRand(src rand.Source) *rand.Rand {
	return rand.New(&lockedSource{src: src})
}
