package nasbench

import (
	"errors"

	"nasbench201/pkg/topology"
)

// Error taxonomy. Every failure returned by this package wraps exactly one of
// these sentinels; match them with errors.Is.
var (
	// ErrNotFound reports an unknown index, dataset, seed or evaluation set.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports a malformed request such as an out-of-range
	// epoch, an unknown regime or an unusable selection.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInconsistentState reports data that violates a store invariant:
	// duplicate trials, mismatched epoch budgets or duplicate architectures.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrMalformedEncoding is the topology grammar error, re-exported so
	// callers only need this package for error matching.
	ErrMalformedEncoding = topology.ErrMalformedEncoding
)
