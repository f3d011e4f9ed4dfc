// Package snapshot reads and writes benchmark snapshots as JSON documents,
// gzip files, or rows in a relational store.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"nasbench201/pkg/nasbench"
)

var requiredKeys = []string{"meta_archs", "arch2infos", "evaluated_indexes"}

// Decode reads one snapshot document. Every top-level key must be present,
// even when its value is empty.
func Decode(r io.Reader) (nasbench.Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("%w: decode snapshot: %v", nasbench.ErrInvalidArgument, err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nasbench.Snapshot{}, fmt.Errorf("%w: snapshot is missing %q", nasbench.ErrInvalidArgument, key)
		}
	}
	var snap nasbench.Snapshot
	if err := json.Unmarshal(raw["meta_archs"], &snap.MetaArchs); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("%w: meta_archs: %v", nasbench.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(raw["arch2infos"], &snap.Arch2Infos); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("%w: arch2infos: %v", nasbench.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(raw["evaluated_indexes"], &snap.EvaluatedIndexes); err != nil {
		return nasbench.Snapshot{}, fmt.Errorf("%w: evaluated_indexes: %v", nasbench.ErrInvalidArgument, err)
	}
	if snap.MetaArchs == nil {
		snap.MetaArchs = []string{}
	}
	if snap.Arch2Infos == nil {
		snap.Arch2Infos = map[int]nasbench.ArchivePair{}
	}
	if snap.EvaluatedIndexes == nil {
		snap.EvaluatedIndexes = []int{}
	}
	return snap, nil
}

// Encode writes snap as a single JSON document. Nil collections are written
// as empty ones so the output always decodes.
func Encode(w io.Writer, snap nasbench.Snapshot) error {
	if snap.MetaArchs == nil {
		snap.MetaArchs = []string{}
	}
	if snap.Arch2Infos == nil {
		snap.Arch2Infos = map[int]nasbench.ArchivePair{}
	}
	if snap.EvaluatedIndexes == nil {
		snap.EvaluatedIndexes = []int{}
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
