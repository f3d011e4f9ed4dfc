// Package persistence holds the row mapping shared by the relational snapshot
// backends. Each architecture is one row; the per-regime aggregates are JSON
// documents.
package persistence

import (
	"encoding/json"
	"fmt"
	"slices"

	"nasbench201/pkg/nasbench"
)

// Table is the relation every backend reads and writes.
const Table = "architectures"

// Row is one architecture. FullState and LessState are nil for
// architectures without results.
type Row struct {
	Index     int
	Arch      string
	Evaluated bool
	FullState []byte
	LessState []byte
}

// ToRows flattens a snapshot in index order.
func ToRows(snap nasbench.Snapshot) ([]Row, error) {
	evaluated := make(map[int]bool, len(snap.EvaluatedIndexes))
	for _, idx := range snap.EvaluatedIndexes {
		evaluated[idx] = true
	}
	rows := make([]Row, len(snap.MetaArchs))
	for idx, arch := range snap.MetaArchs {
		row := Row{Index: idx, Arch: arch, Evaluated: evaluated[idx]}
		if pair, ok := snap.Arch2Infos[idx]; ok {
			var err error
			if row.FullState, err = encodeState(pair.Full); err != nil {
				return nil, fmt.Errorf("encode full state of %06d: %w", idx, err)
			}
			if row.LessState, err = encodeState(pair.Less); err != nil {
				return nil, fmt.Errorf("encode less state of %06d: %w", idx, err)
			}
		}
		rows[idx] = row
	}
	for idx := range snap.Arch2Infos {
		if idx < 0 || idx >= len(snap.MetaArchs) {
			return nil, fmt.Errorf("%w: results for index %d outside [0, %d)", nasbench.ErrInconsistentState, idx, len(snap.MetaArchs))
		}
	}
	return rows, nil
}

// FromRows rebuilds a snapshot. Rows may arrive in any order but their
// indexes must be dense from zero.
func FromRows(rows []Row) (nasbench.Snapshot, error) {
	rows = slices.Clone(rows)
	slices.SortFunc(rows, func(a, b Row) int { return a.Index - b.Index })
	snap := nasbench.Snapshot{
		MetaArchs:        make([]string, len(rows)),
		Arch2Infos:       make(map[int]nasbench.ArchivePair),
		EvaluatedIndexes: []int{},
	}
	for i, row := range rows {
		if row.Index != i {
			return nasbench.Snapshot{}, fmt.Errorf("%w: expected architecture %d, found %d", nasbench.ErrInconsistentState, i, row.Index)
		}
		snap.MetaArchs[i] = row.Arch
		if row.Evaluated {
			snap.EvaluatedIndexes = append(snap.EvaluatedIndexes, i)
		}
		if row.FullState == nil && row.LessState == nil {
			continue
		}
		full, err := decodeState(row.FullState)
		if err != nil {
			return nasbench.Snapshot{}, fmt.Errorf("decode full state of %06d: %w", i, err)
		}
		less, err := decodeState(row.LessState)
		if err != nil {
			return nasbench.Snapshot{}, fmt.Errorf("decode less state of %06d: %w", i, err)
		}
		snap.Arch2Infos[i] = nasbench.ArchivePair{Full: full, Less: less}
	}
	return snap, nil
}

func encodeState(st *nasbench.ArchState) ([]byte, error) {
	if st == nil {
		return nil, nil
	}
	return json.Marshal(st)
}

func decodeState(b []byte) (*nasbench.ArchState, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var st nasbench.ArchState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
