// Package archive stores one {full, less} record per architecture in a blob
// store. Store.Reload reads these records through Reader.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"

	"nasbench201/internal/blob"
	"nasbench201/pkg/nasbench"
)

const contentType = "application/json"

// Key returns the blob key of the record for index.
func Key(index int) string { return nasbench.IndexString(index) + "-FULL.json" }

// record is the on-blob document. Pointers distinguish an absent regime from
// an empty one.
type record struct {
	Full *nasbench.ArchState `json:"full"`
	Less *nasbench.ArchState `json:"less"`
}

// Reader fetches records. It implements nasbench.ArchiveSource.
type Reader struct {
	Store blob.Store
	// Prefix is prepended to every key, e.g. "nb201/".
	Prefix string
}

// Fetch loads the record of index. A missing blob is nasbench.ErrNotFound; a
// record without both regimes is nasbench.ErrInvalidArgument.
func (r Reader) Fetch(ctx context.Context, index int) (nasbench.ArchivePair, error) {
	key := r.Prefix + Key(index)
	_, rc, err := r.Store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nasbench.ArchivePair{}, fmt.Errorf("%w: archive %s", nasbench.ErrNotFound, key)
	}
	if err != nil {
		return nasbench.ArchivePair{}, fmt.Errorf("open archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	return decode(key, rc)
}

func decode(key string, r io.Reader) (nasbench.ArchivePair, error) {
	var rec record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nasbench.ArchivePair{}, fmt.Errorf("%w: archive %s: %v", nasbench.ErrInvalidArgument, key, err)
	}
	if rec.Full == nil || rec.Less == nil {
		return nasbench.ArchivePair{}, fmt.Errorf("%w: archive %s must hold both full and less results", nasbench.ErrInvalidArgument, key)
	}
	return nasbench.ArchivePair{Full: rec.Full, Less: rec.Less}, nil
}

// Writer stores records.
type Writer struct {
	Store  blob.Store
	Prefix string
	// Overwrite replaces existing records instead of failing.
	Overwrite bool
}

// Put writes the record of index.
func (w Writer) Put(ctx context.Context, index int, pair nasbench.ArchivePair) (blob.Info, error) {
	if pair.Full == nil || pair.Less == nil {
		return blob.Info{}, fmt.Errorf("%w: archive %06d must hold both full and less results", nasbench.ErrInvalidArgument, index)
	}
	body, err := json.Marshal(record{Full: pair.Full, Less: pair.Less})
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode archive %06d: %w", index, err)
	}
	key := w.Prefix + Key(index)
	info, err := w.Store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"arch-index": strconv.Itoa(index)},
		Overwrite:   w.Overwrite,
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("write archive %s: %w", key, err)
	}
	return info, nil
}

// Export writes one record for every evaluated architecture of src, using at
// most workers concurrent writes. It returns the number of records written.
func Export(ctx context.Context, src *nasbench.Store, w Writer, workers int) (int, error) {
	snap := src.Export()
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, idx := range snap.EvaluatedIndexes {
		pair := snap.Arch2Infos[idx]
		g.Go(func() error {
			_, err := w.Put(ctx, idx, pair)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(snap.EvaluatedIndexes), nil
}
