package snapshot

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nasbench201/pkg/nasbench"
)

func gzipped(path string) bool { return strings.HasSuffix(path, ".gz") }

// LoadFile decodes the snapshot at path, decompressing .gz files.
func LoadFile(path string) (nasbench.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nasbench.Snapshot{}, fmt.Errorf("%w: snapshot %s", nasbench.ErrNotFound, path)
		}
		return nasbench.Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if gzipped(path) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nasbench.Snapshot{}, fmt.Errorf("%w: gunzip %s: %v", nasbench.ErrInvalidArgument, path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return Decode(r)
}

// SaveFile writes snap to path through a temp file and rename, so readers
// never observe a partial document.
func SaveFile(path string, snap nasbench.Snapshot) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if gzipped(path) {
		zw := gzip.NewWriter(tmp)
		if err := Encode(zw, snap); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("gzip snapshot: %w", err)
		}
	} else if err := Encode(tmp, snap); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// File is a Backend over a single snapshot document.
type File struct {
	Path string
}

// Load reads the file.
func (f File) Load(ctx context.Context) (nasbench.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nasbench.Snapshot{}, err
	}
	return LoadFile(f.Path)
}

// Save replaces the file.
func (f File) Save(ctx context.Context, snap nasbench.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return SaveFile(f.Path, snap)
}

// Close is a no-op.
func (File) Close() error { return nil }
