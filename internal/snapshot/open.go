package snapshot

import (
	"context"
	"fmt"
	"io"

	"nasbench201/internal/infra/persistence/memory"
	"nasbench201/internal/infra/persistence/postgres"
	"nasbench201/internal/infra/persistence/sqlite"
	"nasbench201/pkg/nasbench"
)

// Driver names a snapshot backend.
type Driver string

const (
	DriverFile     Driver = "file"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	// DriverMemory starts empty and is only useful in-process, e.g. as the
	// target of Copy. Runtime configuration rejects it.
	DriverMemory   Driver = "memory"
)

const defaultFilePath = "nasbench201.json"

// Source loads a snapshot.
type Source interface {
	Load(ctx context.Context) (nasbench.Snapshot, error)
}

// Sink stores a snapshot, replacing any previous one.
type Sink interface {
	Save(ctx context.Context, snap nasbench.Snapshot) error
}

// Backend is a closable Source and Sink.
type Backend interface {
	Source
	Sink
	io.Closer
}

// Options selects a backend. Path is used by file and sqlite, DSN by
// postgres.
type Options struct {
	Driver Driver
	Path   string
	DSN    string
}

// Open returns the backend named by opts.Driver; empty means file.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "", DriverFile:
		path := opts.Path
		if path == "" {
			path = defaultFilePath
		}
		return File{Path: path}, nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		s, err := memory.New(nasbench.Snapshot{})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown snapshot driver %q", nasbench.ErrInvalidArgument, opts.Driver)
	}
}

// Copy loads from src and saves into dst.
func Copy(ctx context.Context, dst Sink, src Source) error {
	snap, err := src.Load(ctx)
	if err != nil {
		return err
	}
	return dst.Save(ctx, snap)
}
