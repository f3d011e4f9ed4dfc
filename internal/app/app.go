// Package app wires configuration into a ready benchmark store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"nasbench201/internal/archive"
	"nasbench201/internal/blob"
	"nasbench201/internal/config"
	"nasbench201/internal/snapshot"
	"nasbench201/internal/telemetry"
	"nasbench201/pkg/nasbench"
)

// App owns the store and the backends it was built from.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Store    *nasbench.Store
	Snapshot snapshot.Backend
	Archive  blob.Store
}

// Option adjusts Open.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// Open loads the configured snapshot and builds the store.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger, err := telemetry.NewLogger(cfg.Log.Level, o.logOutput)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}

	storeOpts := []nasbench.Option{nasbench.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		rec, err := telemetry.NewPrometheusRecorder(a.Registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		storeOpts = append(storeOpts, nasbench.WithMetricsRecorder(rec))
	}
	if cfg.RandomSeed != nil {
		storeOpts = append(storeOpts, nasbench.WithSeed(*cfg.RandomSeed))
	}

	a.Snapshot, err = snapshot.Open(ctx, snapshot.Options{
		Driver: cfg.Snapshot.Driver,
		Path:   cfg.Snapshot.Path,
		DSN:    cfg.Snapshot.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	snap, err := a.Snapshot.Load(ctx)
	if err != nil {
		_ = a.Snapshot.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	a.Store, err = nasbench.New(snap, storeOpts...)
	if err != nil {
		_ = a.Snapshot.Close()
		return nil, err
	}

	a.Archive, err = blob.Open(ctx, blob.Config{
		Driver: cfg.Archive.Driver,
		FSRoot: cfg.Archive.FSRoot,
		S3:     cfg.Archive.S3,
	})
	if err != nil {
		_ = a.Snapshot.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	logger.Debug("app ready", "snapshot", cfg.Snapshot.Driver, "archive", a.Archive.Driver())
	return a, nil
}

// ArchiveReader reads records from the configured archive.
func (a *App) ArchiveReader() archive.Reader {
	return archive.Reader{Store: a.Archive, Prefix: a.Config.Archive.Prefix}
}

// ArchiveWriter writes records to the configured archive.
func (a *App) ArchiveWriter(overwrite bool) archive.Writer {
	return archive.Writer{Store: a.Archive, Prefix: a.Config.Archive.Prefix, Overwrite: overwrite}
}

// Reload refreshes one architecture from the archive.
func (a *App) Reload(ctx context.Context, index int) error {
	return a.Store.Reload(ctx, a.ArchiveReader(), index)
}

// Persist saves the current store contents back to the snapshot backend.
func (a *App) Persist(ctx context.Context) error {
	return a.Snapshot.Save(ctx, a.Store.Export())
}

// Close releases the snapshot backend.
func (a *App) Close() error {
	var errs []error
	if a.Snapshot != nil {
		errs = append(errs, a.Snapshot.Close())
	}
	return errors.Join(errs...)
}
