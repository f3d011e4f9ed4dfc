package blob

import (
	"context"
	"fmt"

	"nasbench201/internal/infra/blob/fs"
	memorystore "nasbench201/internal/infra/blob/memory"
	infraS3 "nasbench201/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend settings.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// FSRoot is the archive directory when Driver is fs (default ./archive).
	FSRoot string
	S3     S3Config
}

// Open builds the store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root, creating it if needed.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a bucket-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store served by an in-process fake, for
// tests in other packages.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
