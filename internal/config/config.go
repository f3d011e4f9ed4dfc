// Package config loads runtime settings from YAML and NASBENCH_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"nasbench201/internal/blob"
	"nasbench201/internal/snapshot"
)

// Snapshot selects where the benchmark snapshot is loaded from.
type Snapshot struct {
	Driver snapshot.Driver `yaml:"driver"`
	Path   string          `yaml:"path"`
	DSN    string          `yaml:"dsn"`
}

// Archive selects the blob store holding per-architecture records.
type Archive struct {
	Driver blob.Driver   `yaml:"driver"`
	FSRoot string        `yaml:"fs_root"`
	Prefix string        `yaml:"prefix"`
	S3     blob.S3Config `yaml:"s3"`
}

// Config is the full runtime configuration.
type Config struct {
	Snapshot Snapshot `yaml:"snapshot"`
	Archive  Archive  `yaml:"archive"`
	Log      struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	// RandomSeed seeds the store's random source; nil leaves it unseeded.
	RandomSeed *uint64 `yaml:"random_seed"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	var c Config
	c.Snapshot.Driver = snapshot.DriverFile
	c.Archive.Driver = blob.DriverFilesystem
	c.Archive.FSRoot = "./archive"
	c.Log.Level = "info"
	return c
}

// Load reads path (skipped when empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var snapDriver, archDriver string
	str("NASBENCH_SNAPSHOT_DRIVER", &snapDriver)
	if snapDriver != "" {
		c.Snapshot.Driver = snapshot.Driver(snapDriver)
	}
	str("NASBENCH_SNAPSHOT_PATH", &c.Snapshot.Path)
	str("NASBENCH_SNAPSHOT_DSN", &c.Snapshot.DSN)
	str("NASBENCH_ARCHIVE_DRIVER", &archDriver)
	if archDriver != "" {
		c.Archive.Driver = blob.Driver(archDriver)
	}
	str("NASBENCH_ARCHIVE_FS_ROOT", &c.Archive.FSRoot)
	str("NASBENCH_ARCHIVE_S3_BUCKET", &c.Archive.S3.Bucket)
	str("NASBENCH_ARCHIVE_S3_REGION", &c.Archive.S3.Region)
	str("NASBENCH_ARCHIVE_S3_ENDPOINT", &c.Archive.S3.Endpoint)
	if v, ok := lookup("NASBENCH_ARCHIVE_S3_PATH_STYLE"); ok && v != "" {
		c.Archive.S3.PathStyle = strings.EqualFold(v, "true")
	}
	str("NASBENCH_LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("NASBENCH_RANDOM_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NASBENCH_RANDOM_SEED: %w", err)
		}
		c.RandomSeed = &seed
	}
	return nil
}

// Validate checks the driver names and the settings each driver needs.
func (c Config) Validate() error {
	var errs []error
	switch c.Snapshot.Driver {
	case snapshot.DriverFile, snapshot.DriverSQLite:
	case snapshot.DriverMemory:
		// A memory backend starts empty, so nothing could be loaded from it.
		errs = append(errs, errors.New("snapshot: memory driver cannot be configured; it holds nothing until saved in-process"))
	case snapshot.DriverPostgres:
		if c.Snapshot.DSN == "" {
			errs = append(errs, errors.New("snapshot: postgres driver requires dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshot: unknown driver %q", c.Snapshot.Driver))
	}
	switch c.Archive.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("archive: s3 driver requires bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive: unknown driver %q", c.Archive.Driver))
	}
	return errors.Join(errs...)
}
