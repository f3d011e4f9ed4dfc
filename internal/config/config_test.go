package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nasbench201/internal/blob"
	"nasbench201/internal/snapshot"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Snapshot.Driver != snapshot.DriverFile || c.Archive.Driver != blob.DriverFilesystem {
		t.Fatalf("unexpected drivers %+v", c)
	}
	if c.Archive.FSRoot != "./archive" || c.Log.Level != "info" || c.RandomSeed != nil {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nasbench.yaml")
	doc := `
snapshot:
  driver: sqlite
  path: bench.db
archive:
  driver: s3
  prefix: records/
  s3:
    bucket: from-yaml
    region: us-east-1
log:
  level: debug
random_seed: 7
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("NASBENCH_ARCHIVE_S3_BUCKET", "from-env")
	t.Setenv("NASBENCH_ARCHIVE_S3_PATH_STYLE", "TRUE")
	t.Setenv("NASBENCH_RANDOM_SEED", "42")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Snapshot.Driver != snapshot.DriverSQLite || c.Snapshot.Path != "bench.db" {
		t.Fatalf("snapshot settings not read: %+v", c.Snapshot)
	}
	if c.Archive.S3.Bucket != "from-env" || c.Archive.S3.Region != "us-east-1" || !c.Archive.S3.PathStyle {
		t.Fatalf("env should override yaml: %+v", c.Archive.S3)
	}
	if c.Archive.Prefix != "records/" || c.Log.Level != "debug" {
		t.Fatalf("unexpected archive/log settings %+v", c)
	}
	if c.RandomSeed == nil || *c.RandomSeed != 42 {
		t.Fatalf("expected seed 42, got %v", c.RandomSeed)
	}
}

func TestLoadRejectsBadSettings(t *testing.T) {
	t.Setenv("NASBENCH_RANDOM_SEED", "minus-one")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "NASBENCH_RANDOM_SEED") {
		t.Fatalf("expected seed parse error, got %v", err)
	}
	t.Setenv("NASBENCH_RANDOM_SEED", "")

	t.Setenv("NASBENCH_SNAPSHOT_DRIVER", "postgres")
	t.Setenv("NASBENCH_ARCHIVE_DRIVER", "s3")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "dsn") || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected joined dsn and bucket errors, got %v", err)
	}

	t.Setenv("NASBENCH_SNAPSHOT_DRIVER", "memory")
	t.Setenv("NASBENCH_ARCHIVE_DRIVER", "")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("expected memory snapshot driver to be rejected, got %v", err)
	}

	t.Setenv("NASBENCH_SNAPSHOT_DRIVER", "tape")
	t.Setenv("NASBENCH_ARCHIVE_DRIVER", "")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "tape") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
