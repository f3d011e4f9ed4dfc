package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverMemory}, DriverMemory},
		{Config{Driver: DriverS3, S3: S3Config{Bucket: "bench", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}}, DriverS3},
	}
	for _, tc := range cases {
		s, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("open %q: %v", tc.cfg.Driver, err)
		}
		if s.Driver() != tc.want {
			t.Fatalf("open %q: got driver %s", tc.cfg.Driver, s.Driver())
		}
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestBackendsShareErrorContract(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	for _, s := range []Store{NewMemory(), fsStore, NewMockS3ForTests()} {
		if _, _, err := s.Get(ctx, "000001-FULL.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", s.Driver(), err)
		}
		if _, err := s.Put(ctx, "000001-FULL.json", bytes.NewReader([]byte("{}")), PutOptions{}); err != nil {
			t.Fatalf("%s: put: %v", s.Driver(), err)
		}
		if _, err := s.Put(ctx, "000001-FULL.json", bytes.NewReader([]byte("{}")), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", s.Driver(), err)
		}
	}
}
