package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"nasbench201/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "archive/000001-FULL.json", bytes.NewReader([]byte(`{"full":{}}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "archive/000001-FULL.json" || info.ContentType != "application/json" || info.Size != 11 {
		t.Fatalf("unexpected info %#v", info)
	}
	_, err = store.Put(ctx, "archive/000001-FULL.json", bytes.NewReader([]byte("x")), core.PutOptions{})
	if !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "archive/000001-FULL.json", bytes.NewReader([]byte("{}")), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, "archive/000001-FULL.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "{}" {
		t.Fatalf("get mismatch: %q", data)
	}
	if _, err := store.Put(ctx, "archive/000002-FULL.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "archive/")
	if err != nil || len(list) != 2 || list[0].Key != "archive/000001-FULL.json" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "archive/000001-FULL.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "archive/000001-FULL.json"); err != nil || ok {
		t.Fatalf("second delete should report absence: %v %v", ok, err)
	}
}

func TestStore_MissingKeysMapToNotFound(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if list, err := store.List(ctx, "none/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestStore_New(t *testing.T) {
	s, err := New(context.Background(), Config{Bucket: "bkt", Endpoint: "https://minio.local", PathStyle: true, AccessKeyID: "AKIA", SecretAccessKey: "SECRET"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.bucket != "bkt" {
		t.Fatalf("unexpected store %+v", s)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	b, err := decodeChunked([]byte("5\r\nhello\r\n6;chunk-signature=abc\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if err != nil || string(b) != "hello world" {
		t.Fatalf("decode: %q %v", b, err)
	}
	if _, err := decodeChunked([]byte("zz\r\nhello\r\n")); err == nil {
		t.Fatalf("expected bad size error")
	}
	if _, err := decodeChunked([]byte("5\r\nhel")); err == nil {
		t.Fatalf("expected short chunk error")
	}
}

func TestFakeBucketUnsupportedMethod(t *testing.T) {
	b := &fakeBucket{objects: make(map[string]fakeObject)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := b.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
