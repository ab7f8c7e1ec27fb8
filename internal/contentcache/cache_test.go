package contentcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestStoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := Key{
		ValID:       uuid.New(),
		BranchID:    uuid.New(),
		Version:     1,
		Path:        "a.txt",
		ServerMTime: 1000,
	}

	if _, ok, err := c.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	digest, err := c.Store(ctx, key, []byte("hello"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if digest != HashContent([]byte("hello")) {
		t.Fatalf("digest mismatch")
	}

	got, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != digest {
		t.Fatalf("got %q, want %q", got, digest)
	}
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	valID, branchID := uuid.New(), uuid.New()
	key := Key{ValID: valID, BranchID: branchID, Version: 1, Path: "a.txt", ServerMTime: 1}
	if _, err := c.Store(ctx, key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, valID, branchID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, err := c.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("expected miss after invalidate, got ok=%v err=%v", ok, err)
	}
}
