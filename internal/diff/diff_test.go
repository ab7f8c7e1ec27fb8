package diff

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/remoteapi"
)

type fakeFetcher struct {
	content map[string][]byte
}

func (f *fakeFetcher) GetContent(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.GetContentOptions) ([]byte, error) {
	return f.content[path], nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompute_CreatedModifiedDeletedNotModified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "new.txt", "new-content")
	writeFile(t, root, "same.txt", "same-content")
	writeFile(t, root, "changed.txt", "new-bytes")

	local, err := ScanLocal(root, nil)
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	valID, branchID := uuid.New(), uuid.New()
	remoteEntries := []remoteapi.FileEntry{
		{Path: "same.txt", Kind: remoteapi.KindFile, MTimeMS: farFuture()},
		{Path: "changed.txt", Kind: remoteapi.KindFile, MTimeMS: 0},
		{Path: "gone.txt", Kind: remoteapi.KindFile, MTimeMS: 0},
	}
	fetcher := &fakeFetcher{content: map[string][]byte{
		"changed.txt": []byte("old-bytes"),
	}}

	changes, err := Compute(context.Background(), root, local, remoteEntries, valID, branchID, 1, fetcher, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if _, ok := changes.Created["new.txt"]; !ok {
		t.Errorf("expected new.txt created, got %+v", changes.Created)
	}
	if _, ok := changes.NotModified["same.txt"]; !ok {
		t.Errorf("expected same.txt not_modified (remote mtime far in future), got %+v", changes.NotModified)
	}
	if _, ok := changes.Modified["changed.txt"]; !ok {
		t.Errorf("expected changed.txt modified, got %+v", changes.Modified)
	}
	if _, ok := changes.Deleted["gone.txt"]; !ok {
		t.Errorf("expected gone.txt deleted, got %+v", changes.Deleted)
	}
}

func TestCompute_ContentCheckEqualIsNotModified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "same-bytes.txt", "identical")

	local, err := ScanLocal(root, nil)
	if err != nil {
		t.Fatalf("ScanLocal: %v", err)
	}

	valID, branchID := uuid.New(), uuid.New()
	remoteEntries := []remoteapi.FileEntry{
		{Path: "same-bytes.txt", Kind: remoteapi.KindFile, MTimeMS: 0},
	}
	fetcher := &fakeFetcher{content: map[string][]byte{
		"same-bytes.txt": []byte("identical"),
	}}

	changes, err := Compute(context.Background(), root, local, remoteEntries, valID, branchID, 1, fetcher, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, ok := changes.NotModified["same-bytes.txt"]; !ok {
		t.Errorf("expected not_modified when bytes are equal despite newer local mtime, got %+v", changes)
	}
}

func TestCollapseCreatedAndDeleted(t *testing.T) {
	c := NewFileStateChanges()
	c.Created["x.txt"] = FileStatus{FileEntry: remoteapi.FileEntry{Path: "x.txt", Kind: remoteapi.KindFile}, Status: StatusCreated}
	c.Deleted["x.txt"] = FileStatus{FileEntry: remoteapi.FileEntry{Path: "x.txt", Kind: remoteapi.KindScript}, Status: StatusDeleted}

	collapseCreatedAndDeleted(c)

	if _, ok := c.Created["x.txt"]; ok {
		t.Errorf("expected x.txt removed from created")
	}
	if _, ok := c.Deleted["x.txt"]; ok {
		t.Errorf("expected x.txt removed from deleted")
	}
	modified, ok := c.Modified["x.txt"]
	if !ok {
		t.Fatalf("expected x.txt in modified")
	}
	if modified.Kind != remoteapi.KindScript {
		t.Errorf("expected collapsed entry to carry remote kind, got %v", modified.Kind)
	}
}

func TestIsClean(t *testing.T) {
	c := NewFileStateChanges()
	c.NotModified["a.txt"] = FileStatus{}
	if !c.IsClean() {
		t.Errorf("expected clean with only not_modified entries")
	}
	c.Created["b.txt"] = FileStatus{}
	if c.IsClean() {
		t.Errorf("expected dirty once created is non-empty")
	}
}

func farFuture() int64 {
	return 4102444800000 // year 2100 in unix ms
}
