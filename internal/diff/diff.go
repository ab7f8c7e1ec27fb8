// Package diff implements the Differ: computing FileStateChanges
// between a local working tree and a remote snapshot.
package diff

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/contentcache"
	"github.com/val-town/vt/internal/remoteapi"
)

// Status is the disposition a FileEntry occupies in one diff.
type Status string

const (
	StatusCreated     Status = "created"
	StatusModified    Status = "modified"
	StatusDeleted     Status = "deleted"
	StatusNotModified Status = "not_modified"
)

// FileStatus is a FileEntry tagged with the diff disposition that placed it
// there.
type FileStatus struct {
	remoteapi.FileEntry
	Status Status
}

// FileStateChanges is the four-way partition produced by a diff.
type FileStateChanges struct {
	Created     map[string]FileStatus
	Modified    map[string]FileStatus
	Deleted     map[string]FileStatus
	NotModified map[string]FileStatus

	// Warnings collects non-fatal per-path failures: a 409 on a
	// content write during push. Populated by SyncOps, not by the Differ
	// itself. Copy-back failures reported by stage.WithStaging are not
	// added here.
	Warnings []string
}

// NewFileStateChanges returns an empty FileStateChanges with all maps
// initialized.
func NewFileStateChanges() *FileStateChanges {
	return &FileStateChanges{
		Created:     map[string]FileStatus{},
		Modified:    map[string]FileStatus{},
		Deleted:     map[string]FileStatus{},
		NotModified: map[string]FileStatus{},
	}
}

// IsClean reports whether every entry is not_modified, the property a
// fresh clone's immediate status must satisfy.
func (c *FileStateChanges) IsClean() bool {
	return len(c.Created) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// ContentFetcher fetches a single path's bytes at a pinned branch/version,
// the minimal capability the Differ needs from remoteapi.API.
type ContentFetcher interface {
	GetContent(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.GetContentOptions) ([]byte, error)
}

// StatWalkConcurrency bounds the local-tree stat fan-out.
const StatWalkConcurrency = 50

// localEntry is one observed local file.
type localEntry struct {
	path    string
	mtimeMS int64
}

// ScanLocal walks root with bounded concurrency, returning the path/mtime of
// every non-ignored regular file.
func ScanLocal(root string, rules []classify.Rule) (map[string]localEntry, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if classify.IsIgnored(rel, rules) {
				return filepath.SkipDir
			}
			return nil
		}
		if classify.IsIgnored(rel, rules) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan local tree: %w", err)
	}

	out := make(map[string]localEntry, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, StatWalkConcurrency)
	errCh := make(chan error, 1)

	for _, rel := range paths {
		rel := rel
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			info, err := os.Stat(filepath.Join(root, rel))
			if err != nil {
				select {
				case errCh <- fmt.Errorf("stat %s: %w", rel, err):
				default:
				}
				return
			}
			mu.Lock()
			out[rel] = localEntry{path: rel, mtimeMS: info.ModTime().UnixMilli()}
			mu.Unlock()
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return out, nil
}

// Compute diffs a scanned local tree against a remote listing. Directory
// entries in remoteEntries are skipped, so a raw ListFiles result can be
// passed as is.
//
// fetcher and ctx are used only when a content check is required (local
// mtime strictly greater than remote mtime); cache, if non-nil, is
// consulted first to avoid a redundant fetch.
func Compute(
	ctx context.Context,
	root string,
	local map[string]localEntry,
	remoteEntries []remoteapi.FileEntry,
	valID, branchID uuid.UUID,
	version uint64,
	fetcher ContentFetcher,
	cache *contentcache.Cache,
) (*FileStateChanges, error) {
	changes := NewFileStateChanges()

	remoteByPath := make(map[string]remoteapi.FileEntry, len(remoteEntries))
	for _, e := range remoteEntries {
		if e.Kind == remoteapi.KindDirectory {
			continue
		}
		remoteByPath[e.Path] = e
	}

	for path, loc := range local {
		remoteEntry, present := remoteByPath[path]
		if !present {
			kind := classify.InferKind(path, nil)
			changes.Created[path] = FileStatus{
				FileEntry: remoteapi.FileEntry{Path: path, Kind: kind, MTimeMS: loc.mtimeMS},
				Status:    StatusCreated,
			}
			continue
		}

		// Strict '>' comparison: equal mtimes after a round-trip count as
		// unchanged, never triggering a content check.
		if loc.mtimeMS <= remoteEntry.MTimeMS {
			changes.NotModified[path] = FileStatus{FileEntry: remoteEntry, Status: StatusNotModified}
			continue
		}

		equal, err := contentEquals(ctx, root, valID, branchID, version, path, remoteEntry.MTimeMS, fetcher, cache)
		if err != nil {
			return nil, err
		}
		if equal {
			changes.NotModified[path] = FileStatus{FileEntry: remoteEntry, Status: StatusNotModified}
		} else {
			changes.Modified[path] = FileStatus{FileEntry: remoteEntry, Status: StatusModified}
		}
	}

	for path, remoteEntry := range remoteByPath {
		if _, ok := local[path]; !ok {
			changes.Deleted[path] = FileStatus{FileEntry: remoteEntry, Status: StatusDeleted}
		}
	}

	collapseCreatedAndDeleted(changes)
	return changes, nil
}

func contentEquals(
	ctx context.Context,
	root string,
	valID, branchID uuid.UUID,
	version uint64,
	path string,
	remoteMTime int64,
	fetcher ContentFetcher,
	cache *contentcache.Cache,
) (bool, error) {
	localBytes, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		return false, fmt.Errorf("read local %s: %w", path, err)
	}
	localDigest := contentcache.HashContent(localBytes)

	if cache != nil {
		key := contentcache.Key{ValID: valID, BranchID: branchID, Version: version, Path: path, ServerMTime: remoteMTime}
		if cached, ok, err := cache.Lookup(ctx, key); err == nil && ok {
			return cached == localDigest, nil
		}
	}

	remoteBytes, err := fetcher.GetContent(ctx, valID, path, remoteapi.GetContentOptions{BranchID: branchID, Version: version})
	if err != nil {
		return false, fmt.Errorf("fetch remote content for %s: %w", path, err)
	}

	if cache != nil {
		key := contentcache.Key{ValID: valID, BranchID: branchID, Version: version, Path: path, ServerMTime: remoteMTime}
		_, _ = cache.Store(ctx, key, remoteBytes)
	}

	return bytes.Equal(localBytes, remoteBytes), nil
}

// collapseCreatedAndDeleted applies a post-pass: a path that
// is simultaneously created and deleted (a case-only rename or a retyped
// val) collapses into a single modified entry rather than violating the
// created∩deleted=∅ invariant.
func collapseCreatedAndDeleted(c *FileStateChanges) {
	for path, created := range c.Created {
		if deleted, ok := c.Deleted[path]; ok {
			delete(c.Created, path)
			delete(c.Deleted, path)
			merged := created
			merged.Status = StatusModified
			merged.Kind = deleted.Kind
			c.Modified[path] = merged
		}
	}
}
