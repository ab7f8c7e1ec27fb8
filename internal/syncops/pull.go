package syncops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/stage"
	"github.com/val-town/vt/internal/vterrors"
)

// PullOptions configures Pull.
type PullOptions struct {
	Force  bool
	DryRun bool
}

// Pull implements the pull operation.
func (s *SyncOps) Pull(ctx context.Context, opts PullOptions) (*diff.FileStateChanges, error) {
	if !opts.Force {
		dirty, err := s.Status(ctx)
		if err != nil {
			return nil, err
		}
		if len(dirty.Created) > 0 || len(dirty.Modified) > 0 {
			// Halt without touching the tree, but still report the remote
			// changes the pull would have applied so the caller can prompt.
			wouldApply, dryErr := s.Pull(ctx, PullOptions{Force: true, DryRun: true})
			if dryErr != nil {
				return nil, dryErr
			}
			return wouldApply, vterrors.ErrDirtyWorkingTree
		}
	}

	state, err := s.meta.GetState()
	if err != nil {
		return nil, err
	}

	branch, err := s.session.RemoteAPI.RetrieveBranch(ctx, state.Val.ID, state.Branch.ID)
	if err != nil {
		return nil, fmt.Errorf("retrieve branch: %w", err)
	}
	version := branch.Version

	entries, err := s.session.RemoteAPI.ListFiles(ctx, state.Val.ID, state.Branch.ID, version, true)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	rules, err := s.meta.LoadIgnoreRules()
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		s.recordRun()
	}

	var staleLocalOnly []string

	changes, _, err := stage.WithStaging(ctx, s.root, "vt-pull", func(ctx context.Context, staging string) (*diff.FileStateChanges, bool, error) {
		// Step 1: copy current working tree into staging, preserving
		// timestamps.
		if err := copyWorkingTreeInto(s.root, staging); err != nil {
			return nil, false, err
		}

		// Step 2: run clone into the same staging directory, overwriting
		// staged files with their remote bytes. Classification happens by
		// byte comparison against the staged copy, not by mtime: a remote
		// edit whose server mtime trails the local clock must still land.
		changes, err := overwriteFromRemote(ctx, s.session.RemoteAPI, staging, state.Val.ID, state.Branch.ID, version, entries, rules)
		if err != nil {
			return nil, false, err
		}

		// Step 3: paths present in staging but absent from the server
		// listing, and not ignored, are deleted.
		remotePaths := make(map[string]bool, len(entries))
		for _, e := range entries {
			if e.Kind != remoteapi.KindDirectory {
				remotePaths[e.Path] = true
			}
		}
		local, err := diff.ScanLocal(staging, rules)
		if err != nil {
			return nil, false, err
		}
		for path := range local {
			if remotePaths[path] || classify.IsIgnored(path, rules) {
				continue
			}
			staleLocalOnly = append(staleLocalOnly, path)
			changes.Deleted[path] = diff.FileStatus{
				FileEntry: remoteapi.FileEntry{Path: path, Kind: remoteapi.KindFile},
				Status:    diff.StatusDeleted,
			}
		}
		if !opts.DryRun {
			for _, path := range staleLocalOnly {
				if err := os.RemoveAll(filepath.Join(staging, path)); err != nil {
					return nil, false, vterrors.NewIOError(path, err)
				}
			}
		}

		return changes, !opts.DryRun, nil
	})
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return changes, nil
	}

	// WithStaging already merged the staged tree (with remote-driven writes
	// and stale-path removals already applied inside it) back over root;
	// any pre-existing copy of a now-stale path in root that wasn't part of
	// the merge must still be removed explicitly.
	if err := stage.RemoveStalePaths(s.root, staleLocalOnly); err != nil {
		return nil, err
	}

	if _, err := s.meta.UpdateState(meta.StateUpdate{BranchVersion: &version}); err != nil {
		return nil, err
	}

	s.session.NotifyReload(changedPaths(changes), version)
	return changes, nil
}

// overwriteFromRemote fetches every non-ignored, non-directory remote entry
// (bounded concurrency) and writes its bytes into staging, setting mtime
// from the server's updated-at. Each entry is classified against the staged
// copy by content: absent locally is created, differing bytes is modified,
// equal bytes is not_modified.
func overwriteFromRemote(
	ctx context.Context,
	api remoteapi.API,
	staging string,
	valID, branchID uuid.UUID,
	version uint64,
	entries []remoteapi.FileEntry,
	rules []classify.Rule,
) (*diff.FileStateChanges, error) {
	changes := diff.NewFileStateChanges()
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, ContentFetchConcurrency)
	errCh := make(chan error, 1)

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, e := range entries {
		if e.Kind == remoteapi.KindDirectory || classify.IsIgnored(e.Path, rules) {
			continue
		}
		e := e
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := api.GetContent(fanCtx, valID, e.Path, remoteapi.GetContentOptions{BranchID: branchID, Version: version})
			if err != nil {
				select {
				case errCh <- fmt.Errorf("fetch content for %s: %w", e.Path, err):
					cancel()
				default:
				}
				return
			}

			dest := filepath.Join(staging, e.Path)
			status := diff.StatusCreated
			if staged, readErr := os.ReadFile(dest); readErr == nil {
				if string(staged) == string(content) {
					status = diff.StatusNotModified
				} else {
					status = diff.StatusModified
				}
			}

			if status != diff.StatusNotModified {
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					select {
					case errCh <- vterrors.NewIOError(dest, err):
					default:
					}
					return
				}
				if err := os.WriteFile(dest, content, 0o644); err != nil {
					select {
					case errCh <- vterrors.NewIOError(dest, err):
					default:
					}
					return
				}
			}
			mtime := time.UnixMilli(e.MTimeMS)
			_ = os.Chtimes(dest, mtime, mtime)

			mu.Lock()
			switch status {
			case diff.StatusCreated:
				changes.Created[e.Path] = diff.FileStatus{FileEntry: e, Status: status}
			case diff.StatusModified:
				changes.Modified[e.Path] = diff.FileStatus{FileEntry: e, Status: status}
			default:
				changes.NotModified[e.Path] = diff.FileStatus{FileEntry: e, Status: status}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return changes, nil
}

// fetchAndWrite fetches remote content for every path in entries (bounded
// concurrency) and writes it into staging, setting mtime from the server's
// updated-at.
func fetchAndWrite(
	ctx context.Context,
	api remoteapi.API,
	staging string,
	valID, branchID uuid.UUID,
	version uint64,
	entries map[string]diff.FileStatus,
) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, ContentFetchConcurrency)
	errCh := make(chan error, 1)

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for path, fs := range entries {
		path, fs := path, fs
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := api.GetContent(fanCtx, valID, path, remoteapi.GetContentOptions{BranchID: branchID, Version: version})
			if err != nil {
				select {
				case errCh <- fmt.Errorf("fetch content for %s: %w", path, err):
					cancel()
				default:
				}
				return
			}

			dest := filepath.Join(staging, path)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				select {
				case errCh <- vterrors.NewIOError(dest, err):
				default:
				}
				return
			}
			if err := os.WriteFile(dest, content, 0o644); err != nil {
				select {
				case errCh <- vterrors.NewIOError(dest, err):
				default:
				}
				return
			}
			mtime := time.UnixMilli(fs.MTimeMS)
			_ = os.Chtimes(dest, mtime, mtime)
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return nil
}

func copyWorkingTreeInto(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	var dirs, files []string
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if rel == ".vt" || strings.HasPrefix(rel, ".vt"+string(filepath.Separator)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return vterrors.NewIOError(src, err)
	}

	sort.Strings(dirs)
	for _, rel := range dirs {
		if err := os.MkdirAll(filepath.Join(dst, rel), 0o755); err != nil {
			return vterrors.NewIOError(rel, err)
		}
	}
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(src, rel))
		if err != nil {
			return vterrors.NewIOError(rel, err)
		}
		data, err := os.ReadFile(filepath.Join(src, rel))
		if err != nil {
			return vterrors.NewIOError(rel, err)
		}
		dest := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return vterrors.NewIOError(dest, err)
		}
		if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
			return vterrors.NewIOError(dest, err)
		}
		mtime := info.ModTime()
		_ = os.Chtimes(dest, mtime, mtime)
	}
	return nil
}
