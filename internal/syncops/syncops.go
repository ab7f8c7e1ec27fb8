// Package syncops implements SyncOps: clone, pull, push,
// checkout, status, stash, and delete, built atop AtomicStage, MetaStore,
// the Differ, and a RemoteApi collaborator.
package syncops

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/session"
	"github.com/val-town/vt/internal/stage"
	"github.com/val-town/vt/internal/vterrors"
)

// ContentFetchConcurrency bounds the parallel content fetches a clone,
// pull or checkout issues.
const ContentFetchConcurrency = 50

// SyncOps is the public operation surface over one working tree.
type SyncOps struct {
	root    string
	meta    *meta.MetaStore
	session *session.Session
	logger  *log.Logger
}

// New creates a SyncOps rooted at root, using sess for its remote/cache/
// companion collaborators. If logger is nil, a default stderr logger is used.
func New(root string, sess *session.Session, logger *log.Logger) *SyncOps {
	if logger == nil {
		logger = log.New(os.Stderr, "[vt] ", log.LstdFlags)
	}
	return &SyncOps{
		root:    root,
		meta:    meta.New(root),
		session: sess,
		logger:  logger,
	}
}

// CloneOptions configures Clone.
type CloneOptions struct {
	ValID    uuid.UUID
	BranchID uuid.UUID
	// Version defaults to the branch's latest when zero and Branch.Version
	// from RetrieveBranch is used instead.
	Version uint64

	// UploadExisting, when true, allows cloning into a non-empty directory:
	// the first subsequent push uploads the directory's existing files
	// instead of failing with TargetNotEmpty.
	UploadExisting bool
}

// Clone implements the clone operation.
func (s *SyncOps) Clone(ctx context.Context, opts CloneOptions) (*diff.FileStateChanges, error) {
	if err := s.checkTargetEmpty(opts.UploadExisting); err != nil {
		return nil, err
	}

	version := opts.Version
	if version == 0 {
		branch, err := s.session.RemoteAPI.RetrieveBranch(ctx, opts.ValID, opts.BranchID)
		if err != nil {
			return nil, fmt.Errorf("retrieve branch: %w", err)
		}
		version = branch.Version
	}

	entries, err := s.session.RemoteAPI.ListFiles(ctx, opts.ValID, opts.BranchID, version, true)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	rules, err := s.meta.LoadIgnoreRules()
	if err != nil {
		return nil, err
	}

	changes, _, err := stage.WithStaging(ctx, s.root, "vt-clone", func(ctx context.Context, staging string) (*diff.FileStateChanges, bool, error) {
		changes := diff.NewFileStateChanges()
		var mu sync.Mutex
		var wg sync.WaitGroup
		sem := make(chan struct{}, ContentFetchConcurrency)
		errCh := make(chan error, 1)

		// The first unrecoverable error cancels the outstanding fetches.
		fanCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		for _, e := range entries {
			if e.Kind == remoteapi.KindDirectory {
				continue
			}
			if classify.IsIgnored(e.Path, rules) {
				continue
			}
			e := e
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				content, err := s.session.RemoteAPI.GetContent(fanCtx, opts.ValID, e.Path, remoteapi.GetContentOptions{BranchID: opts.BranchID, Version: version})
				if err != nil {
					select {
					case errCh <- fmt.Errorf("fetch content for %s: %w", e.Path, err):
						cancel()
					default:
					}
					return
				}

				dest := filepath.Join(staging, e.Path)
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
				mtime := time.UnixMilli(e.MTimeMS)
				_ = os.Chtimes(dest, mtime, mtime)

				mu.Lock()
				changes.Created[e.Path] = diff.FileStatus{FileEntry: e, Status: diff.StatusCreated}
				mu.Unlock()
			}()
		}
		wg.Wait()

		select {
		case err := <-errCh:
			return nil, false, err
		default:
		}

		if err := stage.RemoveEmptyDirs(staging); err != nil {
			return nil, false, err
		}

		return changes, true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.meta.InitState(meta.WorkingTreeState{
		Val:    meta.ValState{ID: opts.ValID},
		Branch: meta.BranchState{ID: opts.BranchID, Version: version},
	}); err != nil {
		return nil, err
	}

	s.session.NotifyReload(changedPaths(changes), version)
	return changes, nil
}

func (s *SyncOps) checkTargetEmpty(uploadExisting bool) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return vterrors.NewIOError(s.root, err)
	}

	// A .vt directory doesn't count toward emptiness: the caller may have
	// already placed a config or cache file there before cloning.
	var userEntries int
	for _, e := range entries {
		if e.Name() != ".vt" {
			userEntries++
		}
	}
	if userEntries == 0 || uploadExisting {
		return nil
	}
	if _, err := s.meta.GetState(); err == nil {
		// Already an initialized working tree; cloning over it is allowed.
		return nil
	}
	return vterrors.ErrTargetNotEmpty
}

// State returns the working tree's current binding, for callers (the CLI
// veneer) that need the current val/branch/version without triggering a
// mutating op.
func (s *SyncOps) State() (*meta.WorkingTreeState, error) {
	return s.meta.GetState()
}

// Root returns the working-tree root this SyncOps operates on.
func (s *SyncOps) Root() string { return s.root }

// Status computes FileStateChanges without writing anything: a dry run of
// push, and also used internally to detect a dirty tree.
func (s *SyncOps) Status(ctx context.Context) (*diff.FileStateChanges, error) {
	state, err := s.meta.GetState()
	if err != nil {
		return nil, err
	}
	rules, err := s.meta.LoadIgnoreRules()
	if err != nil {
		return nil, err
	}
	local, err := diff.ScanLocal(s.root, rules)
	if err != nil {
		return nil, err
	}

	remoteEntries, err := s.session.RemoteAPI.ListFiles(ctx, state.Val.ID, state.Branch.ID, state.Branch.Version, true)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	return diff.Compute(ctx, s.root, local, remoteEntries, state.Val.ID, state.Branch.ID, state.Branch.Version, s.session.RemoteAPI, s.session.Cache)
}

// PushOptions configures Push.
type PushOptions struct {
	// Precomputed, if non-nil, is used instead of recomputing Status.
	Precomputed *diff.FileStateChanges
	DryRun      bool
}

// recordRun advertises this process as the working tree's current driver,
// written at the start of pull, push and checkout. Clone (which creates the
// state file only at its end), stash pop and delete do not record a run.
// The watch lock inspects it on
// startup; protection is advisory only, so a write failure is not fatal.
func (s *SyncOps) recordRun() {
	pid := os.Getpid()
	now := time.Now().UTC()
	if _, err := s.meta.UpdateState(meta.StateUpdate{LastRunPID: &pid, LastRunTime: &now}); err != nil {
		s.logger.Printf("record run: %v", err)
	}
}

// Push implements the push operation.
func (s *SyncOps) Push(ctx context.Context, opts PushOptions) (*diff.FileStateChanges, error) {
	state, err := s.meta.GetState()
	if err != nil {
		return nil, err
	}

	val, err := s.session.RemoteAPI.RetrieveVal(ctx, state.Val.ID)
	if err != nil {
		return nil, fmt.Errorf("retrieve val: %w", err)
	}
	if !val.CanWrite {
		return nil, vterrors.ErrPermissionDenied
	}

	changes := opts.Precomputed
	if changes == nil {
		changes, err = s.Status(ctx)
		if err != nil {
			return nil, err
		}
	}

	if opts.DryRun {
		return changes, nil
	}

	s.recordRun()

	if err := s.pushDirectories(ctx, state, changes); err != nil {
		return nil, err
	}

	for path, fs := range changes.Modified {
		content, err := os.ReadFile(filepath.Join(s.root, path))
		if err != nil {
			return nil, vterrors.NewIOError(path, err)
		}
		err = s.session.RemoteAPI.UpdateFile(ctx, state.Val.ID, path, remoteapi.UpdateFileOptions{
			BranchID: state.Branch.ID,
			Name:     filepath.Base(path),
			Kind:     fs.Kind,
			Content:  content,
		})
		if err != nil {
			if errorsIsConflict(err) {
				changes.Warnings = append(changes.Warnings, fmt.Sprintf("conflict updating %s", path))
				continue
			}
			return nil, fmt.Errorf("update %s: %w", path, err)
		}
	}

	for path := range changes.Deleted {
		err := s.session.RemoteAPI.DeleteFile(ctx, state.Val.ID, path, remoteapi.DeleteFileOptions{
			BranchID: state.Branch.ID,
			Version:  state.Branch.Version,
		})
		if err != nil && !errorsIsNotFound(err) {
			return nil, fmt.Errorf("delete %s: %w", path, err)
		}
	}

	for path, fs := range changes.Created {
		content, err := os.ReadFile(filepath.Join(s.root, path))
		if err != nil {
			return nil, vterrors.NewIOError(path, err)
		}
		kind := classify.InferKind(path, nil)
		if fs.Kind != "" {
			kind = fs.Kind
		}
		err = s.session.RemoteAPI.CreateFile(ctx, state.Val.ID, path, remoteapi.CreateFileOptions{
			BranchID: state.Branch.ID,
			Kind:     kind,
			Content:  content,
		})
		if err != nil {
			if errorsIsConflict(err) {
				changes.Warnings = append(changes.Warnings, fmt.Sprintf("conflict creating %s", path))
				continue
			}
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	}

	newBranch, err := s.session.RemoteAPI.RetrieveBranch(ctx, state.Val.ID, state.Branch.ID)
	if err != nil {
		return nil, fmt.Errorf("retrieve branch after push: %w", err)
	}
	if _, err := s.meta.UpdateState(meta.StateUpdate{BranchVersion: &newBranch.Version}); err != nil {
		return nil, err
	}

	s.session.NotifyReload(changedPaths(changes), newBranch.Version)
	return changes, nil
}

// pushDirectories ensures every intermediate directory of a created path
// exists on the remote before that path's file is created.
func (s *SyncOps) pushDirectories(ctx context.Context, state *meta.WorkingTreeState, changes *diff.FileStateChanges) error {
	dirSet := map[string]bool{}
	for path := range changes.Created {
		dir := filepath.Dir(path)
		for dir != "." && dir != "/" && dir != "" {
			dirSet[dir] = true
			dir = filepath.Dir(dir)
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) < len(dirs[j]) })

	for _, dir := range dirs {
		err := s.session.RemoteAPI.CreateFile(ctx, state.Val.ID, dir, remoteapi.CreateFileOptions{
			BranchID: state.Branch.ID,
			Kind:     remoteapi.KindDirectory,
		})
		if err != nil && !errorsIsConflict(err) {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func changedPaths(changes *diff.FileStateChanges) []string {
	var paths []string
	for p := range changes.Created {
		paths = append(paths, p)
	}
	for p := range changes.Modified {
		paths = append(paths, p)
	}
	for p := range changes.Deleted {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func errorsIsConflict(err error) bool { return errors.Is(err, vterrors.ErrConflict) }
func errorsIsNotFound(err error) bool { return errors.Is(err, vterrors.ErrNotFound) }
