package syncops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/stage"
	"github.com/val-town/vt/internal/vterrors"
)

// CheckoutOptions configures Checkout. Exactly one of BranchName (existing
// branch) or NewBranchName (create-and-switch) should be set.
type CheckoutOptions struct {
	BranchName string

	NewBranchName      string
	ForkedFromBranchID uuid.UUID

	Force bool
}

// Checkout implements the checkout operation.
func (s *SyncOps) Checkout(ctx context.Context, opts CheckoutOptions) (*diff.FileStateChanges, error) {
	state, err := s.meta.GetState()
	if err != nil {
		return nil, err
	}

	if !opts.Force {
		dirty, err := s.Status(ctx)
		if err != nil {
			return nil, err
		}
		if len(dirty.Created) > 0 || len(dirty.Modified) > 0 {
			return dirty, vterrors.ErrDirtyWorkingTree
		}
	}

	targetBranchID, err := s.resolveTargetBranch(ctx, state.Val.ID, opts)
	if err != nil {
		return nil, err
	}

	branch, err := s.session.RemoteAPI.RetrieveBranch(ctx, state.Val.ID, targetBranchID)
	if err != nil {
		return nil, fmt.Errorf("retrieve target branch: %w", err)
	}
	version := branch.Version

	entries, err := s.session.RemoteAPI.ListFiles(ctx, state.Val.ID, targetBranchID, version, true)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	remoteByPath := make(map[string]remoteapi.FileEntry, len(entries))
	for _, e := range entries {
		if e.Kind != remoteapi.KindDirectory {
			remoteByPath[e.Path] = e
		}
	}

	rules, err := s.meta.LoadIgnoreRules()
	if err != nil {
		return nil, err
	}

	s.recordRun()

	var removed []string

	changes, _, err := stage.WithStaging(ctx, s.root, "vt-checkout", func(ctx context.Context, staging string) (*diff.FileStateChanges, bool, error) {
		if err := copyWorkingTreeInto(s.root, staging); err != nil {
			return nil, false, err
		}

		local, err := diff.ScanLocal(staging, rules)
		if err != nil {
			return nil, false, err
		}

		changes := diff.NewFileStateChanges()
		toFetch := map[string]diff.FileStatus{}
		for path, entry := range remoteByPath {
			changes.Created[path] = diff.FileStatus{FileEntry: entry, Status: diff.StatusCreated}
			toFetch[path] = diff.FileStatus{FileEntry: entry, Status: diff.StatusCreated}
		}
		if err := fetchAndWrite(ctx, s.session.RemoteAPI, staging, state.Val.ID, targetBranchID, version, toFetch); err != nil {
			return nil, false, err
		}

		for path := range local {
			if _, ok := remoteByPath[path]; ok {
				continue
			}
			if classify.IsIgnored(path, rules) {
				continue
			}
			removed = append(removed, path)
			changes.Deleted[path] = diff.FileStatus{
				FileEntry: remoteapi.FileEntry{Path: path, Kind: remoteapi.KindFile},
				Status:    diff.StatusDeleted,
			}
			if err := os.RemoveAll(filepath.Join(staging, path)); err != nil {
				return nil, false, err
			}
		}

		if err := stage.RemoveEmptyDirs(staging); err != nil {
			return nil, false, err
		}

		return changes, true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := stage.RemoveStalePaths(s.root, removed); err != nil {
		return nil, err
	}

	if _, err := s.meta.UpdateState(meta.StateUpdate{BranchID: &targetBranchID, BranchVersion: &version}); err != nil {
		return nil, err
	}

	s.session.NotifyReload(changedPaths(changes), version)
	return changes, nil
}

func (s *SyncOps) resolveTargetBranch(ctx context.Context, valID uuid.UUID, opts CheckoutOptions) (uuid.UUID, error) {
	if opts.NewBranchName != "" {
		branch, err := s.session.RemoteAPI.CreateBranch(ctx, valID, opts.NewBranchName, opts.ForkedFromBranchID)
		if err != nil {
			if errors.Is(err, vterrors.ErrConflict) {
				return uuid.Nil, vterrors.ErrBranchExists
			}
			return uuid.Nil, fmt.Errorf("create branch: %w", err)
		}
		return branch.ID, nil
	}

	branches, err := s.session.RemoteAPI.ListBranches(ctx, valID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list branches: %w", err)
	}
	for _, b := range branches {
		if b.Name == opts.BranchName {
			return b.ID, nil
		}
	}
	return uuid.Nil, vterrors.ErrBranchNotFound
}

// Delete severs the local binding only, never touching the remote Val.
func (s *SyncOps) Delete(ctx context.Context, force bool) error {
	if _, err := s.meta.GetState(); err != nil {
		return err
	}
	if !force {
		changes, err := s.Status(ctx)
		if err != nil {
			return err
		}
		if !changes.IsClean() {
			return vterrors.ErrDirtyWorkingTree
		}
	}
	return s.meta.DestroyState()
}
