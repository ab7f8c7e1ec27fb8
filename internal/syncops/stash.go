package syncops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/stage"
	"github.com/val-town/vt/internal/vterrors"
)

const stashDirName = "stash"

// StashManifest records what was stashed and against which remote state.
type StashManifest struct {
	ID        string    `yaml:"id"`
	CreatedAt time.Time `yaml:"createdAt"`
	ValID     uuid.UUID `yaml:"valId"`
	BranchID  uuid.UUID `yaml:"branchId"`
	Version   uint64    `yaml:"version"`
	Paths     []string  `yaml:"paths"`
}

func (s *SyncOps) stashRoot() string {
	return filepath.Join(s.root, ".vt", stashDirName)
}

// StashSave serializes every created/modified path in changes into
// .vt/stash/<id>/, alongside a manifest, and returns the new stash's ID.
func (s *SyncOps) StashSave(ctx context.Context, changes *diff.FileStateChanges) (string, error) {
	state, err := s.meta.GetState()
	if err != nil {
		return "", err
	}

	id := fmt.Sprintf("%d", time.Now().UnixNano())
	dir := filepath.Join(s.stashRoot(), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", vterrors.NewIOError(dir, err)
	}

	var paths []string
	for path := range changes.Created {
		paths = append(paths, path)
	}
	for path := range changes.Modified {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		src := filepath.Join(s.root, path)
		data, err := os.ReadFile(src)
		if err != nil {
			return "", vterrors.NewIOError(src, err)
		}
		dest := filepath.Join(dir, "files", path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", vterrors.NewIOError(dest, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", vterrors.NewIOError(dest, err)
		}
	}

	manifest := StashManifest{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		ValID:     state.Val.ID,
		BranchID:  state.Branch.ID,
		Version:   state.Branch.Version,
		Paths:     paths,
	}
	manifestBytes, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", fmt.Errorf("marshal stash manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest"), manifestBytes, 0o644); err != nil {
		return "", vterrors.NewIOError(dir, err)
	}

	return id, nil
}

// StashList returns stash manifests newest-first.
func (s *SyncOps) StashList() ([]StashManifest, error) {
	entries, err := os.ReadDir(s.stashRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vterrors.NewIOError(s.stashRoot(), err)
	}

	var manifests []StashManifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := s.readManifest(e.Name())
		if err != nil {
			continue
		}
		manifests = append(manifests, *m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].CreatedAt.After(manifests[j].CreatedAt) })
	return manifests, nil
}

func (s *SyncOps) readManifest(id string) (*StashManifest, error) {
	data, err := os.ReadFile(filepath.Join(s.stashRoot(), id, "manifest"))
	if err != nil {
		return nil, vterrors.NewIOError(id, err)
	}
	var m StashManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse stash manifest %s: %w", id, err)
	}
	return &m, nil
}

// StashPop copies the stashed files named id back into the working tree via
// AtomicStage (a failed pop leaves the tree untouched) and removes the
// stash entry on success.
func (s *SyncOps) StashPop(ctx context.Context, id string) error {
	manifest, err := s.readManifest(id)
	if err != nil {
		return vterrors.ErrStashNotFound
	}

	filesDir := filepath.Join(s.stashRoot(), id, "files")
	_, _, err = stage.WithStaging(ctx, s.root, "vt-stash-pop", func(ctx context.Context, staging string) (struct{}, bool, error) {
		if err := copyWorkingTreeInto(s.root, staging); err != nil {
			return struct{}{}, false, err
		}
		for _, path := range manifest.Paths {
			data, err := os.ReadFile(filepath.Join(filesDir, path))
			if err != nil {
				return struct{}{}, false, vterrors.NewIOError(path, err)
			}
			dest := filepath.Join(staging, path)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return struct{}{}, false, vterrors.NewIOError(dest, err)
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return struct{}{}, false, vterrors.NewIOError(dest, err)
			}
		}
		return struct{}{}, true, nil
	})
	if err != nil {
		return err
	}

	return os.RemoveAll(filepath.Join(s.stashRoot(), id))
}
