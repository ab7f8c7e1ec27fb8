// Package remoteapitest provides an in-memory fake of remoteapi.API for use
// in engine tests, standing in for a real HTTP client without shelling out
// to a network. It is not a network client.
package remoteapitest

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/vterrors"
)

type branchState struct {
	branch remoteapi.Branch
	// versions[v][path] = entry as of version v (snapshot-per-version so
	// Clone/Pull at an older version still work in tests).
	versions []map[string]remoteapi.FileEntry
}

// Fake is an in-memory implementation of remoteapi.API.
//
// Writes always land on the latest version of a branch and append a new
// snapshot; tests can therefore clone/pull an older version and still see
// history. CanWrite defaults to true; set it false to exercise
// ErrPermissionDenied paths.
type Fake struct {
	mu sync.Mutex

	val      remoteapi.Val
	user     remoteapi.User
	branches map[uuid.UUID]*branchState

	// CanWrite gates every mutating call (CreateFile/UpdateFile/DeleteFile/
	// CreateBranch). Defaults true.
	CanWrite bool

	// Unavailable, when true, makes every call return ErrRemoteUnavailable.
	Unavailable bool
}

// New creates a Fake with a single "main" branch at version 0 and no files.
func New() *Fake {
	f := &Fake{
		branches: make(map[uuid.UUID]*branchState),
		CanWrite: true,
	}
	f.val = remoteapi.Val{
		ID:        uuid.New(),
		Name:      "fake-val",
		AuthorID:  uuid.New(),
		Privacy:   remoteapi.PrivacyPrivate,
		CanWrite:  true,
		CreatedAt: time.Unix(0, 0).UTC(),
	}
	f.user = remoteapi.User{ID: f.val.AuthorID, Username: "tester"}

	mainID := uuid.New()
	f.branches[mainID] = &branchState{
		branch: remoteapi.Branch{
			ID:      mainID,
			Name:    "main",
			Version: 0,
		},
		versions: []map[string]remoteapi.FileEntry{{}},
	}
	return f
}

// ValID returns the fake Val's ID.
func (f *Fake) ValID() uuid.UUID { return f.val.ID }

// MainBranchID returns the ID of the default "main" branch.
func (f *Fake) MainBranchID() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.branches {
		if b.branch.Name == "main" {
			return id
		}
	}
	return uuid.Nil
}

// MainBranchVersion returns the current version number of the "main" branch.
func (f *Fake) MainBranchVersion() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branches {
		if b.branch.Name == "main" {
			return b.branch.Version
		}
	}
	return 0
}

// Seed writes entries directly into a branch's current version without
// going through CreateFile, useful for setting up clone/pull fixtures.
func (f *Fake) Seed(branchID uuid.UUID, entries ...remoteapi.FileEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.branches[branchID]
	snap := cloneSnapshot(b.versions[len(b.versions)-1])
	for _, e := range entries {
		snap[e.Path] = e
	}
	b.versions = append(b.versions, snap)
	b.branch.Version = uint64(len(b.versions) - 1)
	f.branches[branchID] = b
}

func cloneSnapshot(m map[string]remoteapi.FileEntry) map[string]remoteapi.FileEntry {
	out := make(map[string]remoteapi.FileEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *Fake) checkVal(valID uuid.UUID) error {
	if valID != f.val.ID {
		return vterrors.ErrNotFound
	}
	return nil
}

// RetrieveVal implements remoteapi.API.
func (f *Fake) RetrieveVal(ctx context.Context, valID uuid.UUID) (*remoteapi.Val, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	v := f.val
	return &v, nil
}

// ListBranches implements remoteapi.API.
func (f *Fake) ListBranches(ctx context.Context, valID uuid.UUID) ([]remoteapi.Branch, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	out := make([]remoteapi.Branch, 0, len(f.branches))
	for _, b := range f.branches {
		out = append(out, b.branch)
	}
	return out, nil
}

// RetrieveBranch implements remoteapi.API.
func (f *Fake) RetrieveBranch(ctx context.Context, valID, branchID uuid.UUID) (*remoteapi.Branch, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	b, ok := f.branches[branchID]
	if !ok {
		return nil, vterrors.ErrNotFound
	}
	br := b.branch
	return &br, nil
}

// CreateBranch implements remoteapi.API.
func (f *Fake) CreateBranch(ctx context.Context, valID uuid.UUID, name string, forkedFromID uuid.UUID) (*remoteapi.Branch, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return nil, vterrors.ErrPermissionDenied
	}
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	for _, b := range f.branches {
		if b.branch.Name == name {
			return nil, vterrors.ErrConflict
		}
	}

	var snap map[string]remoteapi.FileEntry
	if forkedFromID != uuid.Nil {
		src, ok := f.branches[forkedFromID]
		if !ok {
			return nil, vterrors.ErrNotFound
		}
		snap = cloneSnapshot(src.versions[len(src.versions)-1])
	} else {
		snap = map[string]remoteapi.FileEntry{}
	}

	id := uuid.New()
	f.branches[id] = &branchState{
		branch:   remoteapi.Branch{ID: id, Name: name, Version: 0},
		versions: []map[string]remoteapi.FileEntry{snap},
	}
	br := f.branches[id].branch
	return &br, nil
}

func (f *Fake) snapshotAt(branchID uuid.UUID, version uint64) (map[string]remoteapi.FileEntry, error) {
	b, ok := f.branches[branchID]
	if !ok {
		return nil, vterrors.ErrNotFound
	}
	if int(version) >= len(b.versions) {
		return nil, vterrors.ErrNotFound
	}
	return b.versions[version], nil
}

// ListFiles implements remoteapi.API.
func (f *Fake) ListFiles(ctx context.Context, valID, branchID uuid.UUID, version uint64, recursive bool) ([]remoteapi.FileEntry, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	snap, err := f.snapshotAt(branchID, version)
	if err != nil {
		return nil, err
	}
	out := make([]remoteapi.FileEntry, 0, len(snap))
	for _, e := range snap {
		e.Content = nil
		out = append(out, e)
	}
	return out, nil
}

// GetContent implements remoteapi.API.
func (f *Fake) GetContent(ctx context.Context, valID uuid.UUID, p string, opts remoteapi.GetContentOptions) ([]byte, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkVal(valID); err != nil {
		return nil, err
	}
	snap, err := f.snapshotAt(opts.BranchID, opts.Version)
	if err != nil {
		return nil, err
	}
	e, ok := snap[p]
	if !ok {
		return nil, vterrors.ErrNotFound
	}
	return append([]byte(nil), e.Content...), nil
}

func (f *Fake) mutate(branchID uuid.UUID, fn func(snap map[string]remoteapi.FileEntry) error) error {
	b, ok := f.branches[branchID]
	if !ok {
		return vterrors.ErrNotFound
	}
	snap := cloneSnapshot(b.versions[len(b.versions)-1])
	if err := fn(snap); err != nil {
		return err
	}
	b.versions = append(b.versions, snap)
	b.branch.Version = uint64(len(b.versions) - 1)
	return nil
}

// CreateFile implements remoteapi.API.
func (f *Fake) CreateFile(ctx context.Context, valID uuid.UUID, p string, opts remoteapi.CreateFileOptions) error {
	if f.Unavailable {
		return vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return vterrors.ErrPermissionDenied
	}
	if err := f.checkVal(valID); err != nil {
		return err
	}
	return f.mutate(opts.BranchID, func(snap map[string]remoteapi.FileEntry) error {
		if _, exists := snap[p]; exists {
			return vterrors.ErrConflict
		}
		snap[p] = remoteapi.FileEntry{
			Path:    p,
			Kind:    opts.Kind,
			MTimeMS: nowMS(),
			Content: append([]byte(nil), opts.Content...),
		}
		return nil
	})
}

// UpdateFile implements remoteapi.API.
func (f *Fake) UpdateFile(ctx context.Context, valID uuid.UUID, p string, opts remoteapi.UpdateFileOptions) error {
	if f.Unavailable {
		return vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return vterrors.ErrPermissionDenied
	}
	if err := f.checkVal(valID); err != nil {
		return err
	}
	return f.mutate(opts.BranchID, func(snap map[string]remoteapi.FileEntry) error {
		existing, ok := snap[p]
		kind := opts.Kind
		if ok {
			// Kind is stable across a push.
			kind = existing.Kind
		}
		snap[p] = remoteapi.FileEntry{
			Path:    p,
			Kind:    kind,
			MTimeMS: nowMS(),
			Content: append([]byte(nil), opts.Content...),
		}
		return nil
	})
}

// DeleteFile implements remoteapi.API.
func (f *Fake) DeleteFile(ctx context.Context, valID uuid.UUID, p string, opts remoteapi.DeleteFileOptions) error {
	if f.Unavailable {
		return vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return vterrors.ErrPermissionDenied
	}
	if err := f.checkVal(valID); err != nil {
		return err
	}
	return f.mutate(opts.BranchID, func(snap map[string]remoteapi.FileEntry) error {
		if _, ok := snap[p]; !ok {
			return vterrors.ErrNotFound
		}
		delete(snap, p)
		return nil
	})
}

// CreateVal implements remoteapi.API.
func (f *Fake) CreateVal(ctx context.Context, name string, privacy remoteapi.Privacy, description string, orgID *uuid.UUID) (*remoteapi.Val, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return nil, vterrors.ErrPermissionDenied
	}
	v := remoteapi.Val{
		ID:        uuid.New(),
		Name:      name,
		AuthorID:  f.user.ID,
		Privacy:   privacy,
		CanWrite:  true,
		CreatedAt: time.Now().UTC(),
	}
	return &v, nil
}

// DeleteVal implements remoteapi.API.
func (f *Fake) DeleteVal(ctx context.Context, valID uuid.UUID) error {
	if f.Unavailable {
		return vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.CanWrite {
		return vterrors.ErrPermissionDenied
	}
	return f.checkVal(valID)
}

// CurrentUser implements remoteapi.API.
func (f *Fake) CurrentUser(ctx context.Context) (*remoteapi.User, error) {
	if f.Unavailable {
		return nil, vterrors.ErrRemoteUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.user
	return &u, nil
}

func nowMS() int64 { return time.Now().UnixMilli() }

// NormalizePath joins path segments POSIX-style, matching the wire format
// used by ListFiles/GetContent/CreateFile paths.
func NormalizePath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

var _ remoteapi.API = (*Fake)(nil)
