// Package remoteapi defines the contract vt's sync engine requires of the
// remote Val platform. It is deliberately an interface plus plain
// data types only: the engine treats the remote as an opaque collaborator,
// and no HTTP transport implementation lives in this package; the real
// wire client is out of the core engine's scope.
package remoteapi

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind is the semantic type of a FileEntry.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
	KindScript    Kind = "script"
	KindHTTP      Kind = "http"
	KindEmail     Kind = "email"
	KindInterval  Kind = "interval"
)

// IsValFile reports whether k is one of the executable val-file variants.
func (k Kind) IsValFile() bool {
	switch k {
	case KindScript, KindHTTP, KindEmail, KindInterval:
		return true
	default:
		return false
	}
}

// FileEntry is the shape shared by remote listings and local file state.
// Content is lazily fetched and absent from a plain listing.
type FileEntry struct {
	Path    string
	Kind    Kind
	MTimeMS int64
	Content []byte
}

// Privacy controls who can see a created Val.
type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

// Branch describes a named line of versions within a Val.
type Branch struct {
	ID        uuid.UUID
	Name      string
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Val describes a remote Val's metadata.
type Val struct {
	ID        uuid.UUID
	Name      string
	AuthorID  uuid.UUID
	Privacy   Privacy
	CanWrite  bool
	CreatedAt time.Time
}

// User is the authenticated identity associated with the configured api key.
type User struct {
	ID       uuid.UUID
	Username string
}

// CreateFileOptions configures CreateFile.
type CreateFileOptions struct {
	BranchID uuid.UUID
	Kind     Kind
	Content  []byte
}

// UpdateFileOptions configures UpdateFile.
type UpdateFileOptions struct {
	BranchID uuid.UUID
	Name     string
	Kind     Kind
	Content  []byte
}

// DeleteFileOptions configures DeleteFile.
type DeleteFileOptions struct {
	BranchID uuid.UUID
	Version  uint64
}

// GetContentOptions pins a content fetch to a branch/version.
type GetContentOptions struct {
	BranchID uuid.UUID
	Version  uint64
}

// API is the capability set the sync engine requires of the remote
// platform. Every method may return one of the sentinel errors in
// internal/vterrors (ErrNotFound, ErrConflict, ErrPermissionDenied,
// ErrUnauthenticated, ErrRemoteUnavailable).
type API interface {
	RetrieveVal(ctx context.Context, valID uuid.UUID) (*Val, error)
	ListBranches(ctx context.Context, valID uuid.UUID) ([]Branch, error)
	RetrieveBranch(ctx context.Context, valID, branchID uuid.UUID) (*Branch, error)
	CreateBranch(ctx context.Context, valID uuid.UUID, name string, forkedFromID uuid.UUID) (*Branch, error)

	// ListFiles streams (via the returned slice) the file/directory entries
	// at the given version. Directories are included; callers filter them
	// out: diffs never contain directory entries.
	ListFiles(ctx context.Context, valID, branchID uuid.UUID, version uint64, recursive bool) ([]FileEntry, error)

	GetContent(ctx context.Context, valID uuid.UUID, path string, opts GetContentOptions) ([]byte, error)
	CreateFile(ctx context.Context, valID uuid.UUID, path string, opts CreateFileOptions) error
	UpdateFile(ctx context.Context, valID uuid.UUID, path string, opts UpdateFileOptions) error
	DeleteFile(ctx context.Context, valID uuid.UUID, path string, opts DeleteFileOptions) error

	CreateVal(ctx context.Context, name string, privacy Privacy, description string, orgID *uuid.UUID) (*Val, error)
	DeleteVal(ctx context.Context, valID uuid.UUID) error

	CurrentUser(ctx context.Context) (*User, error)
}
