package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"

	"github.com/val-town/vt/internal/config"
	"github.com/val-town/vt/internal/contentcache"
	"github.com/val-town/vt/internal/httpapi"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/session"
	"github.com/val-town/vt/internal/syncops"
)

// openSessionAt builds a Session rooted at root without requiring root to
// already be a working tree; used by clone and create, which establish
// .vt/state themselves.
func openSessionAt(root string) (*session.Session, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	cache, err := contentcache.Open(filepath.Join(root, ".vt", "cache.db"))
	if err != nil {
		return nil, err
	}
	api := httpapi.New(os.Getenv("VT_API_BASE_URL"), cfg.APIKey, nil)
	return session.New(api, cfg, cache, nil), nil
}

// openWorkingTree locates the working-tree root by walking up from the
// current directory and wires a SyncOps against it.
func openWorkingTree() (*syncops.SyncOps, string, *session.Session, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", nil, err
	}
	root, err := meta.FindRoot(wd)
	if err != nil {
		return nil, "", nil, err
	}
	sess, err := openSessionAt(root)
	if err != nil {
		return nil, "", nil, err
	}
	return syncops.New(root, sess, nil), root, sess, nil
}

// parseValID accepts either a bare UUID or a val-uri with the UUID as its
// final path segment. Resolving human-readable val-uris (usernames, val
// names) to a UUID is not part of the RemoteApi contract, so only UUID-shaped identifiers are accepted.
func parseValID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	parts := strings.Split(raw, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if id, err := uuid.Parse(parts[i]); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%q does not contain a val id (expected a UUID or a URI ending in one)", raw)
}

// resolveBranchByName looks up a branch by name via ListBranches, since the
// RemoteApi contract has no get-by-name method.
func resolveBranchByName(ctx context.Context, sess *session.Session, valID uuid.UUID, name string) (uuid.UUID, error) {
	branches, err := sess.RemoteAPI.ListBranches(ctx, valID)
	if err != nil {
		return uuid.Nil, err
	}
	for _, b := range branches {
		if b.Name == name {
			return b.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("branch %q not found", name)
}

// confirmDestructive prompts the user via huh when Config.Confirmation is
// set.
// When Confirmation is off, it returns true without prompting.
func confirmDestructive(cfg *config.Config, prompt string) (bool, error) {
	if cfg == nil || !cfg.Confirmation {
		return true, nil
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(prompt).Value(&ok)))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

func privacyFromFlags(public, private, unlisted bool) remoteapi.Privacy {
	switch {
	case private:
		return remoteapi.PrivacyPrivate
	case unlisted:
		return remoteapi.PrivacyUnlisted
	default:
		return remoteapi.PrivacyPublic
	}
}

// orgIDFromFlag translates the CLI's "--org me" sentinel to nil at the CLI
// boundary; it never reaches the engine, which takes a plain *uuid.UUID.
func orgIDFromFlag(raw string) (*uuid.UUID, error) {
	if raw == "" || raw == "me" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("--org: %w", err)
	}
	return &id, nil
}
