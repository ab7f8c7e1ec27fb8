// Package session bundles a SyncOp's collaborators into an explicit value
// passed into every call: no process-global mutable state.
package session

import (
	"github.com/val-town/vt/internal/companion"
	"github.com/val-town/vt/internal/config"
	"github.com/val-town/vt/internal/contentcache"
	"github.com/val-town/vt/internal/remoteapi"
)

// Session bundles the collaborators a SyncOp or the watch loop needs: the
// remote API client, the resolved Config, and the local content-hash cache.
// A single Session is created once per CLI invocation (or once for the
// lifetime of a watch daemon) and threaded through explicitly; there is no
// ambient global equivalent.
type Session struct {
	RemoteAPI remoteapi.API
	Config    *config.Config
	Cache     *contentcache.Cache

	// Companion is optional: nil means no companion bridge is running, and
	// every call site must tolerate that (it's a collaborator
	// the engine never depends on for correctness).
	Companion *companion.Hub
}

// New constructs a Session from its collaborators. cache and hub may be nil.
func New(api remoteapi.API, cfg *config.Config, cache *contentcache.Cache, hub *companion.Hub) *Session {
	return &Session{
		RemoteAPI: api,
		Config:    cfg,
		Cache:     cache,
		Companion: hub,
	}
}

// NotifyReload broadcasts a companion reload notification if a companion
// bridge is attached; a no-op otherwise.
func (s *Session) NotifyReload(paths []string, version uint64) {
	if s.Companion == nil {
		return
	}
	s.Companion.BroadcastReload(paths, version)
}

// Close releases the Session's owned resources (the content cache; the
// companion hub and remote API are owned by the caller).
func (s *Session) Close() error {
	if s.Cache != nil {
		return s.Cache.Close()
	}
	return nil
}
