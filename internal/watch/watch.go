// Package watch implements the Watcher: a debounced filesystem
// event loop that drives repeated, strictly serialized Push calls. A
// recursive fsnotify watch feeds an explicit {Idle, Pending, Running}
// debounce state machine, filtering events through internal/classify before
// they can trigger a push.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/vterrors"
)

// DefaultDebounceDelay is used when Options.DebounceDelay is zero.
const DefaultDebounceDelay = 500 * time.Millisecond

// Callback is invoked with the FileStateChanges produced by each push,
// including zero-change runs.
type Callback func(*diff.FileStateChanges)

// Options configures a Watcher.
type Options struct {
	// DebounceDelay is how long the watcher waits after the last observed
	// event before running a push. Zero uses DefaultDebounceDelay.
	DebounceDelay time.Duration

	// LogPath, if set, routes the watcher's log output through a rotating
	// lumberjack.Logger instead of Logger/stderr, the way a long-running
	// daemon manages its own log file.
	LogPath string

	// Logger overrides the default stderr logger. Ignored if LogPath is set.
	Logger *log.Logger
}

func (o Options) debounce() time.Duration {
	if o.DebounceDelay > 0 {
		return o.DebounceDelay
	}
	return DefaultDebounceDelay
}

func (o Options) logger() *log.Logger {
	if o.LogPath != "" {
		var w io.Writer = &lumberjack.Logger{
			Filename:   o.LogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		return log.New(w, "[vt watch] ", log.LstdFlags)
	}
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(os.Stderr, "[vt watch] ", log.LstdFlags)
}

// phase is the watcher's debounce state.
type phase int

const (
	phaseIdle phase = iota
	phasePending
	phaseRunning
)

// Watcher drives a debounced, strictly-serialized push loop over one
// working tree.
type Watcher struct {
	ops      *syncops.SyncOps
	meta     *meta.MetaStore
	root     string
	debounce time.Duration
	callback Callback
	logger   *log.Logger

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	ph    phase
	timer *time.Timer
	rerun bool
}

// New constructs a Watcher. callback may be nil.
func New(root string, ops *syncops.SyncOps, m *meta.MetaStore, opts Options, callback Callback) *Watcher {
	if callback == nil {
		callback = func(*diff.FileStateChanges) {}
	}
	return &Watcher{
		ops:      ops,
		meta:     m,
		root:     root,
		debounce: opts.debounce(),
		callback: callback,
		logger:   opts.logger(),
	}
}

// Run acquires the single-watcher lock, starts the recursive filesystem
// watch, and blocks until ctx is cancelled, draining any in-flight push
// before returning. Returns vterrors.ErrAlreadyWatching if
// another live process holds the lock.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.acquireLock(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	defer fsw.Close()

	rules, err := w.meta.LoadIgnoreRules()
	if err != nil {
		return err
	}

	if err := w.addTreeRecursive(w.root, rules); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, rules)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch: fsnotify error: %v", err)
		}
	}
}

// acquireLock checks state.lastRun.pid for a live holder and, if none,
// records this process's pid.
func (w *Watcher) acquireLock() error {
	state, err := w.meta.GetState()
	if err != nil {
		return err
	}
	if state.LastRun.PID != 0 && state.LastRun.PID != os.Getpid() && meta.IsProcessAlive(state.LastRun.PID) {
		return vterrors.ErrAlreadyWatching
	}

	pid := os.Getpid()
	now := time.Now().UTC()
	_, err = w.meta.UpdateState(meta.StateUpdate{LastRunPID: &pid, LastRunTime: &now})
	return err
}

// addTreeRecursive walks root adding every non-ignored directory to the
// fsnotify watch (fsnotify has no native recursive mode).
func (w *Watcher) addTreeRecursive(root string, rules []classify.Rule) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." {
			if strings.HasPrefix(rel, ".vt"+string(filepath.Separator)) || rel == ".vt" {
				return filepath.SkipDir
			}
			if classify.IsIgnored(filepath.ToSlash(rel), rules) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			return vterrors.NewIOError(path, err)
		}
		return nil
	})
}

// handleEvent filters an fsnotify event through the ignore rules, extends
// the watch to newly created directories, and advances the debounce state
// machine.
func (w *Watcher) handleEvent(ev fsnotify.Event, rules []classify.Rule) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, ".vt/") || rel == ".vt" {
		return
	}
	if classify.IsIgnored(rel, rules) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
		}
	}

	w.onEvent()
}

// onEvent advances {Idle, Pending, Running} on an observed filesystem event:
// Idle starts a debounce timer, Pending resets it, Running marks a rerun so
// the event is coalesced into the next push.
func (w *Watcher) onEvent() {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.ph {
	case phaseIdle:
		w.ph = phasePending
		w.timer = time.AfterFunc(w.debounce, w.fire)
	case phasePending:
		w.timer.Reset(w.debounce)
	case phaseRunning:
		w.rerun = true
	}
}

// fire runs exactly one push and then either returns to Idle or, if events
// arrived during the push, starts a fresh debounce window.
func (w *Watcher) fire() {
	w.mu.Lock()
	w.ph = phaseRunning
	w.mu.Unlock()

	changes, err := w.ops.Push(context.Background(), syncops.PushOptions{})
	if err != nil {
		w.logger.Printf("watch: push failed: %v", err)
		changes = diff.NewFileStateChanges()
	}
	w.callback(changes)

	w.mu.Lock()
	if w.rerun {
		w.rerun = false
		w.ph = phasePending
		w.timer = time.AfterFunc(w.debounce, w.fire)
	} else {
		w.ph = phaseIdle
	}
	w.mu.Unlock()
}

// drain waits for any in-flight or pending push to finish before Run
// returns, so cancellation never leaves a push running unobserved.
func (w *Watcher) drain() {
	for {
		w.mu.Lock()
		ph := w.ph
		timer := w.timer
		w.mu.Unlock()

		if ph == phaseIdle {
			return
		}
		if ph == phasePending && timer != nil && timer.Stop() {
			// Force the debounced push to run now instead of waiting out the
			// remainder of the window.
			w.fire()
			return
		}
		// Running, or a timer that already fired and whose push is starting
		// on the timer's goroutine: briefly yield and re-check; fire() itself
		// holds no lock across the Push call, so this converges quickly.
		time.Sleep(5 * time.Millisecond)
	}
}
