// Package meta implements MetaStore: the on-disk .vt/state file,
// ignore-rule loading, and working-tree root discovery.
package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/val-town/vt/internal/classify"
	"github.com/val-town/vt/internal/vterrors"
)

// MaxWalkUpLevels bounds FindRoot's ancestor search.
const MaxWalkUpLevels = 64

const (
	vtDirName  = ".vt"
	stateName  = "state"
	ignoreName = ".vtignore"
)

// ValState identifies the remote val a working tree is bound to.
type ValState struct {
	ID uuid.UUID `yaml:"id"`
}

// BranchState identifies the branch and version a working tree reflects.
type BranchState struct {
	ID      uuid.UUID `yaml:"id"`
	Version uint64    `yaml:"version"`
}

// LastRunState records the most recent mutating op's process, for the
// cooperative cross-process watch lock.
type LastRunState struct {
	PID  int       `yaml:"pid"`
	Time time.Time `yaml:"time"`
}

// WorkingTreeState is the full contents of .vt/state.
type WorkingTreeState struct {
	Val     ValState     `yaml:"val"`
	Branch  BranchState  `yaml:"branch"`
	LastRun LastRunState `yaml:"lastRun"`
}

// StateUpdate is a partial WorkingTreeState for UpdateState's deep merge;
// nil/zero fields are left unchanged. BranchVersion and BranchID are
// pointers so "set version to 0" is distinguishable from "leave unset".
type StateUpdate struct {
	BranchID      *uuid.UUID
	BranchVersion *uint64
	LastRunPID    *int
	LastRunTime   *time.Time
}

// MetaStore roots every operation at a single working-tree directory.
type MetaStore struct {
	root string
}

// New returns a MetaStore rooted at root. root should already be the
// resolved working-tree root, typically from FindRoot.
func New(root string) *MetaStore {
	return &MetaStore{root: root}
}

// Root returns the working-tree root this store was created with.
func (m *MetaStore) Root() string { return m.root }

func (m *MetaStore) statePath() string {
	return filepath.Join(m.root, vtDirName, stateName)
}

// GetState parses <root>/.vt/state, returning vterrors.ErrNotInitialized if
// it is missing or fails to parse.
func (m *MetaStore) GetState() (*WorkingTreeState, error) {
	data, err := os.ReadFile(m.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vterrors.ErrNotInitialized
		}
		return nil, vterrors.NewIOError(m.statePath(), err)
	}

	var s WorkingTreeState
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", vterrors.ErrNotInitialized, err)
	}
	if s.Val.ID == uuid.Nil {
		return nil, vterrors.ErrNotInitialized
	}
	return &s, nil
}

// InitState overwrites <root>/.vt/state with state, creating the .vt
// directory if needed. Used at clone time.
func (m *MetaStore) InitState(state WorkingTreeState) error {
	if state.Val.ID == uuid.Nil {
		return fmt.Errorf("init state: val id is required")
	}
	return m.writeState(state)
}

// DestroyState removes <root>/.vt entirely, used by the delete operation.
func (m *MetaStore) DestroyState() error {
	dir := filepath.Join(m.root, vtDirName)
	if err := os.RemoveAll(dir); err != nil {
		return vterrors.NewIOError(dir, err)
	}
	return nil
}

// UpdateState deep-merges update into the current state and persists it.
func (m *MetaStore) UpdateState(update StateUpdate) (*WorkingTreeState, error) {
	s, err := m.GetState()
	if err != nil {
		return nil, err
	}
	if update.BranchID != nil {
		s.Branch.ID = *update.BranchID
	}
	if update.BranchVersion != nil {
		s.Branch.Version = *update.BranchVersion
	}
	if update.LastRunPID != nil {
		s.LastRun.PID = *update.LastRunPID
	}
	if update.LastRunTime != nil {
		s.LastRun.Time = *update.LastRunTime
	}
	if err := m.writeState(*s); err != nil {
		return nil, err
	}
	return s, nil
}

// writeState persists state atomically: write to a temp file in the same
// directory, then rename over the target.
func (m *MetaStore) writeState(state WorkingTreeState) error {
	dir := filepath.Join(m.root, vtDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vterrors.NewIOError(dir, err)
	}

	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "state-*.tmp")
	if err != nil {
		return vterrors.NewIOError(dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return vterrors.NewIOError(tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return vterrors.NewIOError(tmpPath, err)
	}

	if err := os.Rename(tmpPath, m.statePath()); err != nil {
		return vterrors.NewIOError(m.statePath(), err)
	}
	return nil
}

// LoadIgnoreRules walks the working tree collecting every .vtignore file,
// parsing each line-by-line (blank lines and '#' comments dropped), and
// appends classify.AlwaysIgnorePatterns last.
func (m *MetaStore) LoadIgnoreRules() ([]classify.Rule, error) {
	var rules []classify.Rule

	if _, err := os.Stat(m.root); os.IsNotExist(err) {
		// Cloning into a directory that doesn't exist yet: only the
		// always-ignore patterns apply.
		for _, p := range classify.AlwaysIgnorePatterns {
			rules = append(rules, classify.ParseRule(p))
		}
		return rules, nil
	}

	err := filepath.WalkDir(m.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == vtDirName && path != m.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ignoreName {
			return nil
		}

		lines, err := readLines(path)
		if err != nil {
			return err
		}
		for _, line := range lines {
			rules = append(rules, classify.ParseRule(line))
		}
		return nil
	})
	if err != nil {
		return nil, vterrors.NewIOError(m.root, err)
	}

	for _, p := range classify.AlwaysIgnorePatterns {
		rules = append(rules, classify.ParseRule(p))
	}
	return rules, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vterrors.NewIOError(path, err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// FindRoot climbs at most MaxWalkUpLevels parent directories from start
// looking for a directory containing .vt/, failing with
// vterrors.ErrNotInWorkingTree if none is found.
func FindRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	current := abs
	for i := 0; i < MaxWalkUpLevels; i++ {
		info, err := os.Stat(filepath.Join(current, vtDirName))
		if err == nil && info.IsDir() {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", vterrors.ErrNotInWorkingTree
}
