// Package classify implements the PathClassifier: ignore-rule
// matching and val-file kind inference for paths with no remote counterpart.
package classify

import (
	"path"
	"strings"

	"github.com/val-town/vt/internal/remoteapi"
)

// Rule is a single gitignore-style pattern loaded from a .vtignore file.
// Negated rules (prefixed with '!') re-include a path an earlier rule
// excluded.
type Rule struct {
	Pattern string
	Negate  bool

	// DirOnly marks a trailing-slash pattern ("build/"). Matching does not
	// check whether a path is a directory, so such a pattern also matches a
	// file of the same name.
	DirOnly bool

	// anchored patterns contain a '/' and match against the whole path
	// relative to the working-tree root, not anywhere in the tree. The
	// directory of the .vtignore a rule came from is not recorded, so a
	// nested .vtignore's rules are not scoped to its subtree.
	anchored bool
	base     string // glob with the Pattern's leading '/' stripped
}

// AlwaysIgnorePatterns is appended after every loaded .vtignore rule set,
// so it always wins ties and can't be overridden by a working tree's own
// rules.
var AlwaysIgnorePatterns = []string{
	".vt/",
	".git/",
	".DS_Store",
	"node_modules/",
}

// ParseRule parses one line of a .vtignore file. Blank lines and '#'
// comments are not valid rules; callers should filter them before calling
// ParseRule (see meta.LoadIgnoreRules).
func ParseRule(line string) Rule {
	r := Rule{Pattern: line}
	if strings.HasPrefix(line, "!") {
		r.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.DirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") {
		r.anchored = true
	}
	r.base = line
	return r
}

// IsIgnored reports whether path matches any rule in rules, honoring
// negation and later-rule-wins ordering.
func IsIgnored(p string, rules []Rule) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	ignored := false
	for _, r := range rules {
		if r.matches(p) {
			ignored = !r.Negate
		}
	}
	return ignored
}

func (r Rule) matches(p string) bool {
	base := path.Base(p)

	if r.anchored {
		ok, _ := path.Match(r.base, p)
		if ok {
			return true
		}
		// "dir/**" style patterns: also allow the glob to match a prefix
		// segment, since path.Match has no "**" semantics.
		return matchAnchoredGlob(r.base, p)
	}

	// Unanchored: matches the basename at any depth, or any path segment.
	if ok, _ := path.Match(r.base, base); ok {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if ok, _ := path.Match(r.base, seg); ok {
			return true
		}
	}
	return false
}

// matchAnchoredGlob supports a trailing "/**" suffix meaning "this directory
// and everything below it", which path.Match alone cannot express.
func matchAnchoredGlob(glob, p string) bool {
	const suffix = "/**"
	if !strings.HasSuffix(glob, suffix) {
		return false
	}
	prefix := strings.TrimSuffix(glob, suffix)
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// kindSubstrings lists the substrings InferKind searches a basename for; the
// associated Kind is returned only when exactly one substring matches.
var kindSubstrings = []struct {
	substr string
	kind   remoteapi.Kind
}{
	{"cron", remoteapi.KindInterval},
	{"http", remoteapi.KindHTTP},
	{"email", remoteapi.KindEmail},
}

var scriptExtensions = map[string]bool{
	".ts":  true,
	".tsx": true,
	".js":  true,
	".jsx": true,
}

// InferKind determines the remote kind for a path with no existing remote
// entry. When existingKind is non-nil, it is returned unchanged,
// since kind is stable across a push.
func InferKind(p string, existingKind *remoteapi.Kind) remoteapi.Kind {
	if existingKind != nil {
		return *existingKind
	}

	base := strings.ToLower(path.Base(p))
	ext := path.Ext(base)
	if !scriptExtensions[ext] {
		return remoteapi.KindFile
	}

	matched := 0
	var last remoteapi.Kind
	for _, cand := range kindSubstrings {
		if strings.Contains(base, cand.substr) {
			matched++
			last = cand.kind
		}
	}
	switch matched {
	case 1:
		return last
	default:
		return remoteapi.KindScript
	}
}
