package ui

import (
	"sort"
	"strings"

	"github.com/val-town/vt/internal/diff"
)

// RenderChanges formats a FileStateChanges for CLI stdout, one line per
// non-not_modified entry, grouped created/modified/deleted, each path
// sorted for deterministic output.
func RenderChanges(changes *diff.FileStateChanges) string {
	var b strings.Builder

	writeGroup(&b, "+", "created", RenderPass, changes.Created)
	writeGroup(&b, "~", "modified", RenderAccent, changes.Modified)
	writeGroup(&b, "-", "deleted", RenderFail, changes.Deleted)

	if b.Len() == 0 {
		return RenderDim("  (no changes)\n")
	}
	return b.String()
}

func writeGroup(b *strings.Builder, symbol, label string, color func(string) string, entries map[string]diff.FileStatus) {
	if len(entries) == 0 {
		return
	}
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		b.WriteString(color(PathLine(symbol, label, p)))
		b.WriteString("\n")
	}
}

// RenderWarnings formats non-fatal warnings collected on a FileStateChanges.
func RenderWarnings(changes *diff.FileStateChanges) string {
	if len(changes.Warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range changes.Warnings {
		b.WriteString(RenderWarn("  ! " + w))
		b.WriteString("\n")
	}
	return b.String()
}
