// Package ui renders colored diff/status output for the CLI veneer
// (cmd/vt). It is a thin wrapper around lipgloss styles, degrading to plain
// text when the output isn't a color-capable terminal.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	colorEnabled = detectColor()
)

func detectColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderAccent highlights informational text (in-progress actions).
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass highlights a successful result.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn highlights a recoverable warning.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail highlights a fatal error.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderDim highlights secondary/supporting text.
func RenderDim(s string) string { return render(dimStyle, s) }

// PathLine formats one diff entry for status/push/pull summaries, e.g.
// "  + created      foo.ts".
func PathLine(symbol, label, path string) string {
	return fmt.Sprintf("  %s %-12s %s", symbol, label, path)
}
