// Package ui renders terminal output for the lsync CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fbbf24"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of stdout, or fallback when unknown.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// DisableColor strips styling from all output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Init disables color when stdout is not a terminal or NO_COLOR is set.
func Init() {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout) {
		DisableColor()
	}
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }
