// Package styles holds the Lip Gloss styles of the manuscript editor.
package styles

import (
	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/charmbracelet/lipgloss"
)

// Palette. Adaptive colors keep the editor readable on light terminals.
var (
	Ink    = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#F3F4F6"}
	Faded  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	Shelf  = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#374151"}
	Thread = lipgloss.Color("#B45309")
	Sage   = lipgloss.Color("#15803D")
	Rust   = lipgloss.Color("#DC2626")
	Sky    = lipgloss.Color("#0284C7")
)

var (
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Thread).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ink)

	// SectionTitle sits above the editor, underlined.
	SectionTitle = lipgloss.NewStyle().
			Foreground(Sage).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(Sage).
			MarginBottom(1)

	InputPrompt = lipgloss.NewStyle().
			Foreground(Thread).
			Bold(true)

	InputText = lipgloss.NewStyle().
			Foreground(Ink)

	StatusBar = lipgloss.NewStyle().
			Background(Shelf).
			Foreground(Faded).
			Padding(0, 1)

	StatusKey = lipgloss.NewStyle().
			Foreground(Thread).
			Bold(true)

	StatusValue = lipgloss.NewStyle().
			Foreground(Ink)

	ErrorText = lipgloss.NewStyle().
			Foreground(Rust).
			Bold(true)

	InfoText = lipgloss.NewStyle().
			Foreground(Ink)

	HelpKey = lipgloss.NewStyle().
		Foreground(Thread).
		Bold(true)

	HelpDesc = lipgloss.NewStyle().
			Foreground(Faded)

	ListItem = lipgloss.NewStyle().
			PaddingLeft(2)

	SelectedItem = lipgloss.NewStyle().
			Foreground(Thread).
			Bold(true).
			PaddingLeft(2)

	Spinner = lipgloss.NewStyle().
		Foreground(Thread)

	MutedText = lipgloss.NewStyle().
			Foreground(Faded)

	toast = lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder())
)

// Save returns the style of the save indicator for status.
func Save(status types.SaveStatus) lipgloss.Style {
	switch status {
	case types.SaveSaving:
		return lipgloss.NewStyle().Foreground(Thread)
	case types.SaveSaved:
		return lipgloss.NewStyle().Foreground(Sage).Bold(true)
	default:
		return MutedText
	}
}

// Toast returns the bordered style of a notification toast.
func Toast(level notify.Level) lipgloss.Style {
	var c lipgloss.Color
	switch level {
	case notify.Success:
		c = Sage
	case notify.Warning:
		c = Thread
	case notify.Error:
		c = Rust
	default:
		c = Sky
	}
	return toast.BorderForeground(c).Foreground(c)
}

// Width returns the available width for content.
func Width(termWidth int) int {
	return max(termWidth-4, 0)
}
