package tui

import (
	"strings"
	"time"

	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/tui/styles"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/ansi"
	"github.com/muesli/reflow/truncate"
)

// Toast durations. Errors stay longer so a failed save is not missed.
const (
	toastDuration      = 3 * time.Second
	toastErrorDuration = 6 * time.Second
)

// Toast is the transient notification shown in the top-right corner.
type Toast struct {
	Message string
	Level   notify.Level
	Visible bool
	seq     int
}

type clearToastMsg struct{ seq int }

// show replaces the visible toast. Only the clear tick of the newest
// toast hides it.
func (t Toast) show(msg string, level notify.Level) (Toast, tea.Cmd) {
	duration := toastDuration
	if level == notify.Error {
		duration = toastErrorDuration
	}
	next := Toast{Message: msg, Level: level, Visible: true, seq: t.seq + 1}
	return next, tea.Tick(duration, func(time.Time) tea.Msg {
		return clearToastMsg{seq: next.seq}
	})
}

func (t *Toast) Update(msg tea.Msg) {
	if m, ok := msg.(clearToastMsg); ok && m.seq == t.seq {
		t.Visible = false
		t.Message = ""
	}
}

func (t Toast) View(maxWidth int) string {
	if !t.Visible || t.Message == "" {
		return ""
	}

	msg := t.Message
	if limit := maxWidth - 10; limit > 3 && ansi.PrintableRuneWidth(msg) > limit {
		msg = truncate.StringWithTail(msg, uint(limit), "...")
	}
	return styles.Toast(t.Level).Render(t.Level.Icon() + " " + msg)
}

// overlayTopRight draws fg over the top-right corner of bg, margin cells
// from both edges. ANSI sequences in either block are preserved.
func overlayTopRight(fg, bg string, margin int) string {
	if fg == "" {
		return bg
	}

	fgLines, fgWidth := measure(fg)
	bgLines, bgWidth := measure(bg)
	if fgWidth >= bgWidth && len(fgLines) >= len(bgLines) {
		return fg
	}

	x := min(max(bgWidth-fgWidth-margin, 0), bgWidth-fgWidth)
	y := min(max(margin, 0), len(bgLines)-len(fgLines))
	if x < 0 || y < 0 {
		return fg
	}

	out := make([]string, len(bgLines))
	for i, line := range bgLines {
		if i < y || i >= y+len(fgLines) {
			out[i] = line
			continue
		}
		out[i] = splice(line, fgLines[i-y], x)
	}
	return strings.Join(out, "\n")
}

// splice replaces the cells of line starting at column x with part.
func splice(line, part string, x int) string {
	var b strings.Builder

	left := truncate.String(line, uint(x))
	b.WriteString(left)
	if w := ansi.PrintableRuneWidth(left); w < x {
		b.WriteString(strings.Repeat(" ", x-w))
	}
	b.WriteString(part)

	end := x + ansi.PrintableRuneWidth(part)
	if ansi.PrintableRuneWidth(line) > end {
		b.WriteString(skipCells(line, end))
	}
	return b.String()
}

// skipCells drops the first n printable cells of s.
func skipCells(s string, n int) string {
	width := 0
	for i, r := range s {
		if width >= n {
			return s[i:]
		}
		width += ansi.PrintableRuneWidth(string(r))
	}
	return ""
}

func measure(s string) (lines []string, widest int) {
	lines = strings.Split(s, "\n")
	for _, l := range lines {
		widest = max(widest, ansi.PrintableRuneWidth(l))
	}
	return lines, widest
}
