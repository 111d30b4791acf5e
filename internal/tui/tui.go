// Package tui provides the terminal editor using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/azyu/storyloom/internal/app"
	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/internal/token"
	"github.com/azyu/storyloom/internal/tui/styles"
	"github.com/azyu/storyloom/internal/tui/views"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ViewState represents the current view mode.
type ViewState int

const (
	ViewEditor ViewState = iota
	ViewHelp
	ViewSections
)

// eventBuffer bounds notifications and save status changes waiting for
// the UI loop. Older events are dropped when it is full.
const eventBuffer = 64

type notificationMsg struct{ n notify.Notification }

type saveStatusMsg struct{ status types.SaveStatus }

type commandDoneMsg struct{ err error }

// Model is the main TUI model.
type Model struct {
	app *app.App

	// View state
	view   ViewState
	width  int
	height int
	ready  bool
	err    error

	// Editor components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	picker   *views.SectionPicker
	toast    Toast

	// sectionID is the section shown in the editor. Empty until the first
	// keystroke creates a section in an empty manuscript.
	sectionID  string
	saveStatus types.SaveStatus

	events      chan tea.Msg
	unsubscribe []func()
}

// New creates the editor for a. Call Close after the program exits.
func New(a *app.App) *Model {
	ta := textarea.New()
	ta.Placeholder = "Start writing..."
	ta.Focus()
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.SetWidth(80)
	ta.SetHeight(20)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := &Model{
		app:        a,
		view:       ViewEditor,
		textarea:   ta,
		spinner:    sp,
		saveStatus: a.Autosave.Status(),
		events:     make(chan tea.Msg, eventBuffer),
	}

	// Both callbacks run on other goroutines and must not block or call
	// back into the app.
	m.unsubscribe = append(m.unsubscribe,
		a.Notices.Subscribe(func(n notify.Notification) { m.post(notificationMsg{n: n}) }),
		a.Autosave.OnStatus(func(s types.SaveStatus) { m.post(saveStatusMsg{status: s}) }),
	)

	m.loadSection()
	return m
}

func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// listen waits for the next event from the app.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// Close detaches the editor from the app.
func (m *Model) Close() {
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.listen()}
	for _, n := range m.app.Notices.Persistent() {
		var cmd tea.Cmd
		m.toast, cmd = m.toast.show(n.Message, n.Level)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// currentSection resolves the section to edit: the selection when it still
// exists, otherwise the first section.
func (m *Model) currentSection() (types.StorySection, bool) {
	st := m.app.State.State()
	p := st.Project()
	if i := p.SectionIndex(st.Selection); i >= 0 {
		return p.Manuscript[i], true
	}
	if i := p.SectionIndex(m.sectionID); i >= 0 {
		return p.Manuscript[i], true
	}
	if len(p.Manuscript) > 0 {
		return p.Manuscript[0], true
	}
	return types.StorySection{}, false
}

// loadSection shows the current section's content in the editor.
func (m *Model) loadSection() {
	section, ok := m.currentSection()
	if !ok {
		m.sectionID = ""
		m.textarea.Reset()
		return
	}
	m.sectionID = section.ID
	if m.textarea.Value() != section.Content {
		m.textarea.SetValue(section.Content)
	}
}

// syncContent dispatches the editor text when it differs from the section.
func (m *Model) syncContent() {
	value := m.textarea.Value()

	if m.sectionID == "" {
		if value == "" {
			return
		}
		if err := m.app.State.Dispatch(state.AddSection{Section: types.StorySection{
			Title:   views.DefaultSectionTitle,
			Content: value,
		}}); err != nil {
			m.err = err
			return
		}
		m.sectionID = m.app.State.State().Selection
		return
	}

	p := m.app.State.Project()
	i := p.SectionIndex(m.sectionID)
	if i < 0 || p.Manuscript[i].Content == value {
		return
	}
	if err := m.app.State.Dispatch(state.UpdateSectionContent{ID: m.sectionID, Content: value}); err != nil {
		m.err = err
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case notificationMsg:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.show(msg.n.Message, msg.n.Level)
		return m, tea.Batch(cmd, m.listen())

	case saveStatusMsg:
		m.saveStatus = msg.status
		if msg.status == types.SaveSaving {
			return m, tea.Batch(m.spinner.Tick, m.listen())
		}
		return m, m.listen()

	case clearToastMsg:
		m.toast.Update(msg)
		return m, nil

	case spinner.TickMsg:
		if m.saveStatus == types.SaveSaving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case commandDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case views.SectionChosenMsg:
		m.selectSection(msg.ID)
		m.closePicker()
		return m, nil

	case views.SectionCreateMsg:
		if err := m.app.State.Dispatch(state.AddSection{Section: types.StorySection{Title: msg.Title}}); err != nil {
			m.err = err
		}
		m.loadSection()
		m.closePicker()
		return m, nil

	case views.SectionMoveMsg:
		m.moveSection(msg.ID, msg.Delta)
		return m, nil

	case views.PickerClosedMsg:
		m.closePicker()
		return m, nil
	}

	if m.view == ViewSections && m.picker != nil {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		cmds = append(cmds, cmd)
	} else if m.view == ViewEditor {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	bodyHeight := max(height-6, 3)
	if !m.ready {
		m.viewport = viewport.New(width, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = bodyHeight
	}

	m.textarea.SetWidth(styles.Width(width))
	m.textarea.SetHeight(max(bodyHeight-2, 1))
	if m.picker != nil {
		m.picker.SetSize(width, bodyHeight)
	}
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyCtrlZ:
		if m.app.State.Undo() {
			m.loadSection()
		}
		return m, nil

	case tea.KeyCtrlY:
		if m.app.State.Redo() {
			m.loadSection()
		}
		return m, nil

	case tea.KeyCtrlS:
		return m, m.flush()

	case tea.KeyCtrlO:
		m.openPicker()
		return m, nil

	case tea.KeyCtrlN:
		return m, m.snapshot()

	case tea.KeyF1:
		if m.view == ViewHelp {
			m.view = ViewEditor
		} else {
			m.view = ViewHelp
			m.viewport.SetContent(m.renderHelp())
		}
		return m, nil

	case tea.KeyEsc:
		if m.view == ViewHelp {
			m.view = ViewEditor
			return m, nil
		}
	}

	switch m.view {
	case ViewSections:
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	case ViewHelp:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.syncContent()
	return m, cmd
}

func (m *Model) openPicker() {
	p := m.app.State.Project()
	if m.picker == nil {
		m.picker = views.NewSectionPicker(p.Manuscript, m.sectionID)
	} else {
		m.picker.SetSections(p.Manuscript, m.sectionID)
	}
	if m.width > 0 {
		m.picker.SetSize(m.width, max(m.height-6, 3))
	}
	m.view = ViewSections
	m.textarea.Blur()
}

func (m *Model) closePicker() {
	m.view = ViewEditor
	m.textarea.Focus()
}

func (m *Model) selectSection(id string) {
	if err := m.app.State.Dispatch(state.SelectSection{ID: id}); err != nil {
		m.err = err
		return
	}
	m.loadSection()
}

func (m *Model) moveSection(id string, delta int) {
	p := m.app.State.Project()
	i := p.SectionIndex(id)
	if i < 0 {
		return
	}
	if err := m.app.State.Dispatch(state.MoveSection{ID: id, To: i + delta}); err != nil {
		m.err = err
		return
	}
	if m.picker != nil {
		m.picker.SetSections(m.app.State.Project().Manuscript, id)
	}
}

func (m *Model) flush() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return commandDoneMsg{err: a.Autosave.Flush(ctx)}
	}
}

func (m *Model) snapshot() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := a.CreateSnapshot(ctx, "")
		return commandDoneMsg{err: err}
	}
}

// renderHelp renders the help view.
func (m *Model) renderHelp() string {
	help := `
STORYLOOM - Help

Keyboard Shortcuts:
  Ctrl+Z     - Undo
  Ctrl+Y     - Redo
  Ctrl+S     - Save now
  Ctrl+O     - Sections (open, create, reorder)
  Ctrl+N     - Take a snapshot
  F1         - Toggle this help
  Ctrl+Q     - Quit (pending changes are saved)

Your work is saved automatically a moment after you stop typing.
`
	return styles.InfoText.Render(help)
}

func (m *Model) renderSaveStatus() string {
	if m.app.MemoryOnly {
		return styles.ErrorText.Render("not saved (memory only)")
	}
	style := styles.Save(m.saveStatus)
	switch m.saveStatus {
	case types.SaveSaving:
		return style.Render(m.spinner.View() + " saving")
	case types.SaveSaved:
		return style.Render("✓ saved")
	default:
		return style.Render("idle")
	}
}

func (m *Model) renderStatusBar() string {
	p := m.app.State.Project()
	words := token.ProjectWords(p)

	parts := []string{
		styles.StatusKey.Render("words ") + styles.StatusValue.Render(fmt.Sprintf("%d", words)),
	}
	if goal := p.ProjectGoals.TotalWordCount; goal > 0 {
		parts = append(parts, styles.StatusKey.Render("goal ")+
			styles.StatusValue.Render(fmt.Sprintf("%.0f%%", token.GoalProgress(p)*100)))
	}
	parts = append(parts, m.renderSaveStatus())
	return styles.StatusBar.Render(strings.Join(parts, "  "))
}

// View renders the TUI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder

	p := m.app.State.Project()
	sb.WriteString(styles.Header.Render("STORYLOOM - " + p.Title))
	sb.WriteString("\n")

	switch m.view {
	case ViewHelp:
		sb.WriteString(m.viewport.View())
	case ViewSections:
		sb.WriteString(m.picker.View())
	default:
		title := views.DefaultSectionTitle
		if section, ok := m.currentSection(); ok && section.Title != "" {
			title = section.Title
		}
		sb.WriteString(styles.SectionTitle.Render(title))
		sb.WriteString("\n")
		sb.WriteString(m.textarea.View())
	}
	sb.WriteString("\n")

	// Error display
	if m.err != nil {
		sb.WriteString(styles.ErrorText.Render("Error: "+m.err.Error()) + "\n")
		m.err = nil
	}

	sb.WriteString(m.renderStatusBar())

	helpHint := styles.HelpKey.Render("F1") + styles.HelpDesc.Render(" for help")
	sb.WriteString("\n")
	sb.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, helpHint))

	return overlayTopRight(m.toast.View(m.width), sb.String(), 1)
}
