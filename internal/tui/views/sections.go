// Package views provides TUI view components for the storyloom editor.
package views

import (
	"fmt"
	"strings"

	"github.com/azyu/storyloom/internal/token"
	"github.com/azyu/storyloom/internal/tui/styles"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultSectionTitle names a section created without a title.
const DefaultSectionTitle = "Untitled section"

// SectionChosenMsg asks the editor to open a section.
type SectionChosenMsg struct{ ID string }

// SectionCreateMsg asks the editor to append a new section.
type SectionCreateMsg struct{ Title string }

// SectionMoveMsg asks the editor to move a section by Delta positions.
type SectionMoveMsg struct {
	ID    string
	Delta int
}

// PickerClosedMsg reports that the picker was dismissed.
type PickerClosedMsg struct{}

// sectionItem implements list.Item for manuscript sections.
type sectionItem struct {
	id    string
	title string
	words int
}

func (i sectionItem) Title() string       { return i.title }
func (i sectionItem) Description() string { return fmt.Sprintf("%d words", i.words) }
func (i sectionItem) FilterValue() string { return i.title }

// SectionPicker lists manuscript sections and names new ones.
type SectionPicker struct {
	list       list.Model
	titleInput textinput.Model
	naming     bool

	width  int
	height int
}

// NewSectionPicker creates a picker positioned on the selected section.
func NewSectionPicker(sections []types.StorySection, selected string) *SectionPicker {
	titleInput := textinput.New()
	titleInput.Placeholder = DefaultSectionTitle
	titleInput.CharLimit = 120
	titleInput.Width = 40
	titleInput.PromptStyle = styles.InputPrompt
	titleInput.TextStyle = styles.InputText

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = styles.SelectedItem
	delegate.Styles.NormalTitle = styles.ListItem

	l := list.New(nil, delegate, 50, 14)
	l.Title = "Manuscript"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = styles.Title

	p := &SectionPicker{list: l, titleInput: titleInput}
	p.SetSections(sections, selected)
	return p
}

// SetSections refreshes the list, keeping the cursor on selected when present.
func (p *SectionPicker) SetSections(sections []types.StorySection, selected string) {
	items := make([]list.Item, len(sections))
	cursor := 0
	for i, s := range sections {
		title := s.Title
		if strings.TrimSpace(title) == "" {
			title = DefaultSectionTitle
		}
		items[i] = sectionItem{id: s.ID, title: title, words: token.CountWords(s.Content)}
		if s.ID == selected {
			cursor = i
		}
	}
	p.list.SetItems(items)
	if len(items) > 0 {
		p.list.Select(cursor)
	}
}

// SetSize fits the picker into the given area.
func (p *SectionPicker) SetSize(width, height int) {
	p.width = width
	p.height = height
	contentWidth := min(80, width-4)
	p.list.SetSize(contentWidth, max(height-6, 4))
	p.titleInput.Width = contentWidth - 10
}

// Naming reports whether the picker is asking for a new section title.
func (p *SectionPicker) Naming() bool {
	return p.naming
}

// Selected returns the id of the highlighted section.
func (p *SectionPicker) Selected() string {
	if item, ok := p.list.SelectedItem().(sectionItem); ok {
		return item.id
	}
	return ""
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// Update handles messages.
func (p *SectionPicker) Update(msg tea.Msg) (*SectionPicker, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		if p.naming {
			return p.handleNamingKey(key)
		}
		if cmd, handled := p.handleListKey(key); handled {
			return p, cmd
		}
	}

	var cmd tea.Cmd
	if p.naming {
		p.titleInput, cmd = p.titleInput.Update(msg)
	} else {
		p.list, cmd = p.list.Update(msg)
	}
	return p, cmd
}

func (p *SectionPicker) handleListKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyEsc:
		return emit(PickerClosedMsg{}), true
	case tea.KeyEnter:
		if id := p.Selected(); id != "" {
			return emit(SectionChosenMsg{ID: id}), true
		}
		return nil, true
	}

	switch msg.String() {
	case "n":
		p.naming = true
		p.titleInput.Reset()
		p.titleInput.Focus()
		return textinput.Blink, true
	case "[", "]":
		id := p.Selected()
		if id == "" {
			return nil, true
		}
		delta := 1
		if msg.String() == "[" {
			delta = -1
		}
		return emit(SectionMoveMsg{ID: id, Delta: delta}), true
	}
	return nil, false
}

func (p *SectionPicker) handleNamingKey(msg tea.KeyMsg) (*SectionPicker, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		p.naming = false
		p.titleInput.Blur()
		return p, nil
	case tea.KeyEnter:
		title := strings.TrimSpace(p.titleInput.Value())
		if title == "" {
			title = DefaultSectionTitle
		}
		p.naming = false
		p.titleInput.Blur()
		return p, emit(SectionCreateMsg{Title: title})
	}

	var cmd tea.Cmd
	p.titleInput, cmd = p.titleInput.Update(msg)
	return p, cmd
}

// View renders the picker.
func (p *SectionPicker) View() string {
	var sb strings.Builder

	if p.naming {
		sb.WriteString(styles.Title.Render("New section"))
		sb.WriteString("\n\n")
		sb.WriteString(p.titleInput.View())
		sb.WriteString("\n\n")
		sb.WriteString(p.renderHelp(
			fmt.Sprintf("%s create", styles.HelpKey.Render("Enter")),
			fmt.Sprintf("%s back", styles.HelpKey.Render("Esc")),
		))
		return sb.String()
	}

	if len(p.list.Items()) == 0 {
		sb.WriteString(styles.Title.Render("Manuscript"))
		sb.WriteString("\n\n")
		sb.WriteString(styles.MutedText.Render("No sections yet."))
		sb.WriteString("\n\n")
	} else {
		sb.WriteString(p.list.View())
		sb.WriteString("\n")
	}

	sb.WriteString(p.renderHelp(
		fmt.Sprintf("%s open", styles.HelpKey.Render("Enter")),
		fmt.Sprintf("%s new", styles.HelpKey.Render("n")),
		fmt.Sprintf("%s move", styles.HelpKey.Render("[ ]")),
		fmt.Sprintf("%s close", styles.HelpKey.Render("Esc")),
	))
	return sb.String()
}

func (p *SectionPicker) renderHelp(parts ...string) string {
	return styles.HelpDesc.Render(strings.Join(parts, "  "))
}
