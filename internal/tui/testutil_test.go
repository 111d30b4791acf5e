package tui

import (
	"context"
	"testing"
	"time"

	"github.com/azyu/storyloom/internal/app"
	"github.com/azyu/storyloom/internal/logging"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/internal/state"
	"github.com/azyu/storyloom/pkg/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func init() {
	// Disable colors for consistent test output across environments
	lipgloss.SetColorProfile(termenv.Ascii)
}

// testConfig holds common test configuration values.
var testConfig = struct {
	Width  int
	Height int
}{
	Width:  80,
	Height: 24,
}

// newTestApp creates an app backed by an in-memory store. Autosave is
// configured with a long settle window so tests control when saves happen.
func newTestApp(t *testing.T) *app.App {
	t.Helper()

	dir := t.TempDir()
	writeConfig(t, dir, "autosave:\n  settle_window: 1h\n")

	a, err := app.New(context.Background(), app.Options{
		ConfigDir: dir,
		Store:     storage.NewMemoryStore(),
		Logger:    logging.Discard(),
		Clock:     func() time.Time { return time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

// newTestModel creates a TUI model for testing with default dimensions.
func newTestModel(t *testing.T, a *app.App) *Model {
	t.Helper()
	if a == nil {
		a = newTestApp(t)
	}

	m := New(a)
	t.Cleanup(m.Close)
	return sendWindowSize(m, testConfig.Width, testConfig.Height)
}

// withSections adds sections to the app's project.
func withSections(t *testing.T, a *app.App, sections ...types.StorySection) {
	t.Helper()
	for _, s := range sections {
		require.NoError(t, a.State.Dispatch(state.AddSection{Section: s}))
	}
}

// sendKeyMsg sends a key message to the model and returns the updated model.
func sendKeyMsg(m *Model, keyType tea.KeyType) *Model {
	model, _ := m.Update(tea.KeyMsg{Type: keyType})
	return model.(*Model)
}

// sendRunesMsg sends runes (typed text) to the model and returns the updated model.
func sendRunesMsg(m *Model, s string) *Model {
	for _, r := range s {
		model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = model.(*Model)
	}
	return m
}

// sendWindowSize sends a window size message to the model.
func sendWindowSize(m *Model, width, height int) *Model {
	model, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return model.(*Model)
}

// sendMsg delivers an arbitrary message.
func sendMsg(m *Model, msg tea.Msg) *Model {
	model, _ := m.Update(msg)
	return model.(*Model)
}

// nextEvent waits for the next event posted by the app.
func nextEvent(t *testing.T, m *Model) tea.Msg {
	t.Helper()
	select {
	case msg := <-m.events:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no event from the app")
		return nil
	}
}

// sectionContent returns the content of the section shown in the editor.
func sectionContent(t *testing.T, m *Model) string {
	t.Helper()
	p := m.app.State.Project()
	i := p.SectionIndex(m.sectionID)
	require.GreaterOrEqual(t, i, 0, "editor section %q not in manuscript", m.sectionID)
	return p.Manuscript[i].Content
}
