// Package state owns the live, in-memory application state: the project
// wrapped in undo/redo history, the settings, and UI selection.
package state

import (
	"sync"

	"github.com/azyu/storyloom/internal/history"
	"github.com/azyu/storyloom/pkg/types"
)

// State is an immutable view of the application state at one point in time.
type State struct {
	History   history.Envelope[*types.ProjectData]
	Settings  *types.Settings
	Selection string
}

// Project returns the present project value.
func (s State) Project() *types.ProjectData {
	return s.History.Present
}

// Listener receives every new state after it is published.
// Listeners must not call back into the Store synchronously.
type Listener func(State)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	historyLimit int
}

// WithHistoryLimit bounds the undo stack.
func WithHistoryLimit(limit int) Option {
	return func(c *storeConfig) {
		c.historyLimit = limit
	}
}

// Store is the application-state handle. Create it once with Init and pass
// it to the components that need it.
type Store struct {
	mu        sync.Mutex
	hist      *history.Manager[*types.ProjectData]
	settings  *types.Settings
	selection string

	// deliver serialises listener calls so they observe dispatch order.
	deliver   sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// Init creates the store from persisted values. Nil values fall back to defaults.
func Init(project *types.ProjectData, settings *types.Settings, opts ...Option) *Store {
	cfg := &storeConfig{historyLimit: history.DefaultLimit}
	for _, opt := range opts {
		opt(cfg)
	}

	if project == nil {
		project = types.DefaultProjectData()
	}
	if settings == nil {
		settings = types.DefaultSettings()
	}

	return &Store{
		hist:      history.New(project, cfg.historyLimit),
		settings:  settings,
		listeners: make(map[int]Listener),
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		History:   s.hist.Envelope(),
		Settings:  s.settings,
		Selection: s.selection,
	}
}

// Project returns the present project value. Callers must not mutate it.
func (s *Store) Project() *types.ProjectData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Present()
}

// Settings returns the current settings. Callers must not mutate them.
func (s *Store) Settings() *types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Dispatch reduces the action over the current state and records it in
// history according to its tag. A failing reducer leaves state untouched.
func (s *Store) Dispatch(a Action) error {
	s.mu.Lock()
	next, err := a.Reduce(Draft{Project: s.hist.Present(), Selection: s.selection})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if next.Project == nil {
		next.Project = s.hist.Present()
	}
	s.hist.Apply(a.Tag(), next.Project)
	s.selection = next.Selection
	s.publishLocked()
	return nil
}

// Undo restores the previous project value. It reports whether anything changed.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if !s.hist.Undo() {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// Redo re-applies the next project value. It reports whether anything changed.
func (s *Store) Redo() bool {
	s.mu.Lock()
	if !s.hist.Redo() {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// Reset starts a new, empty project and clears undo history.
func (s *Store) Reset(title, logline string) {
	s.Replace(types.NewProjectData(title, logline))
}

// Replace installs project as the present value and clears undo history.
// Used after import and snapshot restore.
func (s *Store) Replace(project *types.ProjectData) {
	s.mu.Lock()
	s.hist.Collapse(project)
	s.selection = ""
	s.publishLocked()
}

// UpdateSettings applies fn to a copy of the settings and publishes it.
// Settings changes never enter undo history.
func (s *Store) UpdateSettings(fn func(*types.Settings)) {
	s.mu.Lock()
	next := *s.settings
	fn(&next)
	s.settings = &next
	s.publishLocked()
}

// publishLocked releases s.mu and delivers the new state to listeners.
func (s *Store) publishLocked() {
	st := s.stateLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}

	s.deliver.Lock()
	s.mu.Unlock()
	defer s.deliver.Unlock()

	for _, l := range listeners {
		l(st)
	}
}
