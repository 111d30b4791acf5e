// Package types provides shared data models for storyloom.
package types

import (
	"time"

	"github.com/azyu/storyloom/pkg/collection"
)

// DefaultSnapshotName is the name given to snapshots created without one.
// Only snapshots carrying this name are subject to automatic pruning.
const DefaultSnapshotName = "Automatic Snapshot"

// Character represents a character in the story.
type Character struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Role        string `json:"role" yaml:"role"`
	Description string `json:"description" yaml:"description"`
	Backstory   string `json:"backstory" yaml:"backstory"`
	Motivation  string `json:"motivation" yaml:"motivation"`
	Notes       string `json:"notes" yaml:"notes"`
	HasAvatar   bool   `json:"hasAvatar" yaml:"has_avatar"`
}

// EntityID implements collection.Entity.
func (c Character) EntityID() string { return c.ID }

// World represents a setting the story takes place in.
type World struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description" yaml:"description"`
	Geography        string `json:"geography" yaml:"geography"`
	Culture          string `json:"culture" yaml:"culture"`
	Notes            string `json:"notes" yaml:"notes"`
	HasAmbianceImage bool   `json:"hasAmbianceImage" yaml:"has_ambiance_image"`
}

// EntityID implements collection.Entity.
func (w World) EntityID() string { return w.ID }

// OutlineSection is one beat of the story outline.
type OutlineSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// StorySection is one section of the manuscript. Order in the manuscript
// defines reading and export order.
type StorySection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Prompt  string `json:"prompt,omitempty"`
}

// ProjectGoals holds the writer's targets.
type ProjectGoals struct {
	TotalWordCount int `json:"totalWordCount"`
	// TargetDate is a YYYY-MM-DD date or nil.
	TargetDate *string `json:"targetDate"`
}

// WritingHistoryEntry records the word count reached on a given day.
type WritingHistoryEntry struct {
	Date      string `json:"date"`
	WordCount int    `json:"wordCount"`
}

// ProjectData is the persisted unit of work.
type ProjectData struct {
	Title          string                           `json:"title"`
	Logline        string                           `json:"logline"`
	Characters     collection.Collection[Character] `json:"characters"`
	Worlds         collection.Collection[World]     `json:"worlds"`
	Outline        []OutlineSection                 `json:"outline"`
	Manuscript     []StorySection                   `json:"manuscript"`
	ProjectGoals   ProjectGoals                     `json:"projectGoals"`
	WritingHistory []WritingHistoryEntry            `json:"writingHistory"`
}

// NewProjectData returns an empty project with the given title and logline.
func NewProjectData(title, logline string) *ProjectData {
	return &ProjectData{
		Title:          title,
		Logline:        logline,
		Characters:     collection.MustNew[Character](),
		Worlds:         collection.MustNew[World](),
		Outline:        []OutlineSection{},
		Manuscript:     []StorySection{},
		ProjectGoals:   ProjectGoals{TotalWordCount: DefaultWordGoal},
		WritingHistory: []WritingHistoryEntry{},
	}
}

// DefaultWordGoal is the word target of a fresh project.
const DefaultWordGoal = 50000

// DefaultProjectData returns the project a new install starts with.
func DefaultProjectData() *ProjectData {
	return NewProjectData("Untitled Story", "")
}

// Clone returns a deep copy. Live project values are treated as immutable,
// so reducers always work on a clone.
func (p *ProjectData) Clone() *ProjectData {
	if p == nil {
		return nil
	}
	out := &ProjectData{
		Title:      p.Title,
		Logline:    p.Logline,
		Characters: p.Characters.Clone(),
		Worlds:     p.Worlds.Clone(),
		Outline:    append([]OutlineSection{}, p.Outline...),
		Manuscript: append([]StorySection{}, p.Manuscript...),
		ProjectGoals: ProjectGoals{
			TotalWordCount: p.ProjectGoals.TotalWordCount,
		},
		WritingHistory: append([]WritingHistoryEntry{}, p.WritingHistory...),
	}
	if p.ProjectGoals.TargetDate != nil {
		date := *p.ProjectGoals.TargetDate
		out.ProjectGoals.TargetDate = &date
	}
	return out
}

// Normalize replaces nil slices with empty ones so that decoded and
// freshly built projects compare equal.
func (p *ProjectData) Normalize() {
	if p.Outline == nil {
		p.Outline = []OutlineSection{}
	}
	if p.Manuscript == nil {
		p.Manuscript = []StorySection{}
	}
	if p.WritingHistory == nil {
		p.WritingHistory = []WritingHistoryEntry{}
	}
	if p.Characters.Len() == 0 {
		p.Characters = collection.MustNew[Character]()
	}
	if p.Worlds.Len() == 0 {
		p.Worlds = collection.MustNew[World]()
	}
}

// SectionIndex returns the manuscript index of the section, or -1.
func (p *ProjectData) SectionIndex(id string) int {
	for i, s := range p.Manuscript {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Settings holds editor and generation preferences. It has a lifecycle
// independent from ProjectData.
type Settings struct {
	Theme            string  `json:"theme" yaml:"theme"`
	EditorFont       string  `json:"editorFont" yaml:"editor_font"`
	FontSize         int     `json:"fontSize" yaml:"font_size"`
	LineSpacing      float64 `json:"lineSpacing" yaml:"line_spacing"`
	AICreativity     string  `json:"aiCreativity" yaml:"ai_creativity"`
	ParagraphSpacing float64 `json:"paragraphSpacing" yaml:"paragraph_spacing"`
	FirstLineIndent  bool    `json:"firstLineIndent" yaml:"first_line_indent"`
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Theme:            "dark",
		EditorFont:       "serif",
		FontSize:         18,
		LineSpacing:      1.6,
		AICreativity:     "balanced",
		ParagraphSpacing: 1.0,
		FirstLineIndent:  true,
	}
}

// SnapshotMeta describes a snapshot without its project payload.
type SnapshotMeta struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Name      string    `json:"name"`
	WordCount int       `json:"wordCount"`
}

// IsAutomatic reports whether the snapshot was created without a name.
func (m SnapshotMeta) IsAutomatic() bool {
	return m.Name == DefaultSnapshotName
}

// SnapshotRecord is a full, immutable copy of a project at a point in time.
type SnapshotRecord struct {
	SnapshotMeta
	Data *ProjectData `json:"data"`
}

// SaveStatus is the autosave state shown to the writer.
type SaveStatus int

const (
	SaveIdle SaveStatus = iota
	SaveSaving
	SaveSaved
)

func (s SaveStatus) String() string {
	switch s {
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	default:
		return "idle"
	}
}

// GlobalConfig is the user-wide configuration at ~/.config/storyloom/config.yaml.
type GlobalConfig struct {
	Version   int                        `yaml:"version"`
	DataDir   string                     `yaml:"data_dir"`
	Storage   StorageConfig              `yaml:"storage"`
	Autosave  AutosaveConfig             `yaml:"autosave"`
	History   HistoryConfig              `yaml:"history"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
	Images    ImagesConfig               `yaml:"images"`
	Logging   LoggingConfig              `yaml:"logging"`
	Metrics   MetricsConfig              `yaml:"metrics"`
}

// StorageConfig selects the local database driver.
type StorageConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`
}

// AutosaveConfig tunes the autosave pipeline.
type AutosaveConfig struct {
	SettleWindow      time.Duration `yaml:"settle_window"`
	SavedHold         time.Duration `yaml:"saved_hold"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	SnapshotRetention int           `yaml:"snapshot_retention"`
}

// HistoryConfig bounds the undo stack.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// ProviderConfig holds API configuration for an AI provider.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url,omitempty"`
}

// ImagesConfig selects the image generation provider.
type ImagesConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// LoggingConfig specifies logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultGlobalConfig returns a new GlobalConfig with sensible defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: 1,
		DataDir: "~/.local/share/storyloom",
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Autosave: AutosaveConfig{
			SettleWindow:      time.Second,
			SavedHold:         2 * time.Second,
			SnapshotInterval:  30 * time.Minute,
			SnapshotRetention: 20,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		Providers: make(map[string]*ProviderConfig),
		Images: ImagesConfig{
			Provider: "openai",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
