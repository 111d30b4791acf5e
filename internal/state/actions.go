package state

import (
	"errors"
	"fmt"

	"github.com/azyu/storyloom/internal/history"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/google/uuid"
)

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrEntityNotFound  = errors.New("entity not found")
)

// Draft is what a reducer works on. Project must be treated as immutable:
// reducers that change it install a modified clone.
type Draft struct {
	Project   *types.ProjectData
	Selection string
}

// Action is an edit tagged with its history class at creation time.
type Action interface {
	Tag() history.Tag
	Reduce(d Draft) (Draft, error)
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

func edit(d Draft, fn func(p *types.ProjectData) error) (Draft, error) {
	p := d.Project.Clone()
	if err := fn(p); err != nil {
		return d, err
	}
	d.Project = p
	return d, nil
}

// SetTitle changes the project title.
type SetTitle struct{ Title string }

func (SetTitle) Tag() history.Tag { return history.Edit() }

func (a SetTitle) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		p.Title = a.Title
		return nil
	})
}

// SetLogline changes the project logline.
type SetLogline struct{ Logline string }

func (SetLogline) Tag() history.Tag { return history.Edit() }

func (a SetLogline) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		p.Logline = a.Logline
		return nil
	})
}

// AddCharacter appends a character; an empty id is generated.
type AddCharacter struct{ Character types.Character }

func (AddCharacter) Tag() history.Tag { return history.Edit() }

func (a AddCharacter) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		c := a.Character
		if c.ID == "" {
			c.ID = NewID()
		}
		return p.Characters.Add(c)
	})
}

// UpdateCharacter replaces a character by id.
type UpdateCharacter struct{ Character types.Character }

func (UpdateCharacter) Tag() history.Tag { return history.Edit() }

func (a UpdateCharacter) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		return p.Characters.Update(a.Character)
	})
}

// RemoveCharacter deletes a character by id.
type RemoveCharacter struct{ ID string }

func (RemoveCharacter) Tag() history.Tag { return history.Edit() }

func (a RemoveCharacter) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		if !p.Characters.Remove(a.ID) {
			return fmt.Errorf("%w: character %s", ErrEntityNotFound, a.ID)
		}
		return nil
	})
}

// AddWorld appends a world; an empty id is generated.
type AddWorld struct{ World types.World }

func (AddWorld) Tag() history.Tag { return history.Edit() }

func (a AddWorld) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		w := a.World
		if w.ID == "" {
			w.ID = NewID()
		}
		return p.Worlds.Add(w)
	})
}

// UpdateWorld replaces a world by id.
type UpdateWorld struct{ World types.World }

func (UpdateWorld) Tag() history.Tag { return history.Edit() }

func (a UpdateWorld) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		return p.Worlds.Update(a.World)
	})
}

// RemoveWorld deletes a world by id.
type RemoveWorld struct{ ID string }

func (RemoveWorld) Tag() history.Tag { return history.Edit() }

func (a RemoveWorld) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		if !p.Worlds.Remove(a.ID) {
			return fmt.Errorf("%w: world %s", ErrEntityNotFound, a.ID)
		}
		return nil
	})
}

// AddSection appends a manuscript section and selects it.
type AddSection struct{ Section types.StorySection }

func (AddSection) Tag() history.Tag { return history.Edit() }

func (a AddSection) Reduce(d Draft) (Draft, error) {
	s := a.Section
	if s.ID == "" {
		s.ID = NewID()
	}
	next, err := edit(d, func(p *types.ProjectData) error {
		if p.SectionIndex(s.ID) >= 0 {
			return fmt.Errorf("duplicate section id %s", s.ID)
		}
		p.Manuscript = append(p.Manuscript, s)
		return nil
	})
	if err != nil {
		return d, err
	}
	next.Selection = s.ID
	return next, nil
}

// UpdateSectionContent replaces the text of one section.
type UpdateSectionContent struct {
	ID      string
	Content string
}

func (UpdateSectionContent) Tag() history.Tag { return history.Edit() }

func (a UpdateSectionContent) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		i := p.SectionIndex(a.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, a.ID)
		}
		p.Manuscript[i].Content = a.Content
		return nil
	})
}

// UpdateSection replaces a manuscript section by id, keeping its position.
type UpdateSection struct{ Section types.StorySection }

func (UpdateSection) Tag() history.Tag { return history.Edit() }

func (a UpdateSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		i := p.SectionIndex(a.Section.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, a.Section.ID)
		}
		p.Manuscript[i] = a.Section
		return nil
	})
}

// RenameSection changes the title of one section.
type RenameSection struct {
	ID    string
	Title string
}

func (RenameSection) Tag() history.Tag { return history.Edit() }

func (a RenameSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		i := p.SectionIndex(a.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, a.ID)
		}
		p.Manuscript[i].Title = a.Title
		return nil
	})
}

// RemoveSection deletes a manuscript section.
type RemoveSection struct{ ID string }

func (RemoveSection) Tag() history.Tag { return history.Edit() }

func (a RemoveSection) Reduce(d Draft) (Draft, error) {
	next, err := edit(d, func(p *types.ProjectData) error {
		i := p.SectionIndex(a.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, a.ID)
		}
		p.Manuscript = append(p.Manuscript[:i], p.Manuscript[i+1:]...)
		return nil
	})
	if err != nil {
		return d, err
	}
	if next.Selection == a.ID {
		next.Selection = ""
	}
	return next, nil
}

// MoveSection moves a section to a new index, clamped to the manuscript bounds.
type MoveSection struct {
	ID string
	To int
}

func (MoveSection) Tag() history.Tag { return history.Edit() }

func (a MoveSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		from := p.SectionIndex(a.ID)
		if from < 0 {
			return fmt.Errorf("%w: %s", ErrSectionNotFound, a.ID)
		}
		to := min(max(a.To, 0), len(p.Manuscript)-1)
		section := p.Manuscript[from]
		rest := append(p.Manuscript[:from:from], p.Manuscript[from+1:]...)
		p.Manuscript = append(rest[:to:to], append([]types.StorySection{section}, rest[to:]...)...)
		return nil
	})
}

// AddOutlineSection appends an outline beat.
type AddOutlineSection struct{ Section types.OutlineSection }

func (AddOutlineSection) Tag() history.Tag { return history.Edit() }

func (a AddOutlineSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		s := a.Section
		if s.ID == "" {
			s.ID = NewID()
		}
		p.Outline = append(p.Outline, s)
		return nil
	})
}

// UpdateOutlineSection replaces an outline beat by id.
type UpdateOutlineSection struct{ Section types.OutlineSection }

func (UpdateOutlineSection) Tag() history.Tag { return history.Edit() }

func (a UpdateOutlineSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		for i, s := range p.Outline {
			if s.ID == a.Section.ID {
				p.Outline[i] = a.Section
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrSectionNotFound, a.Section.ID)
	})
}

// RemoveOutlineSection deletes an outline beat.
type RemoveOutlineSection struct{ ID string }

func (RemoveOutlineSection) Tag() history.Tag { return history.Edit() }

func (a RemoveOutlineSection) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		for i, s := range p.Outline {
			if s.ID == a.ID {
				p.Outline = append(p.Outline[:i], p.Outline[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrSectionNotFound, a.ID)
	})
}

// SetGoals replaces the project goals.
type SetGoals struct{ Goals types.ProjectGoals }

func (SetGoals) Tag() history.Tag { return history.Edit() }

func (a SetGoals) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		p.ProjectGoals = a.Goals
		return nil
	})
}

// RecordWordCount stores the word count reached on a date, replacing an
// existing entry for the same date.
type RecordWordCount struct {
	Date      string
	WordCount int
}

func (RecordWordCount) Tag() history.Tag { return history.Edit() }

func (a RecordWordCount) Reduce(d Draft) (Draft, error) {
	return edit(d, func(p *types.ProjectData) error {
		for i, entry := range p.WritingHistory {
			if entry.Date == a.Date {
				p.WritingHistory[i].WordCount = a.WordCount
				return nil
			}
		}
		p.WritingHistory = append(p.WritingHistory, types.WritingHistoryEntry{Date: a.Date, WordCount: a.WordCount})
		return nil
	})
}

// SelectSection changes which manuscript section the editor shows.
type SelectSection struct{ ID string }

func (SelectSection) Tag() history.Tag { return history.Ephemeral() }

func (a SelectSection) Reduce(d Draft) (Draft, error) {
	d.Selection = a.ID
	return d, nil
}

// ImageTarget names which entity kind an image belongs to.
type ImageTarget int

const (
	TargetCharacterAvatar ImageTarget = iota
	TargetWorldAmbiance
)

// ImageGeneration tracks an asynchronous image generation. Only the
// fulfilled phase changes the project: it raises the image flag on the
// owning entity once the payload is in the asset partition.
type ImageGeneration struct {
	Target   ImageTarget
	EntityID string
	Phase    history.Phase
}

func (a ImageGeneration) Tag() history.Tag { return history.Lifecycle(a.Phase) }

func (a ImageGeneration) Reduce(d Draft) (Draft, error) {
	if a.Phase != history.PhaseFulfilled {
		return d, nil
	}
	return edit(d, func(p *types.ProjectData) error {
		return setImageFlag(p, a.Target, a.EntityID, true)
	})
}

func setImageFlag(p *types.ProjectData, target ImageTarget, id string, value bool) error {
	switch target {
	case TargetCharacterAvatar:
		c, ok := p.Characters.SelectByID(id)
		if !ok {
			return fmt.Errorf("%w: character %s", ErrEntityNotFound, id)
		}
		c.HasAvatar = value
		return p.Characters.Update(c)
	case TargetWorldAmbiance:
		w, ok := p.Worlds.SelectByID(id)
		if !ok {
			return fmt.Errorf("%w: world %s", ErrEntityNotFound, id)
		}
		w.HasAmbianceImage = value
		return p.Worlds.Update(w)
	default:
		return fmt.Errorf("unknown image target %d", target)
	}
}
