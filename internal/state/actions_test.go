package state

import (
	"testing"

	"github.com/azyu/storyloom/internal/history"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftWithSections(ids ...string) Draft {
	p := types.NewProjectData("Draft", "")
	for _, id := range ids {
		p.Manuscript = append(p.Manuscript, types.StorySection{ID: id, Title: id})
	}
	return Draft{Project: p}
}

func sectionIDs(p *types.ProjectData) []string {
	ids := make([]string, len(p.Manuscript))
	for i, s := range p.Manuscript {
		ids[i] = s.ID
	}
	return ids
}

func TestActionTags(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		class  history.Class
	}{
		{name: "set title", action: SetTitle{}, class: history.UserEdit},
		{name: "add character", action: AddCharacter{}, class: history.UserEdit},
		{name: "move section", action: MoveSection{}, class: history.UserEdit},
		{name: "record word count", action: RecordWordCount{}, class: history.UserEdit},
		{name: "select section", action: SelectSection{}, class: history.EphemeralUI},
		{name: "image pending", action: ImageGeneration{Phase: history.PhasePending}, class: history.AsyncLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, tt.action.Tag().Class)
		})
	}
}

func TestEntityActions(t *testing.T) {
	t.Run("add character generates an id", func(t *testing.T) {
		d, err := AddCharacter{Character: types.Character{Name: "Ada"}}.Reduce(draftWithSections())
		require.NoError(t, err)

		chars := d.Project.Characters.SelectAll()
		require.Len(t, chars, 1)
		assert.NotEmpty(t, chars[0].ID)
		assert.Equal(t, "Ada", chars[0].Name)
	})

	t.Run("update world replaces by id", func(t *testing.T) {
		d, err := AddWorld{World: types.World{ID: "w1", Name: "Old"}}.Reduce(draftWithSections())
		require.NoError(t, err)

		d, err = UpdateWorld{World: types.World{ID: "w1", Name: "New"}}.Reduce(d)
		require.NoError(t, err)

		w, ok := d.Project.Worlds.SelectByID("w1")
		require.True(t, ok)
		assert.Equal(t, "New", w.Name)
	})

	t.Run("remove missing world fails", func(t *testing.T) {
		_, err := RemoveWorld{ID: "nope"}.Reduce(draftWithSections())
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})
}

func TestSectionActions(t *testing.T) {
	t.Run("add selects the new section", func(t *testing.T) {
		d, err := AddSection{Section: types.StorySection{Title: "Chapter"}}.Reduce(draftWithSections())
		require.NoError(t, err)

		require.Len(t, d.Project.Manuscript, 1)
		assert.Equal(t, d.Project.Manuscript[0].ID, d.Selection)
	})

	t.Run("update content copies on write", func(t *testing.T) {
		before := draftWithSections("a")

		after, err := UpdateSectionContent{ID: "a", Content: "Once upon a time"}.Reduce(before)
		require.NoError(t, err)

		assert.Equal(t, "Once upon a time", after.Project.Manuscript[0].Content)
		assert.Empty(t, before.Project.Manuscript[0].Content)
		assert.NotSame(t, before.Project, after.Project)
	})

	t.Run("remove clears the selection", func(t *testing.T) {
		d := draftWithSections("a", "b")
		d.Selection = "a"

		d, err := RemoveSection{ID: "a"}.Reduce(d)
		require.NoError(t, err)

		assert.Equal(t, []string{"b"}, sectionIDs(d.Project))
		assert.Empty(t, d.Selection)
	})

	t.Run("move", func(t *testing.T) {
		tests := []struct {
			id   string
			to   int
			want []string
		}{
			{id: "a", to: 2, want: []string{"b", "c", "a"}},
			{id: "c", to: 0, want: []string{"c", "a", "b"}},
			{id: "b", to: 99, want: []string{"a", "c", "b"}},
			{id: "b", to: -1, want: []string{"b", "a", "c"}},
		}
		for _, tt := range tests {
			before := draftWithSections("a", "b", "c")
			d, err := MoveSection{ID: tt.id, To: tt.to}.Reduce(before)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sectionIDs(d.Project))
			assert.Equal(t, []string{"a", "b", "c"}, sectionIDs(before.Project))
		}
	})

	t.Run("missing section", func(t *testing.T) {
		_, err := RenameSection{ID: "x", Title: "y"}.Reduce(draftWithSections("a"))
		assert.ErrorIs(t, err, ErrSectionNotFound)
	})
}

func TestRecordWordCount(t *testing.T) {
	d := draftWithSections()

	d, err := RecordWordCount{Date: "2026-01-01", WordCount: 100}.Reduce(d)
	require.NoError(t, err)
	d, err = RecordWordCount{Date: "2026-01-02", WordCount: 250}.Reduce(d)
	require.NoError(t, err)
	d, err = RecordWordCount{Date: "2026-01-02", WordCount: 300}.Reduce(d)
	require.NoError(t, err)

	assert.Equal(t, []types.WritingHistoryEntry{
		{Date: "2026-01-01", WordCount: 100},
		{Date: "2026-01-02", WordCount: 300},
	}, d.Project.WritingHistory)
}

func TestImageGeneration(t *testing.T) {
	d, err := AddWorld{World: types.World{ID: "w1"}}.Reduce(draftWithSections())
	require.NoError(t, err)

	t.Run("pending and rejected keep the project", func(t *testing.T) {
		for _, phase := range []history.Phase{history.PhasePending, history.PhaseRejected} {
			next, err := ImageGeneration{Target: TargetWorldAmbiance, EntityID: "w1", Phase: phase}.Reduce(d)
			require.NoError(t, err)
			assert.Same(t, d.Project, next.Project)
		}
	})

	t.Run("fulfilled raises the flag", func(t *testing.T) {
		next, err := ImageGeneration{Target: TargetWorldAmbiance, EntityID: "w1", Phase: history.PhaseFulfilled}.Reduce(d)
		require.NoError(t, err)

		w, _ := next.Project.Worlds.SelectByID("w1")
		assert.True(t, w.HasAmbianceImage)
	})

	t.Run("fulfilled for a removed entity fails", func(t *testing.T) {
		_, err := ImageGeneration{Target: TargetCharacterAvatar, EntityID: "gone", Phase: history.PhaseFulfilled}.Reduce(d)
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})
}
