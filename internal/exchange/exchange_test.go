package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/azyu/storyloom/internal/persist"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/collection"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProject() *types.ProjectData {
	target := "2026-12-31"
	p := types.NewProjectData("The Lighthouse", "A keeper waits for a ship that never comes")
	p.Characters = collection.MustNew(
		types.Character{ID: "c1", Name: "Mara", Role: "Keeper", HasAvatar: true},
		types.Character{ID: "c2", Name: "Tobin", Role: "Smuggler"},
	)
	p.Worlds = collection.MustNew(types.World{ID: "w1", Name: "Cape Ruin", Geography: "Cliffs"})
	p.Outline = []types.OutlineSection{{ID: "o1", Title: "Storm", Summary: "The lamp fails"}}
	p.Manuscript = []types.StorySection{
		{ID: "s1", Title: "Fog", Content: "The lamp went dark."},
		{ID: "s2", Title: "Signal", Content: "A light answered from the sea.", Prompt: "tension"},
	}
	p.ProjectGoals = types.ProjectGoals{TotalWordCount: 80000, TargetDate: &target}
	p.WritingHistory = []types.WritingHistoryEntry{{Date: "2026-03-01", WordCount: 1200}}
	return p
}

func encode(t *testing.T, doc Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))
	return buf.Bytes()
}

// failingAssets fails the first Put for failOn.
type failingAssets struct {
	*persist.Assets
	failOn string
	failed bool
}

func (f *failingAssets) Put(ctx context.Context, id, data string) error {
	if id == f.failOn && !f.failed {
		f.failed = true
		return errors.New("quota exceeded")
	}
	return f.Assets.Put(ctx, id, data)
}

// ============================================================================
// Export
// ============================================================================

func TestExport(t *testing.T) {
	data := encode(t, Export(sampleProject()))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"title", "logline", "characters", "worlds", "outline", "manuscript", "projectGoals", "writingHistory"} {
		assert.Contains(t, raw, key)
	}
	assert.True(t, bytes.HasPrefix(bytes.TrimSpace(raw["characters"]), []byte("[")), "collections export as plain lists")
	assert.NotContains(t, string(data), "avatarBase64")
}

func TestExportPortable(t *testing.T) {
	ctx := context.Background()
	assets := persist.NewAssets(storage.NewMemoryStore())
	require.NoError(t, assets.Put(ctx, "c1", "YXZhdGFy"))
	require.NoError(t, assets.Put(ctx, "c2", "dW51c2Vk"))

	doc, err := ExportPortable(ctx, sampleProject(), assets)
	require.NoError(t, err)

	assert.Equal(t, "YXZhdGFy", doc.Characters[0].AvatarBase64)
	assert.Empty(t, doc.Characters[1].AvatarBase64, "images without a flag are not exported")
	assert.Empty(t, doc.Worlds[0].AmbianceImageBase64)

	target := persist.NewAssets(storage.NewMemoryStore())
	imported, err := Import(ctx, encode(t, doc), target)
	require.NoError(t, err)
	assert.Equal(t, sampleProject(), imported)

	got, err := target.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "YXZhdGFy", got)
}

// ============================================================================
// Import
// ============================================================================

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	original := sampleProject()

	imported, err := Import(ctx, encode(t, Export(original)), persist.NewAssets(storage.NewMemoryStore()))
	require.NoError(t, err)

	assert.Equal(t, original, imported, "ids and order are preserved")
}

func TestImportLegacyInlineImages(t *testing.T) {
	ctx := context.Background()
	assets := persist.NewAssets(storage.NewMemoryStore())
	doc := `{
		"title": "Legacy",
		"logline": "",
		"characters": [{"id": "c1", "name": "Ann", "avatarBase64": "QU5O"}],
		"worlds": [{"id": "w1", "name": "Vale", "ambianceImageBase64": "VkFMRQ=="}]
	}`

	p, err := Import(ctx, []byte(doc), assets)
	require.NoError(t, err)

	c, ok := p.Characters.SelectByID("c1")
	require.True(t, ok)
	assert.True(t, c.HasAvatar)
	w, ok := p.Worlds.SelectByID("w1")
	require.True(t, ok)
	assert.True(t, w.HasAmbianceImage)

	data, err := assets.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "QU5O", data)
	data, err = assets.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "VkFMRQ==", data)

	encoded, err := persist.EncodeProject(p)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "avatarBase64")
	assert.NotContains(t, string(encoded), "QU5O")
}

func TestImportShapes(t *testing.T) {
	ctx := context.Background()
	doc := `{
		"title": "Indexed",
		"characters": {"ids": ["b", "a"], "entities": {"a": {"id": "a", "name": "A"}, "b": {"id": "b", "name": "B"}}},
		"worlds": [{"name": "No id yet"}]
	}`

	p, err := Import(ctx, []byte(doc), persist.NewAssets(storage.NewMemoryStore()))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, p.Characters.IDs())
	require.Equal(t, 1, p.Worlds.Len())
	assert.NotEmpty(t, p.Worlds.IDs()[0], "missing ids are generated")

	assert.Equal(t, []types.OutlineSection{}, p.Outline)
	assert.Equal(t, []types.StorySection{}, p.Manuscript)
	assert.Equal(t, []types.WritingHistoryEntry{}, p.WritingHistory)
	assert.Equal(t, types.DefaultWordGoal, p.ProjectGoals.TotalWordCount)
	assert.Empty(t, p.Logline)
}

func TestImportRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "not json", doc: `{"title": `},
		{name: "not an object", doc: `["title"]`},
		{name: "empty", doc: ``},
		{name: "missing characters", doc: `{"title": "x", "worlds": []}`, field: "characters"},
		{name: "missing worlds", doc: `{"title": "x", "characters": []}`, field: "worlds"},
		{name: "wrong title type", doc: `{"title": 5, "characters": [], "worlds": []}`},
		{name: "characters wrong type", doc: `{"characters": "many", "worlds": []}`, field: "characters"},
		{name: "duplicate character ids", doc: `{"characters": [{"id": "a"}, {"id": "a"}], "worlds": []}`, field: "characters"},
		{name: "duplicate section ids", doc: `{"characters": [], "worlds": [], "manuscript": [{"id": "s"}, {"id": "s"}]}`, field: "manuscript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			_, err := Import(context.Background(), []byte(tt.doc), persist.NewAssets(store))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrImportParse)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestImportRejectsBeforeWritingAssets(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	doc := `{"characters": [{"id": "c1", "avatarBase64": "eA=="}], "worlds": [{"id": "w1"}, {"id": "w1"}]}`

	_, err := Import(ctx, []byte(doc), persist.NewAssets(store))
	require.ErrorIs(t, err, ErrImportParse)

	records, err := store.ListAll(ctx, storage.PartitionImages)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestImportAssetFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	assets := &failingAssets{Assets: persist.NewAssets(store), failOn: "w1"}
	doc := `{
		"characters": [{"id": "c1", "avatarBase64": "b25l"}],
		"worlds": [{"id": "w1", "ambianceImageBase64": "dHdv"}]
	}`

	p, err := Import(ctx, []byte(doc), assets)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrImportParse)
	assert.Nil(t, p)
	records, err := store.ListAll(ctx, storage.PartitionImages)
	require.NoError(t, err)
	assert.Empty(t, records, "payloads written before the failure are removed")
}

func TestImportAssetFailureKeepsExistingImages(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	existing := persist.NewAssets(store)
	require.NoError(t, existing.Put(ctx, "c1", "T1JJR0lOQUw="))
	require.NoError(t, existing.Put(ctx, "w9", "dW50b3VjaGVk"))

	assets := &failingAssets{Assets: existing, failOn: "w1"}
	doc := `{
		"characters": [{"id": "c1", "avatarBase64": "b25l"}, {"id": "c2", "avatarBase64": "bmV3"}],
		"worlds": [{"id": "w1", "ambianceImageBase64": "dHdv"}]
	}`

	_, err := Import(ctx, []byte(doc), assets)
	require.Error(t, err)

	got, err := existing.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"c1": "T1JJR0lOQUw=",
		"w9": "dW50b3VjaGVk",
	}, got, "earlier payloads are restored and new ones removed")
}

func TestImportIndexedEntitiesWithoutIDs(t *testing.T) {
	doc := `{
		"characters": {"ids": ["c2", "c1"], "entities": {"c1": {"name": "Mara"}, "c2": {"id": "c2", "name": "Tobin"}}},
		"worlds": {"ids": ["w1"], "entities": {"w1": {"name": "Harbor", "ambianceImageBase64": "eA=="}}}
	}`
	store := storage.NewMemoryStore()

	p, err := Import(context.Background(), []byte(doc), persist.NewAssets(store))
	require.NoError(t, err)

	assert.Equal(t, []string{"c2", "c1"}, p.Characters.IDs())
	c, ok := p.Characters.SelectByID("c1")
	require.True(t, ok)
	assert.Equal(t, "Mara", c.Name)

	w, ok := p.Worlds.SelectByID("w1")
	require.True(t, ok)
	assert.True(t, w.HasAmbianceImage)
	data, err := store.Get(context.Background(), storage.PartitionImages, "w1")
	require.NoError(t, err)
	assert.Equal(t, "eA==", string(data))
}

// ============================================================================
// Rendering
// ============================================================================

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(sampleProject())

	assert.True(t, strings.HasPrefix(out, "# The Lighthouse\n"))
	assert.Contains(t, out, "*A keeper waits for a ship that never comes*")
	assert.Less(t, strings.Index(out, "## Fog"), strings.Index(out, "## Signal"), "reading order")
}

func TestRenderHTML(t *testing.T) {
	p := sampleProject()
	p.Title = "Fish & Ships"

	out, err := RenderHTML(p)
	require.NoError(t, err)

	assert.Contains(t, out, "<title>Fish &amp; Ships</title>")
	assert.Contains(t, out, "<h2>Fog</h2>")
	assert.Contains(t, out, "<p>The lamp went dark.</p>")
}

func TestParseManuscript(t *testing.T) {
	p := sampleProject()
	p.Manuscript[0].Content = "First paragraph.\n\nSecond paragraph."

	title, sections := ParseManuscript(RenderMarkdown(p))

	assert.Equal(t, "The Lighthouse", title)
	require.Len(t, sections, 2)
	assert.Equal(t, "Fog", sections[0].Title)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", sections[0].Content)
	assert.Equal(t, "Signal", sections[1].Title)
	assert.Equal(t, "A light answered from the sea.", sections[1].Content)
	assert.NotEqual(t, sections[0].ID, sections[1].ID)
}
