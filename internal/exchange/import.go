package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/collection"
	"github.com/azyu/storyloom/pkg/types"
	"github.com/google/uuid"
)

// ErrImportParse matches every import failure caused by the document itself.
var ErrImportParse = errors.New("import parse error")

// ParseError describes why a document was rejected.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrImportParse, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrImportParse, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match ErrImportParse.
func (e *ParseError) Is(target error) bool { return target == ErrImportParse }

// AssetWriter stores and removes image payloads by entity id. Get of a
// missing payload returns an error matching storage.ErrNotFound.
type AssetWriter interface {
	Get(ctx context.Context, entityID string) (string, error)
	Put(ctx context.Context, entityID, base64Data string) error
	Delete(ctx context.Context, entityID string) error
}

type wireDocument struct {
	Title          *string                     `json:"title"`
	Logline        *string                     `json:"logline"`
	Characters     json.RawMessage             `json:"characters"`
	Worlds         json.RawMessage             `json:"worlds"`
	Outline        []types.OutlineSection      `json:"outline"`
	Manuscript     []types.StorySection        `json:"manuscript"`
	ProjectGoals   *types.ProjectGoals         `json:"projectGoals"`
	WritingHistory []types.WritingHistoryEntry `json:"writingHistory"`
}

type pendingAsset struct {
	id   string
	data string
}

// Import parses a document into a project. The whole document is validated
// before any image payload is written; if any write fails the import fails
// and the images partition is put back the way it was: payloads that existed
// before are rewritten, new ones are removed. The caller replaces live state
// only when Import succeeds.
func Import(ctx context.Context, data []byte, assets AssetWriter) (*types.ProjectData, error) {
	p, pending, err := parse(data)
	if err != nil {
		return nil, err
	}

	previous := make(map[string]string, len(pending))
	for _, a := range pending {
		old, err := assets.Get(ctx, a.id)
		switch {
		case err == nil:
			previous[a.id] = old
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to read image for %s: %w", a.id, err)
		}
	}

	written := make([]string, 0, len(pending))
	for _, a := range pending {
		if err := assets.Put(ctx, a.id, a.data); err != nil {
			restoreAssets(ctx, assets, written, previous)
			return nil, fmt.Errorf("failed to import image for %s: %w", a.id, err)
		}
		written = append(written, a.id)
	}
	return p, nil
}

// restoreAssets undoes the writes of a failed import. Best effort: the
// import error is what gets reported.
func restoreAssets(ctx context.Context, assets AssetWriter, written []string, previous map[string]string) {
	for _, id := range written {
		if old, ok := previous[id]; ok {
			_ = assets.Put(ctx, id, old)
			continue
		}
		_ = assets.Delete(ctx, id)
	}
}

// parse validates and normalises a document without touching storage.
// Inline images are stripped from the entities and returned separately.
func parse(data []byte) (*types.ProjectData, []pendingAsset, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, &ParseError{Err: errors.New("document is not a JSON object")}
	}

	var wire wireDocument
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, nil, &ParseError{Err: err}
	}
	if wire.Characters == nil {
		return nil, nil, &ParseError{Field: "characters", Err: errors.New("missing")}
	}
	if wire.Worlds == nil {
		return nil, nil, &ParseError{Field: "worlds", Err: errors.New("missing")}
	}

	p := types.DefaultProjectData()
	if wire.Title != nil {
		p.Title = *wire.Title
	}
	if wire.Logline != nil {
		p.Logline = *wire.Logline
	}
	if wire.Outline != nil {
		p.Outline = wire.Outline
	}
	if wire.Manuscript != nil {
		p.Manuscript = wire.Manuscript
	}
	if wire.ProjectGoals != nil {
		p.ProjectGoals = *wire.ProjectGoals
	}
	if wire.WritingHistory != nil {
		p.WritingHistory = wire.WritingHistory
	}

	var pending []pendingAsset

	chars, err := collection.DecodeKeyed[Character](wire.Characters)
	if err != nil {
		return nil, nil, &ParseError{Field: "characters", Err: err}
	}
	characters := make([]types.Character, 0, len(chars))
	for _, k := range chars {
		c := k.Value
		c.ID = entityID(c.ID, k.Key)
		if c.AvatarBase64 != "" {
			pending = append(pending, pendingAsset{id: c.ID, data: c.AvatarBase64})
			c.HasAvatar = true
		}
		characters = append(characters, c.Character)
	}
	if p.Characters, err = collection.New(characters...); err != nil {
		return nil, nil, &ParseError{Field: "characters", Err: err}
	}

	ws, err := collection.DecodeKeyed[World](wire.Worlds)
	if err != nil {
		return nil, nil, &ParseError{Field: "worlds", Err: err}
	}
	worlds := make([]types.World, 0, len(ws))
	for _, k := range ws {
		w := k.Value
		w.ID = entityID(w.ID, k.Key)
		if w.AmbianceImageBase64 != "" {
			pending = append(pending, pendingAsset{id: w.ID, data: w.AmbianceImageBase64})
			w.HasAmbianceImage = true
		}
		worlds = append(worlds, w.World)
	}
	if p.Worlds, err = collection.New(worlds...); err != nil {
		return nil, nil, &ParseError{Field: "worlds", Err: err}
	}

	if err := normalizeSections(p); err != nil {
		return nil, nil, err
	}
	p.Normalize()
	return p, pending, nil
}

// entityID keeps an entity's own id, then its map key, and only generates
// a fresh id when both are empty.
func entityID(id, key string) string {
	switch {
	case id != "":
		return id
	case key != "":
		return key
	default:
		return uuid.NewString()
	}
}

func normalizeSections(p *types.ProjectData) error {
	seen := make(map[string]bool, len(p.Manuscript))
	for i := range p.Manuscript {
		if p.Manuscript[i].ID == "" {
			p.Manuscript[i].ID = uuid.NewString()
		}
		if seen[p.Manuscript[i].ID] {
			return &ParseError{Field: "manuscript", Err: fmt.Errorf("duplicate section id %s", p.Manuscript[i].ID)}
		}
		seen[p.Manuscript[i].ID] = true
	}
	for i := range p.Outline {
		if p.Outline[i].ID == "" {
			p.Outline[i].ID = uuid.NewString()
		}
	}
	return nil
}
