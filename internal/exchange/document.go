// Package exchange converts projects to and from portable documents.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/pkg/types"
)

// Character is a character as it appears in a portable document.
type Character struct {
	types.Character
	AvatarBase64 string `json:"avatarBase64,omitempty"`
}

// World is a world as it appears in a portable document.
type World struct {
	types.World
	AmbianceImageBase64 string `json:"ambianceImageBase64,omitempty"`
}

// Document is the portable export format. Collections are plain ordered
// lists rather than the indexed shape used internally.
type Document struct {
	Title          string                      `json:"title"`
	Logline        string                      `json:"logline"`
	Characters     []Character                 `json:"characters"`
	Worlds         []World                     `json:"worlds"`
	Outline        []types.OutlineSection      `json:"outline"`
	Manuscript     []types.StorySection        `json:"manuscript"`
	ProjectGoals   types.ProjectGoals          `json:"projectGoals"`
	WritingHistory []types.WritingHistoryEntry `json:"writingHistory"`
}

// AssetReader looks up image payloads by entity id.
type AssetReader interface {
	Get(ctx context.Context, entityID string) (string, error)
}

// Export builds a document from the project. Images stay in the asset
// partition.
func Export(p *types.ProjectData) Document {
	doc := Document{
		Title:          p.Title,
		Logline:        p.Logline,
		Characters:     make([]Character, 0, p.Characters.Len()),
		Worlds:         make([]World, 0, p.Worlds.Len()),
		Outline:        append([]types.OutlineSection{}, p.Outline...),
		Manuscript:     append([]types.StorySection{}, p.Manuscript...),
		ProjectGoals:   p.ProjectGoals,
		WritingHistory: append([]types.WritingHistoryEntry{}, p.WritingHistory...),
	}
	for _, c := range p.Characters.SelectAll() {
		doc.Characters = append(doc.Characters, Character{Character: c})
	}
	for _, w := range p.Worlds.SelectAll() {
		doc.Worlds = append(doc.Worlds, World{World: w})
	}
	return doc
}

// ExportPortable is Export with every flagged image inlined, so the
// document can be moved to another installation.
func ExportPortable(ctx context.Context, p *types.ProjectData, assets AssetReader) (Document, error) {
	doc := Export(p)
	for i, c := range doc.Characters {
		if !c.HasAvatar {
			continue
		}
		data, err := lookupAsset(ctx, assets, c.ID)
		if err != nil {
			return Document{}, err
		}
		doc.Characters[i].AvatarBase64 = data
	}
	for i, w := range doc.Worlds {
		if !w.HasAmbianceImage {
			continue
		}
		data, err := lookupAsset(ctx, assets, w.ID)
		if err != nil {
			return Document{}, err
		}
		doc.Worlds[i].AmbianceImageBase64 = data
	}
	return doc, nil
}

// lookupAsset treats a missing payload as no image.
func lookupAsset(ctx context.Context, assets AssetReader, id string) (string, error) {
	data, err := assets.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read image for %s: %w", id, err)
	}
	return data, nil
}

// Encode writes the document as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}
