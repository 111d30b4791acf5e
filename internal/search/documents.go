package search

import (
	"strings"

	"github.com/azyu/storyloom/pkg/types"
)

// Documents flattens a project into searchable documents in reading order:
// manuscript sections, outline beats, characters, then worlds.
func Documents(p *types.ProjectData) []Document {
	if p == nil {
		return nil
	}

	var docs []Document
	for _, s := range p.Manuscript {
		docs = append(docs, Document{ID: s.ID, Title: s.Title, Content: s.Content, SourceType: SourceTypeSection})
	}
	for _, s := range p.Outline {
		docs = append(docs, Document{ID: s.ID, Title: s.Title, Content: s.Summary, SourceType: SourceTypeOutline})
	}
	for _, c := range p.Characters.SelectAll() {
		docs = append(docs, Document{
			ID:         c.ID,
			Title:      c.Name,
			Content:    joinFields(c.Role, c.Description, c.Backstory, c.Motivation, c.Notes),
			SourceType: SourceTypeCharacter,
		})
	}
	for _, w := range p.Worlds.SelectAll() {
		docs = append(docs, Document{
			ID:         w.ID,
			Title:      w.Name,
			Content:    joinFields(w.Description, w.Geography, w.Culture, w.Notes),
			SourceType: SourceTypeWorld,
		})
	}
	return docs
}

func joinFields(fields ...string) string {
	var parts []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}
