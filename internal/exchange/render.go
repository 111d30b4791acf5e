package exchange

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/azyu/storyloom/pkg/types"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// RenderMarkdown renders the manuscript in reading order: the title as an
// H1, the logline in italics and every section under an H2.
func RenderMarkdown(p *types.ProjectData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	if p.Logline != "" {
		fmt.Fprintf(&b, "*%s*\n\n", p.Logline)
	}
	for _, s := range p.Manuscript {
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		if content := strings.TrimSpace(s.Content); content != "" {
			b.WriteString(content)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// RenderHTML renders the manuscript as a standalone HTML page.
func RenderHTML(p *types.ProjectData) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(p)), &body); err != nil {
		return "", fmt.Errorf("failed to render manuscript: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(p.Title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// ParseManuscript reads a Markdown manuscript back into a title and
// sections. The first H1 is the title; every H2 starts a section whose
// content runs until the next H2.
func ParseManuscript(markdown string) (string, []types.StorySection) {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	type heading struct {
		title     string
		lineStart int
		bodyStart int
	}

	var title string
	var headings []heading
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := h.Lines().At(0)
		switch h.Level {
		case 1:
			if title == "" {
				title = string(h.Text(src))
			}
		case 2:
			lineStart := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
			bodyStart := len(src)
			if nl := bytes.IndexByte(src[seg.Stop:], '\n'); nl >= 0 {
				bodyStart = seg.Stop + nl + 1
			}
			headings = append(headings, heading{title: string(h.Text(src)), lineStart: lineStart, bodyStart: bodyStart})
		}
		return ast.WalkSkipChildren, nil
	})

	sections := make([]types.StorySection, 0, len(headings))
	for i, h := range headings {
		end := len(src)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		sections = append(sections, types.StorySection{
			ID:      uuid.NewString(),
			Title:   h.title,
			Content: strings.TrimSpace(string(src[h.bodyStart:end])),
		})
	}
	return title, sections
}
