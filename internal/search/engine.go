// Package search finds text across the live project: manuscript sections,
// outline beats, characters and worlds.
package search

import (
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrEmptyQuery is returned when a query has no searchable words.
var ErrEmptyQuery = errors.New("empty search query")

// SourceType constants for document categorization.
const (
	SourceTypeSection   = "section"
	SourceTypeOutline   = "outline"
	SourceTypeCharacter = "character"
	SourceTypeWorld     = "world"
)

// Default highlight markers, matching Markdown bold.
const (
	HighlightStart = "**"
	HighlightEnd   = "**"
)

const (
	snippetContext = 40
	maxHighlights  = 3
)

// Options configures search behavior.
type Options struct {
	// Limit is the maximum number of results to return.
	// If 0, a default limit is applied.
	Limit int

	// FilterType restricts results to a specific source type.
	// Empty string matches all types.
	FilterType string

	// MinScore is the minimum relevance score for results (0.0-1.0).
	MinScore float64
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{Limit: 20}
}

// WithLimit returns a copy of the options with the specified limit.
func (o Options) WithLimit(limit int) Options {
	o.Limit = limit
	return o
}

// WithFilterType returns a copy of the options with the specified filter type.
func (o Options) WithFilterType(filterType string) Options {
	o.FilterType = filterType
	return o
}

// WithMinScore returns a copy of the options with the specified minimum score.
func (o Options) WithMinScore(minScore float64) Options {
	o.MinScore = minScore
	return o
}

// IsValidSourceType returns true if the given type is a valid source type.
func IsValidSourceType(sourceType string) bool {
	switch sourceType {
	case SourceTypeSection, SourceTypeOutline, SourceTypeCharacter, SourceTypeWorld, "":
		return true
	default:
		return false
	}
}

// Document is one searchable unit of the project.
type Document struct {
	ID         string
	Title      string
	Content    string
	SourceType string
}

// Result represents a single search result with relevance information.
type Result struct {
	Document Document

	// Score is the share of query words found in the document (0.0-1.0).
	Score float64

	// Highlights are content fragments with matched words wrapped in
	// HighlightStart and HighlightEnd.
	Highlights []string

	occurrences int
	order       int
}

// Search matches every query word case-insensitively against the title and
// content of docs. Results are ordered by score, then by number of
// occurrences, then by document order.
func Search(docs []Document, query string, opts Options) ([]Result, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultOptions().Limit
	}

	var results []Result
	for i, doc := range docs {
		if opts.FilterType != "" && doc.SourceType != opts.FilterType {
			continue
		}

		haystack := strings.ToLower(doc.Title + "\n" + doc.Content)
		matched, occurrences := 0, 0
		for _, term := range terms {
			if n := strings.Count(haystack, term); n > 0 {
				matched++
				occurrences += n
			}
		}
		if matched == 0 {
			continue
		}

		score := float64(matched) / float64(len(terms))
		if score < opts.MinScore {
			continue
		}

		results = append(results, Result{
			Document:    doc,
			Score:       score,
			Highlights:  highlights(doc.Content, terms),
			occurrences: occurrences,
			order:       i,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.occurrences != b.occurrences {
			return a.occurrences > b.occurrences
		}
		return a.order < b.order
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// queryTerms lowercases the query, strips punctuation from the edges of
// each word and drops duplicates.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}

type span struct{ start, end int }

// highlights returns up to maxHighlights snippets of content around matches.
func highlights(content string, terms []string) []string {
	lower := strings.ToLower(content)
	if len(lower) != len(content) {
		// Case folding changed byte offsets; work on the folded text.
		content = lower
	}

	matches := findMatches(lower, terms)
	if len(matches) == 0 {
		return nil
	}

	var snippets []string
	windowEnd := -1
	for _, m := range matches {
		if m.start < windowEnd {
			continue
		}
		start := runeStart(content, max(m.start-snippetContext, 0))
		end := runeStart(content, min(m.end+snippetContext, len(content)))

		var b strings.Builder
		if start > 0 {
			b.WriteString("...")
		}
		pos := start
		for _, inner := range matches {
			if inner.start < pos || inner.end > end {
				continue
			}
			b.WriteString(content[pos:inner.start])
			b.WriteString(HighlightStart)
			b.WriteString(content[inner.start:inner.end])
			b.WriteString(HighlightEnd)
			pos = inner.end
		}
		b.WriteString(content[pos:end])
		if end < len(content) {
			b.WriteString("...")
		}

		snippets = append(snippets, strings.Join(strings.Fields(b.String()), " "))
		windowEnd = end
		if len(snippets) == maxHighlights {
			break
		}
	}
	return snippets
}

// findMatches returns non-overlapping occurrences of terms in text, in
// order. Longer terms win when two start at the same offset.
func findMatches(text string, terms []string) []span {
	var all []span
	for _, term := range terms {
		for offset := 0; ; {
			i := strings.Index(text[offset:], term)
			if i < 0 {
				break
			}
			start := offset + i
			all = append(all, span{start: start, end: start + len(term)})
			offset = start + len(term)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end > all[j].end
	})

	var out []span
	last := -1
	for _, s := range all {
		if s.start < last {
			continue
		}
		out = append(out, s)
		last = s.end
	}
	return out
}

// runeStart moves i back to the start of the rune containing it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
