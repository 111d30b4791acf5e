// Package token counts manuscript words and estimates model tokens.
package token

import (
	"unicode/utf8"

	"github.com/azyu/storyloom/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a tiktoken encoder for token counting operations.
type Counter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
}

// Default encoding for fallback.
const defaultEncoding = "cl100k_base"

// NewCounter creates a new token counter with the specified encoding.
// Supported encodings include:
//   - "cl100k_base" (GPT-4, GPT-4-turbo, GPT-3.5-turbo)
//   - "o200k_base" (GPT-4o, gpt-image-1)
//
// Falls back to cl100k_base if the specified encoding is not found.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, err
		}
		encoding = defaultEncoding
	}

	return &Counter{
		encoder:  encoder,
		encoding: encoding,
	}, nil
}

// Encoding returns the current encoding name.
func (c *Counter) Encoding() string {
	return c.encoding
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// ProjectTokens counts the tokens of the manuscript in reading order.
func (c *Counter) ProjectTokens(p *types.ProjectData) int {
	if p == nil {
		return 0
	}
	total := 0
	for _, s := range p.Manuscript {
		total += c.Count(s.Content)
	}
	return total
}

// Truncate cuts text to at most maxTokens tokens. Image prompts built from
// long character descriptions go through it before reaching a provider.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoder.Decode(tokens[:maxTokens])
}

// EstimateTokens provides a quick estimate of token count without encoding.
// Uses a heuristic of approximately 4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runeCount := utf8.RuneCountInString(text)
	return (runeCount + 3) / 4
}
