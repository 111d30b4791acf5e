// Package ai produces images for characters and worlds.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/azyu/storyloom/pkg/types"
)

// Common errors returned by image providers.
var (
	// ErrRateLimited is returned when the API rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAPIError is returned when the API returns an unexpected error.
	ErrAPIError = errors.New("API error")

	// ErrInvalidAPIKey is returned when the API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("invalid or missing API key")

	// ErrNoImage is returned when a provider answers without image data.
	ErrNoImage = errors.New("provider returned no image")

	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown image provider")
)

// ImageGenerator turns a prompt into a base64-encoded image.
// Implementations should be safe for concurrent use.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	Close() error
}

// MaxPromptTokens bounds prompts built from long entity descriptions.
const MaxPromptTokens = 900

// AvatarPrompt describes a character portrait.
func AvatarPrompt(c types.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portrait of %s", fallback(c.Name, "a story character"))
	if c.Role != "" {
		fmt.Fprintf(&b, ", %s", c.Role)
	}
	b.WriteString(". ")
	writeDetail(&b, c.Description)
	writeDetail(&b, c.Motivation)
	b.WriteString("Painterly character art, head and shoulders, no text.")
	return b.String()
}

// AmbiancePrompt describes a wide establishing shot of a world.
func AmbiancePrompt(w types.World) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Establishing shot of %s. ", fallback(w.Name, "a fictional world"))
	writeDetail(&b, w.Description)
	writeDetail(&b, w.Geography)
	writeDetail(&b, w.Culture)
	b.WriteString("Atmospheric landscape concept art, no people in the foreground, no text.")
	return b.String()
}

func writeDetail(b *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	b.WriteString(s)
	if !strings.HasSuffix(s, ".") {
		b.WriteString(".")
	}
	b.WriteString(" ")
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
