package adapters

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/azyu/storyloom/internal/ai"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "imagen-3.0-generate-002"

// GeminiImages generates images with Google's Imagen models through the
// Gemini API.
type GeminiImages struct {
	client *genai.Client
	model  string
}

var _ ai.ImageGenerator = (*GeminiImages)(nil)

// NewGeminiImages creates a new Gemini image adapter.
func NewGeminiImages(ctx context.Context, apiKey, model string) (*GeminiImages, error) {
	if apiKey == "" {
		return nil, ai.ErrInvalidAPIKey
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiImages{
		client: client,
		model:  model,
	}, nil
}

// GenerateImage requests an image and returns the first one base64-encoded.
func (a *GeminiImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Models.GenerateImages(ctx, a.model, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ai.ErrAPIError, err.Error())
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return "", ai.ErrNoImage
	}
	img := resp.GeneratedImages[0].Image
	if img == nil || len(img.ImageBytes) == 0 {
		return "", ai.ErrNoImage
	}
	return base64.StdEncoding.EncodeToString(img.ImageBytes), nil
}

// Close releases resources held by the adapter.
func (a *GeminiImages) Close() error {
	return nil
}

// Model returns the configured model.
func (a *GeminiImages) Model() string {
	return a.model
}
