// Package adapters implements ai.ImageGenerator for hosted providers.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azyu/storyloom/internal/ai"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.CreateImageModelDallE3

// OpenAIImages generates images with the OpenAI images API.
type OpenAIImages struct {
	client *openai.Client
	model  string
	config OpenAIConfig
}

var _ ai.ImageGenerator = (*OpenAIImages)(nil)

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	// BaseURL overrides the default API URL (for Azure or compatible APIs).
	BaseURL string

	// Size is the requested image size.
	Size string

	// Timeout is the request timeout duration.
	Timeout time.Duration
}

// OpenAIOption configures an OpenAIImages adapter.
type OpenAIOption func(*OpenAIConfig)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.BaseURL = baseURL
	}
}

// WithOpenAITimeout sets the request timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.Timeout = timeout
	}
}

// NewOpenAIImages creates a new OpenAI image adapter.
func NewOpenAIImages(apiKey, model string, opts ...OpenAIOption) (*OpenAIImages, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ai.ErrInvalidAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	config := OpenAIConfig{
		Size:    openai.CreateImageSize1024x1024,
		Timeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIImages{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: config,
	}, nil
}

// GenerateImage requests a single base64-encoded image.
func (a *OpenAIImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	resp, err := a.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          a.model,
		N:              1,
		Size:           a.config.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", a.handleError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", ai.ErrNoImage
	}
	return resp.Data[0].B64JSON, nil
}

// Close releases resources. The HTTP client needs no cleanup.
func (a *OpenAIImages) Close() error {
	return nil
}

// Model returns the configured model.
func (a *OpenAIImages) Model() string {
	return a.model
}

// handleError converts OpenAI errors to our error types.
func (a *OpenAIImages) handleError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("%w: %s", ai.ErrInvalidAPIKey, apiErr.Message)
		case 429:
			return fmt.Errorf("%w: %s", ai.ErrRateLimited, apiErr.Message)
		default:
			return fmt.Errorf("%w: HTTP %d - %s", ai.ErrAPIError, apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %s", ai.ErrAPIError, reqErr.Error())
	}

	return fmt.Errorf("%w: %s", ai.ErrAPIError, err.Error())
}
