package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/azyu/storyloom/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b64_json", req["response_format"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIImages(t *testing.T) {
	_, err := NewOpenAIImages("", "")
	assert.ErrorIs(t, err, ai.ErrInvalidAPIKey)

	a, err := NewOpenAIImages("key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, a.Model())
}

func TestOpenAIImages_GenerateImage(t *testing.T) {
	t.Run("returns the base64 payload", func(t *testing.T) {
		srv := newImageServer(t, http.StatusOK, map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": "aW1hZ2U="}},
		})
		a, err := NewOpenAIImages("test-key", "", WithOpenAIBaseURL(srv.URL+"/v1"))
		require.NoError(t, err)

		data, err := a.GenerateImage(context.Background(), "a lighthouse at dusk")
		require.NoError(t, err)
		assert.Equal(t, "aW1hZ2U=", data)
	})

	t.Run("empty response", func(t *testing.T) {
		srv := newImageServer(t, http.StatusOK, map[string]any{"created": 1, "data": []any{}})
		a, err := NewOpenAIImages("test-key", "", WithOpenAIBaseURL(srv.URL+"/v1"))
		require.NoError(t, err)

		_, err = a.GenerateImage(context.Background(), "prompt")
		assert.ErrorIs(t, err, ai.ErrNoImage)
	})

	t.Run("maps API errors", func(t *testing.T) {
		tests := []struct {
			status int
			want   error
		}{
			{status: http.StatusUnauthorized, want: ai.ErrInvalidAPIKey},
			{status: http.StatusTooManyRequests, want: ai.ErrRateLimited},
			{status: http.StatusBadRequest, want: ai.ErrAPIError},
		}
		for _, tt := range tests {
			srv := newImageServer(t, tt.status, map[string]any{
				"error": map[string]any{"message": "nope", "type": "invalid_request_error"},
			})
			a, err := NewOpenAIImages("test-key", "", WithOpenAIBaseURL(srv.URL+"/v1"))
			require.NoError(t, err)

			_, err = a.GenerateImage(context.Background(), "prompt")
			assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		}
	})
}

func TestNewGeminiImages(t *testing.T) {
	_, err := NewGeminiImages(context.Background(), "", "")
	assert.ErrorIs(t, err, ai.ErrInvalidAPIKey)

	a, err := NewGeminiImages(context.Background(), "key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, a.Model())
	assert.NoError(t, a.Close())
}
