package aival

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sensit/sensit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackend(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": `{"secrets":[{"id":0,"confidence":88,"reasoning":"prod key"}]}`,
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := newOpenAI(config.AIConfig{Model: "gpt-4o-mini", APIKey: "k", Endpoint: srv.URL, MaxTokens: 500})
	scores, err := p.ScoreBatch(context.Background(), []Candidate{{Type: "t", Value: "v"}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer k", gotAuth)
	require.Len(t, scores, 1)
	assert.Equal(t, 88.0, scores[0].Confidence)
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newOpenAI(config.AIConfig{Endpoint: srv.URL})
	_, err := p.ScoreBatch(context.Background(), []Candidate{{}})
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 3, int(rl.RetryAfter.Seconds()))
}

func TestOpenAIAuthFailureIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := newOpenAI(config.AIConfig{Endpoint: srv.URL})
	_, err := p.ScoreBatch(context.Background(), []Candidate{{}})
	require.Error(t, err)
	var rl *RateLimitError
	assert.False(t, errors.As(err, &rl))
}

func TestGeminiBackendFencedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]string{{
						"text": "```json\n{\"secrets\":[{\"id\":0,\"confidence\":61,\"reasoning\":\"ok\"}]}\n```",
					}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := newGemini(config.AIConfig{Model: "gemini-pro", APIKey: "secret-key", Endpoint: srv.URL, MaxTokens: 500})
	scores, err := p.ScoreBatch(context.Background(), []Candidate{{}})
	require.NoError(t, err)
	assert.Equal(t, 61.0, scores[0].Confidence)
}

func TestOllamaBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		json.NewEncoder(w).Encode(map[string]string{
			"response": `{"secrets":[{"id":0,"confidence":33,"reasoning":"test value"}]}`,
		})
	}))
	defer srv.Close()

	p := newOllama(config.AIConfig{Model: "llama3", Endpoint: srv.URL, MaxTokens: 200})
	scores, err := p.ScoreBatch(context.Background(), []Candidate{{}})
	require.NoError(t, err)
	assert.Equal(t, 33.0, scores[0].Confidence)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(config.AIConfig{Provider: "hal9000"})
	require.Error(t, err)
}
