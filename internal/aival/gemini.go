package aival

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sensit/sensit/internal/config"
	"github.com/tidwall/gjson"
)

const geminiDefaultEndpoint = "https://generativelanguage.googleapis.com"

type geminiProvider struct {
	cfg    config.AIConfig
	base   string
	client *http.Client
}

func newGemini(cfg config.AIConfig) *geminiProvider {
	base := cfg.Endpoint
	if base == "" {
		base = geminiDefaultEndpoint
	}
	return &geminiProvider{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

func (p *geminiProvider) ScoreBatch(ctx context.Context, batch []Candidate) ([]Score, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": systemPrompt + "\n\n" + batchPrompt(batch)}}},
		},
		"generationConfig": map[string]any{
			"temperature":     p.cfg.Temperature,
			"maxOutputTokens": p.cfg.MaxTokens * len(batch),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.base, url.PathEscape(p.cfg.Model), url.QueryEscape(p.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gemini response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error.message").String())
	}
	// Gemini has no JSON response mode here, so the model text routinely
	// arrives wrapped in markdown fences; parseScores handles that.
	text := gjson.GetBytes(raw, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return nil, fmt.Errorf("gemini: empty candidate text")
	}
	return parseScores(text, len(batch))
}
