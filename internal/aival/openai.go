package aival

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sensit/sensit/internal/config"
	"github.com/tidwall/gjson"
)

const openAIDefaultEndpoint = "https://api.openai.com"

type openAIProvider struct {
	cfg    config.AIConfig
	base   string
	client *http.Client
}

func newOpenAI(cfg config.AIConfig) *openAIProvider {
	base := cfg.Endpoint
	if base == "" {
		base = openAIDefaultEndpoint
	}
	return &openAIProvider{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *openAIProvider) Name() string { return config.ProviderOpenAI }

func (p *openAIProvider) ScoreBatch(ctx context.Context, batch []Candidate) ([]Score, error) {
	body := map[string]any{
		"model": p.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": batchPrompt(batch)},
		},
		"max_tokens":      p.cfg.MaxTokens * len(batch),
		"temperature":     p.cfg.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error.message").String())
	}
	content := gjson.GetBytes(raw, "choices.0.message.content").String()
	if content == "" {
		return nil, fmt.Errorf("openai: empty completion")
	}
	return parseScores(content, len(batch))
}

// retryAfter reads the standard Retry-After header in seconds.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
