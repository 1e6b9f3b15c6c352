package aival

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sensit/sensit/internal/config"
	"github.com/tidwall/gjson"
)

const ollamaDefaultEndpoint = "http://localhost:11434"

// ollamaProvider talks to a local inference server. No credentials, and
// rate limiting is a non-issue, but a busy model can be slow so the
// configured timeout still applies.
type ollamaProvider struct {
	cfg    config.AIConfig
	base   string
	client *http.Client
}

func newOllama(cfg config.AIConfig) *ollamaProvider {
	base := cfg.Endpoint
	if base == "" {
		base = ollamaDefaultEndpoint
	}
	return &ollamaProvider{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ollamaProvider) Name() string { return config.ProviderOllama }

// MaxBatch keeps prompts small enough for local models to answer with
// well-formed JSON.
func (p *ollamaProvider) MaxBatch() int { return 5 }

func (p *ollamaProvider) ScoreBatch(ctx context.Context, batch []Candidate) ([]Score, error) {
	body := map[string]any{
		"model":  p.cfg.Model,
		"prompt": systemPrompt + "\n\n" + batchPrompt(batch),
		"stream": false,
		"options": map[string]any{
			"temperature": p.cfg.Temperature,
			"num_predict": p.cfg.MaxTokens * len(batch),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: HTTP %d", resp.StatusCode)
	}
	text := gjson.GetBytes(raw, "response").String()
	if text == "" {
		return nil, fmt.Errorf("ollama: empty response")
	}
	return parseScores(text, len(batch))
}
