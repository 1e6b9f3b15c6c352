package aival

import (
	"context"
	"fmt"
	"time"

	"github.com/sensit/sensit/internal/config"
)

// Candidate is the provider-facing view of a secret awaiting judgment.
type Candidate struct {
	Type    string
	Value   string
	Context string
	Entropy float64
}

// Score is one backend verdict. Scored is false when the backend returned
// no usable answer for this candidate.
type Score struct {
	Scored     bool
	Confidence float64 // 0-100
	Reasoning  string
}

// Provider is the uniform contract every AI backend implements: accept a
// batch of candidates, return one score per candidate in batch order.
// Backends differ only in transport and rate-limit behavior.
type Provider interface {
	Name() string
	ScoreBatch(ctx context.Context, batch []Candidate) ([]Score, error)
}

// batchSizer lets a backend cap batches below the configured size.
// Local models degrade on long prompts, so the ollama backend caps low.
type batchSizer interface {
	MaxBatch() int
}

// RateLimitError marks a rejection that warrants exactly one retry with
// backoff. Every other error class degrades the batch immediately.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// NewProvider builds the backend selected by cfg.Provider. An unrecognized
// identifier is a configuration error that aborts the run.
func NewProvider(cfg config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return newOpenAI(cfg), nil
	case config.ProviderGemini:
		return newGemini(cfg), nil
	case config.ProviderOllama:
		return newOllama(cfg), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
}
