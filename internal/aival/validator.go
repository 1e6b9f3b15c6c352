// Package aival scores secret candidates with a pluggable AI backend.
//
// Candidates are batched, deduplicated against a run-scoped cache, and
// submitted concurrently under a rate limit. A backend failure degrades
// the affected batch to unscored rather than failing the scan; only a
// rate-limit rejection earns a single retry with backoff.
package aival

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultRetryBackoff = 2 * time.Second

// Validator drives one AI backend over batches of candidates.
type Validator struct {
	provider Provider
	cfg      config.AIConfig
	cache    *scoreCache
	limiter  *rate.Limiter
	backoff  time.Duration
}

// New builds a Validator for the configured backend.
func New(cfg config.AIConfig) (*Validator, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(p, cfg), nil
}

// NewWithProvider wires an explicit backend, used by tests and embedders.
func NewWithProvider(p Provider, cfg config.AIConfig) *Validator {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Validator{
		provider: p,
		cfg:      cfg,
		cache:    newScoreCache(time.Hour),
		limiter:  rate.NewLimiter(limit, 1),
		backoff:  defaultRetryBackoff,
	}
}

// job is one outbound candidate: its position in the input, the candidate
// payload, and the in-flight handle this call owns for its fingerprint.
type job struct {
	index int
	fp    string
	fl    *inflight
	cand  Candidate
}

// Score fills AI confidence and reasoning into a copy of secrets,
// preserving input order regardless of batch completion order. Candidates
// whose batch fails come back unscored, with a warning. Cancellation stops
// issuing new batches and returns whatever completed.
func (v *Validator) Score(ctx context.Context, secrets []types.Secret) ([]types.Secret, []types.Warning) {
	out := make([]types.Secret, len(secrets))
	copy(out, secrets)
	if len(out) == 0 {
		return out, nil
	}

	var (
		warnMu sync.Mutex
		warns  []types.Warning
	)
	warn := func(msg string) {
		warnMu.Lock()
		warns = append(warns, types.Warning{Stage: "ai", Source: v.provider.Name(), Msg: msg})
		warnMu.Unlock()
	}

	// Partition: cache hits apply immediately, fingerprints already in
	// flight just wait, and the rest are sent. A fingerprint is sent at
	// most once per scan no matter how many candidates share it.
	var send []job
	type waiting struct {
		index int
		fl    *inflight
	}
	var waiters []waiting
	for i := range out {
		fp := Fingerprint(out[i])
		score, fl, owned := v.cache.lookup(fp)
		switch {
		case owned != nil:
			send = append(send, job{
				index: i,
				fp:    fp,
				fl:    owned,
				cand: Candidate{
					Type:    out[i].Type,
					Value:   out[i].Value,
					Context: out[i].Context,
					Entropy: out[i].Entropy,
				},
			})
		case fl != nil:
			waiters = append(waiters, waiting{index: i, fl: fl})
		default:
			apply(&out[i], score)
		}
	}

	batchSize := v.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	if bs, ok := v.provider.(batchSizer); ok && bs.MaxBatch() < batchSize {
		batchSize = bs.MaxBatch()
	}
	var g errgroup.Group
	if v.cfg.Concurrency > 0 {
		g.SetLimit(v.cfg.Concurrency)
	}

	for start := 0; start < len(send); start += batchSize {
		batch := send[start:min(start+batchSize, len(send))]

		if ctx.Err() != nil {
			// Cancelled: release the handles we own without scoring.
			for _, j := range batch {
				v.cache.resolve(j.fp, j.fl, Score{}, false)
			}
			warn("scan cancelled before batch was submitted")
			continue
		}

		g.Go(func() error {
			v.runBatch(ctx, batch, warn)
			return nil
		})
	}
	_ = g.Wait()

	// Every in-flight handle is resolved once g.Wait returns, so these
	// reads do not block for long; reassembly by stored index keeps the
	// output in input order.
	for _, w := range waiters {
		<-w.fl.done
		if w.fl.ok {
			apply(&out[w.index], w.fl.score)
		}
	}
	for _, j := range send {
		if j.fl.ok {
			apply(&out[j.index], j.fl.score)
		}
	}
	return out, warns
}

// runBatch issues one backend call, retrying once on rate limit, and
// resolves every in-flight handle the batch owns.
func (v *Validator) runBatch(ctx context.Context, batch []job, warn func(msg string)) {
	fail := func(msg string) {
		for _, j := range batch {
			v.cache.resolve(j.fp, j.fl, Score{}, false)
		}
		warn(msg)
	}

	if err := v.limiter.Wait(ctx); err != nil {
		fail("scan cancelled while waiting for rate limiter")
		return
	}
	scores, err := v.callOnce(ctx, batch)
	var rl *RateLimitError
	if errors.As(err, &rl) {
		delay := v.backoff
		if rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		slog.Debug("ai batch rate limited, retrying once",
			"provider", v.provider.Name(), "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			fail("scan cancelled during rate-limit backoff")
			return
		}
		scores, err = v.callOnce(ctx, batch)
	}
	if err != nil {
		fail(fmt.Sprintf("batch of %d left unscored: %v", len(batch), err))
		return
	}
	for i, j := range batch {
		if i < len(scores) && scores[i].Scored {
			v.cache.resolve(j.fp, j.fl, scores[i], true)
		} else {
			v.cache.resolve(j.fp, j.fl, Score{}, false)
		}
	}
}

func (v *Validator) callOnce(ctx context.Context, batch []job) ([]Score, error) {
	cands := make([]Candidate, len(batch))
	for i, j := range batch {
		cands[i] = j.cand
	}
	return v.provider.ScoreBatch(ctx, cands)
}

func apply(s *types.Secret, score Score) {
	s.AIScored = true
	s.AIConf = score.Confidence
	s.AIReason = score.Reasoning
}
