// Package scanner sequences the detection pipeline: extraction over each
// input unit, optional AI scoring, optional live verification, and a
// single final classification pass.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sensit/sensit/internal/aival"
	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/extract"
	"github.com/sensit/sensit/internal/liveapi"
	"github.com/sensit/sensit/internal/signatures"
	"github.com/sensit/sensit/internal/types"
	"golang.org/x/sync/errgroup"
)

// Unit is one independently scanned piece of input: a file, a fetched
// page, or anything else the acquisition layer produces.
type Unit struct {
	Source string
	Text   string
}

// UnitSource streams units into the scanner. emit must be called from a
// single goroutine; emitting stops early when ctx is cancelled. Per-unit
// problems (an unreadable file) go through warn and must not abort the
// stream.
type UnitSource func(ctx context.Context, emit func(Unit), warn func(types.Warning)) error

// Units wraps an already materialized set of units as a UnitSource.
func Units(us ...Unit) UnitSource {
	return func(ctx context.Context, emit func(Unit), _ func(types.Warning)) error {
		for _, u := range us {
			if ctx.Err() != nil {
				return nil
			}
			emit(u)
		}
		return nil
	}
}

// Scanner owns the validators for one run. The AI response cache lives
// exactly as long as the Scanner.
type Scanner struct {
	cfg       config.Config
	corpus    *signatures.Corpus
	extractor *extract.Extractor
	ai        *aival.Validator
	live      *liveapi.Dispatcher
}

// New wires a Scanner from resolved configuration. Validators are only
// constructed when their stage is enabled; a disabled stage cannot issue
// a single network call.
func New(cfg config.Config, corpus *signatures.Corpus) (*Scanner, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	ex := extract.New(corpus)
	ex.ContextLines = cfg.ContextLines
	ex.Matcher.Budget = cfg.RegexBudget

	s := &Scanner{cfg: cfg, corpus: corpus, extractor: ex}
	if cfg.EnableAI {
		ai, err := aival.New(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("ai validation: %w", err)
		}
		s.ai = ai
	}
	if cfg.EnableLive {
		s.live = liveapi.NewDispatcher(cfg.Live)
	}
	return s, nil
}

// Scan drains src, runs the enabled validation stages, and returns the
// final classified result set. A failing unit or backend degrades to a
// warning; cancellation returns what completed, marked incomplete.
func (s *Scanner) Scan(ctx context.Context, target string, src UnitSource) (types.ScanResult, error) {
	started := time.Now()
	res := types.ScanResult{
		ScanID: uuid.NewString(),
		Target: target,
	}

	var (
		mu    sync.Mutex
		warns []types.Warning
	)
	warn := func(w types.Warning) {
		mu.Lock()
		warns = append(warns, w)
		mu.Unlock()
	}

	secrets, units, err := s.extractAll(ctx, src, warn)
	if err != nil {
		return res, err
	}
	res.UnitsScanned = units

	if s.ai != nil && len(secrets) > 0 && ctx.Err() == nil {
		slog.Debug("ai validation", "candidates", len(secrets))
		var aiWarns []types.Warning
		secrets, aiWarns = s.ai.Score(ctx, secrets)
		for _, w := range aiWarns {
			warn(w)
		}
	}

	if s.live != nil && len(secrets) > 0 && ctx.Err() == nil {
		s.verifyLive(ctx, secrets, warn)
	}

	for i := range secrets {
		finalize(&secrets[i], s.cfg.LikelyThreshold, s.cfg.PossibleThreshold)
	}

	res.Secrets = secrets
	res.Warnings = warns
	res.Incomplete = ctx.Err() != nil
	res.Duration = time.Since(started)
	res.Count()
	return res, nil
}

// extractAll runs extraction across units with bounded parallelism and
// reassembles candidates in unit arrival order so output is stable.
func (s *Scanner) extractAll(ctx context.Context, src UnitSource, warn func(types.Warning)) ([]types.Secret, int, error) {
	var (
		mu      sync.Mutex
		byUnit  = map[int][]types.Secret{}
		scanned int
	)

	var g errgroup.Group
	threads := s.cfg.Threads
	if threads <= 0 {
		threads = 4
	}
	g.SetLimit(threads)

	next := 0
	emit := func(u Unit) {
		if ctx.Err() != nil {
			return
		}
		idx := next
		next++
		g.Go(func() error {
			found, ws := s.extractor.Extract(u.Text, u.Source)
			mu.Lock()
			byUnit[idx] = found
			scanned++
			mu.Unlock()
			for _, w := range ws {
				warn(w)
			}
			return nil
		})
	}

	if err := src(ctx, emit, warn); err != nil {
		return nil, 0, err
	}
	_ = g.Wait()

	order := make([]int, 0, len(byUnit))
	for idx := range byUnit {
		order = append(order, idx)
	}
	sort.Ints(order)
	var out []types.Secret
	for _, idx := range order {
		out = append(out, byUnit[idx]...)
	}
	return out, scanned, nil
}

// verifyLive dispatches each secret whose signature names a live
// verifier, under the dispatcher's concurrency cap. Results are written
// back by index; indeterminate outcomes leave the tri-state at unknown
// and record a warning.
func (s *Scanner) verifyLive(ctx context.Context, secrets []types.Secret, warn func(types.Warning)) {
	pairs := liveapi.NewPairIndex(secrets)

	var g errgroup.Group
	g.SetLimit(s.live.Concurrency())
	for i := range secrets {
		i := i
		sig, ok := s.corpus.Get(secrets[i].Type)
		if !ok || sig.Validation == signatures.ValidationNone || sig.Validation == signatures.ValidationAIOnly {
			continue
		}
		if ctx.Err() != nil {
			warn(types.Warning{Stage: "live", Source: secrets[i].Location, Msg: "scan cancelled before verification"})
			continue
		}
		g.Go(func() error {
			out := s.live.Verify(ctx, secrets[i], sig.Validation, pairs)
			secrets[i].APIValid = out.Validity
			secrets[i].APIDetails = out.Details
			if out.Validity == types.ValidityUnknown {
				reason := out.Details["error"]
				warn(types.Warning{
					Stage:  "live",
					Source: secrets[i].Location,
					Msg:    fmt.Sprintf("%s verification indeterminate: %s", secrets[i].Type, reason),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

// finalize derives status and any severity escalation in one place,
// after every stage that could contribute evidence has run.
func finalize(s *types.Secret, likely, possible float64) {
	if s.APIValid == types.ValidityActive {
		s.Status = types.StatusConfirmed
		// Only signatures already rated HIGH or CRITICAL escalate; a
		// confirmed MEDIUM stays MEDIUM.
		if s.Severity == types.SevHigh || s.Severity == types.SevCritical {
			s.Severity = types.SevCritical
		}
		return
	}
	if !s.AIScored {
		s.Status = types.StatusUnverified
		return
	}
	switch {
	case s.AIConf >= likely:
		s.Status = types.StatusLikely
	case s.AIConf >= possible:
		s.Status = types.StatusPossible
	default:
		s.Status = types.StatusUnverified
	}
}
