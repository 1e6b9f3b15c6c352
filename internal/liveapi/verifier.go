// Package liveapi confirms candidate secrets against their issuing
// services with minimal, side-effect-limited authenticated calls.
//
// Every verifier resolves to a tri-state outcome: active, revoked, or
// indeterminate. Transport failures and timeouts are always
// indeterminate, since a network error is never proof that a credential
// is dead. The whole stage is opt-in; the orchestrator consults the
// configuration flag and never constructs a dispatcher when live
// verification is disabled.
package liveapi

import (
	"context"
	"net/http"
	"time"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/types"
	"golang.org/x/time/rate"
)

// Outcome is the result of one live verification attempt.
type Outcome struct {
	Validity types.Validity
	Details  map[string]string
}

// Indeterminate builds the outcome for a check that could not complete.
func Indeterminate(reason string) Outcome {
	return Outcome{Validity: types.ValidityUnknown, Details: map[string]string{"error": reason}}
}

// PairIndex lets verifiers that need a secondary credential (an AWS
// secret key for an access key, a Twilio auth token for an account SID)
// find it among the other candidates of the same scan run.
type PairIndex struct {
	bySignature map[string][]string
}

// NewPairIndex indexes candidate values by signature family.
func NewPairIndex(secrets []types.Secret) PairIndex {
	idx := PairIndex{bySignature: map[string][]string{}}
	for _, s := range secrets {
		idx.bySignature[s.Type] = append(idx.bySignature[s.Type], s.Value)
	}
	return idx
}

// First returns the first candidate of the given family, if any.
func (p PairIndex) First(signature string) (string, bool) {
	vals := p.bySignature[signature]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Verifier is the per-family contract: one secret in, a tri-state
// outcome back. Implementations are selected by the family name their
// signature's validation method carries.
type Verifier interface {
	Family() string
	Verify(ctx context.Context, secret types.Secret, pairs PairIndex) Outcome
}

// Dispatcher routes secrets to their family verifier under a shared
// timeout, concurrency cap, and request-rate ceiling.
type Dispatcher struct {
	verifiers map[string]Verifier
	limiter   *rate.Limiter
	cfg       config.LiveConfig
}

// NewDispatcher builds the default verifier set.
func NewDispatcher(cfg config.LiveConfig) *Dispatcher {
	client := &http.Client{Timeout: cfg.Timeout}
	d := &Dispatcher{
		verifiers: map[string]Verifier{},
		cfg:       cfg,
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	d.limiter = rate.NewLimiter(limit, 1)
	for _, v := range []Verifier{
		newGitHub(client),
		newSlackToken(client),
		newSlackWebhook(client),
		newStripe(client),
		newTwilio(client),
		newAWS(cfg.Timeout),
	} {
		d.verifiers[v.Family()] = v
	}
	return d
}

// Register replaces or adds a verifier; tests use it to stub transports.
func (d *Dispatcher) Register(v Verifier) { d.verifiers[v.Family()] = v }

// Families returns the verifier family names for corpus validation.
func Families() map[string]bool {
	return map[string]bool{
		"github":        true,
		"slack_token":   true,
		"slack_webhook": true,
		"stripe":        true,
		"twilio":        true,
		"aws":           true,
	}
}

// Concurrency reports the configured cap for callers scheduling verifies.
func (d *Dispatcher) Concurrency() int {
	if d.cfg.Concurrency > 0 {
		return d.cfg.Concurrency
	}
	return 4
}

// Verify runs the family verifier for the secret, honoring the rate
// ceiling. Unknown families and cancellation resolve to indeterminate.
func (d *Dispatcher) Verify(ctx context.Context, secret types.Secret, family string, pairs PairIndex) Outcome {
	v, ok := d.verifiers[family]
	if !ok {
		return Indeterminate("no live verifier for family " + family)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return Indeterminate("cancelled before verification")
	}
	return v.Verify(ctx, secret, pairs)
}

// Timeout exposes the per-call timeout for verifiers that manage their
// own transport (the AWS SDK client).
func (d *Dispatcher) Timeout() time.Duration { return d.cfg.Timeout }
