package aival

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts backend behavior per call.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	batches [][]Candidate
	script  func(call int, batch []Candidate) ([]Score, error)
	block   chan struct{} // if set, every call waits until closed
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ScoreBatch(ctx context.Context, batch []Candidate) ([]Score, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	cp := make([]Candidate, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.script(call, batch)
}

func scoreAll(conf float64) func(int, []Candidate) ([]Score, error) {
	return func(_ int, batch []Candidate) ([]Score, error) {
		out := make([]Score, len(batch))
		for i := range out {
			out[i] = Score{Scored: true, Confidence: conf, Reasoning: "r"}
		}
		return out, nil
	}
}

func mkSecrets(n int) []types.Secret {
	out := make([]types.Secret, n)
	for i := range out {
		out[i] = types.Secret{
			Type:     "github_token",
			Value:    fmt.Sprintf("ghp_value_%02d", i),
			Context:  fmt.Sprintf("ctx %d", i),
			Status:   types.StatusUnverified,
			APIValid: types.ValidityUnknown,
		}
	}
	return out
}

func testCfg(batch int) config.AIConfig {
	return config.AIConfig{Provider: "openai", BatchSize: batch, Concurrency: 4}
}

func TestScoreSplitsBatchesAndPreservesOrder(t *testing.T) {
	fp := &fakeProvider{script: func(_ int, batch []Candidate) ([]Score, error) {
		out := make([]Score, len(batch))
		for i, c := range batch {
			out[i] = Score{Scored: true, Confidence: 50, Reasoning: c.Value}
		}
		return out, nil
	}}
	v := NewWithProvider(fp, testCfg(10))

	in := mkSecrets(12)
	out, warns := v.Score(context.Background(), in)
	require.Empty(t, warns)
	require.Len(t, out, 12)
	assert.Equal(t, 2, fp.calls, "12 candidates at batchSize 10 should issue 2 calls")
	assert.Len(t, fp.batches[0], 10)
	assert.Len(t, fp.batches[1], 2)
	for i, s := range out {
		assert.Equal(t, in[i].Value, s.Value, "output order must match input order")
		assert.True(t, s.AIScored)
		assert.Equal(t, s.Value, s.AIReason, "score joined to wrong candidate")
	}
}

// cappedProvider simulates a backend that limits batch size, the way
// the ollama provider does.
type cappedProvider struct {
	fakeProvider
	cap int
}

func (c *cappedProvider) MaxBatch() int { return c.cap }

func TestScoreHonorsProviderBatchCap(t *testing.T) {
	cp := &cappedProvider{cap: 5}
	cp.script = scoreAll(50)
	v := NewWithProvider(cp, testCfg(10))

	_, warns := v.Score(context.Background(), mkSecrets(12))
	require.Empty(t, warns)
	assert.Equal(t, 3, cp.calls) // 5 + 5 + 2
	for _, b := range cp.batches {
		assert.LessOrEqual(t, len(b), 5)
	}
}

func TestScoreRateLimitRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	fp := &fakeProvider{script: func(call int, batch []Candidate) ([]Score, error) {
		calls.Add(1)
		if call == 1 {
			return nil, &RateLimitError{}
		}
		return scoreAll(70)(call, batch)
	}}
	v := NewWithProvider(fp, testCfg(10))
	v.backoff = time.Millisecond

	out, warns := v.Score(context.Background(), mkSecrets(3))
	require.Empty(t, warns)
	assert.Equal(t, int32(2), calls.Load())
	for _, s := range out {
		assert.True(t, s.AIScored)
		assert.Equal(t, 70.0, s.AIConf)
	}
}

func TestScoreDoubleRateLimitDegrades(t *testing.T) {
	fp := &fakeProvider{script: func(int, []Candidate) ([]Score, error) {
		return nil, &RateLimitError{}
	}}
	v := NewWithProvider(fp, testCfg(10))
	v.backoff = time.Millisecond

	out, warns := v.Score(context.Background(), mkSecrets(2))
	assert.Equal(t, 2, fp.calls, "exactly one retry")
	require.Len(t, warns, 1)
	for _, s := range out {
		assert.False(t, s.AIScored, "failed batch must come back unscored")
	}
}

func TestScoreNonRateLimitErrorDoesNotRetry(t *testing.T) {
	fp := &fakeProvider{script: func(int, []Candidate) ([]Score, error) {
		return nil, errors.New("boom")
	}}
	v := NewWithProvider(fp, testCfg(10))

	out, warns := v.Score(context.Background(), mkSecrets(2))
	assert.Equal(t, 1, fp.calls)
	require.Len(t, warns, 1)
	assert.False(t, out[0].AIScored)
}

func TestScoreCacheHitSkipsBackend(t *testing.T) {
	fp := &fakeProvider{script: scoreAll(80)}
	v := NewWithProvider(fp, testCfg(10))

	first, _ := v.Score(context.Background(), mkSecrets(2))
	require.Equal(t, 1, fp.calls)
	second, _ := v.Score(context.Background(), mkSecrets(2))
	assert.Equal(t, 1, fp.calls, "second run must be served from cache")
	assert.Equal(t, first, second)
}

func TestScoreDuplicateFingerprintSentOnce(t *testing.T) {
	fp := &fakeProvider{script: scoreAll(90)}
	v := NewWithProvider(fp, testCfg(10))

	s := mkSecrets(1)[0]
	out, _ := v.Score(context.Background(), []types.Secret{s, s, s})
	require.Equal(t, 1, fp.calls)
	require.Len(t, fp.batches[0], 1, "identical fingerprints must collapse to one outbound candidate")
	for _, got := range out {
		assert.True(t, got.AIScored)
		assert.Equal(t, 90.0, got.AIConf)
	}
}

func TestScoreConcurrentCallsDeduplicateInFlight(t *testing.T) {
	block := make(chan struct{})
	fp := &fakeProvider{block: block, script: scoreAll(65)}
	v := NewWithProvider(fp, testCfg(10))

	in := mkSecrets(1)
	done := make(chan []types.Secret, 2)
	for i := 0; i < 2; i++ {
		go func() {
			out, _ := v.Score(context.Background(), in)
			done <- out
		}()
	}
	// Give both goroutines time to reach lookup; the second must attach
	// to the first's in-flight handle instead of issuing its own call.
	time.Sleep(50 * time.Millisecond)
	close(block)
	a, b := <-done, <-done
	assert.Equal(t, 1, fp.calls, "in-flight fingerprint must not trigger a second request")
	assert.True(t, a[0].AIScored)
	assert.True(t, b[0].AIScored)
}

func TestScoreCancelledContextStopsNewBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fp := &fakeProvider{script: scoreAll(50)}
	v := NewWithProvider(fp, testCfg(10))

	out, warns := v.Score(ctx, mkSecrets(5))
	assert.Equal(t, 0, fp.calls, "no batches after cancellation")
	assert.NotEmpty(t, warns)
	for _, s := range out {
		assert.False(t, s.AIScored)
	}
}

func TestFingerprintStability(t *testing.T) {
	s := types.Secret{Type: "t", Value: " v ", Context: "c"}
	assert.Equal(t, Fingerprint(s), Fingerprint(s))
	assert.Equal(t, Fingerprint(s), Fingerprint(types.Secret{Type: "t", Value: "v", Context: "c"}),
		"value normalization must trim whitespace")
	assert.NotEqual(t, Fingerprint(s), Fingerprint(types.Secret{Type: "t2", Value: "v", Context: "c"}))
}
