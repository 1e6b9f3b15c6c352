package aival

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/sensit/sensit/internal/types"
)

// Fingerprint derives the deterministic cache key for a candidate from its
// type, normalized value, and a hash of its context. Two occurrences of
// the same secret in similar surroundings score once per run.
func Fingerprint(s types.Secret) string {
	h := xxhash.New()
	h.WriteString(s.Type)
	h.Write([]byte{0})
	h.WriteString(strings.TrimSpace(s.Value))
	h.Write([]byte{0})
	h.WriteString(strconv.FormatUint(xxhash.Sum64String(s.Context), 16))
	return strconv.FormatUint(h.Sum64(), 16)
}

// inflight is the shared handle concurrent lookups of one fingerprint
// attach to. The first caller owns the outbound request; everyone else
// waits on done and reads the resolved score.
type inflight struct {
	done  chan struct{}
	score Score
	ok    bool
}

// scoreCache holds resolved scores for the duration of one scan run and
// deduplicates requests still in flight. Safe for concurrent use.
type scoreCache struct {
	mu      sync.Mutex
	store   *ttlcache.Cache[string, Score]
	pending map[string]*inflight
}

func newScoreCache(ttl time.Duration) *scoreCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &scoreCache{
		store:   ttlcache.New[string, Score](ttlcache.WithTTL[string, Score](ttl)),
		pending: map[string]*inflight{},
	}
}

// lookup returns either a completed score, an in-flight handle to wait on,
// or registers the caller as the owner of a new in-flight entry.
// Exactly one of the three outcomes holds.
func (c *scoreCache) lookup(fp string) (score Score, waiter *inflight, owned *inflight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item := c.store.Get(fp); item != nil {
		return item.Value(), nil, nil
	}
	if fl, ok := c.pending[fp]; ok {
		return Score{}, fl, nil
	}
	fl := &inflight{done: make(chan struct{})}
	c.pending[fp] = fl
	return Score{}, nil, fl
}

// resolve completes an in-flight entry. Successful scores go into the
// permanent store; failures only release the waiters so a later run can
// try the fingerprint again.
func (c *scoreCache) resolve(fp string, fl *inflight, score Score, ok bool) {
	c.mu.Lock()
	fl.score = score
	fl.ok = ok
	if ok {
		c.store.Set(fp, score, ttlcache.DefaultTTL)
	}
	delete(c.pending, fp)
	c.mu.Unlock()
	close(fl.done)
}
