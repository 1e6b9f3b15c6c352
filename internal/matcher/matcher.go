package matcher

import (
	"fmt"
	"time"

	"github.com/sensit/sensit/internal/signatures"
	"github.com/sensit/sensit/internal/types"
)

// RawMatch is one occurrence of a signature in the input text, before
// entropy filtering. Value is the captured credential: the last matching
// capture group when the pattern declares groups (context-anchored rules
// capture the value separately from the keyword), otherwise the whole
// match. Offset is the byte offset of Value within the input.
type RawMatch struct {
	Signature string
	Value     string
	Offset    int
}

// DefaultBudget bounds regex evaluation per signature per input unit.
const DefaultBudget = 2 * time.Second

// Matcher evaluates a signature corpus over input text.
type Matcher struct {
	Corpus *signatures.Corpus
	Budget time.Duration // per-signature wall-clock budget, DefaultBudget if zero
}

// New returns a Matcher over the given corpus.
func New(c *signatures.Corpus) *Matcher {
	return &Matcher{Corpus: c, Budget: DefaultBudget}
}

// Scan returns all non-overlapping matches in signature declaration order,
// then by ascending offset within a signature. A signature that exhausts
// its time budget contributes no matches for this input and records a
// warning instead; the scan of the remaining signatures continues.
func (m *Matcher) Scan(text, source string) ([]RawMatch, []types.Warning) {
	budget := m.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	var out []RawMatch
	var warns []types.Warning
	for _, sig := range m.Corpus.All() {
		matches, ok := scanOne(sig, text, budget)
		if !ok {
			warns = append(warns, types.Warning{
				Stage:  "match",
				Source: source,
				Msg:    fmt.Sprintf("signature %s exceeded %s evaluation budget, skipped", sig.Name, budget),
			})
			continue
		}
		out = append(out, matches...)
	}
	return out, warns
}

func scanOne(sig signatures.Signature, text string, budget time.Duration) ([]RawMatch, bool) {
	deadline := time.Now().Add(budget)
	var out []RawMatch
	pos := 0
	for pos <= len(text) {
		loc := sig.Pattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		value, off := captured(text[pos:], loc)
		out = append(out, RawMatch{
			Signature: sig.Name,
			Value:     value,
			Offset:    pos + off,
		})
		// Non-overlapping: resume after the full match. Guard against
		// empty matches to guarantee progress.
		next := loc[1]
		if next == loc[0] {
			next++
		}
		pos += next
		if time.Now().After(deadline) {
			return nil, false
		}
	}
	return out, true
}

// captured picks the last non-empty capture group, falling back to the
// whole match. loc is a FindStringSubmatchIndex result relative to s.
func captured(s string, loc []int) (string, int) {
	for i := len(loc) - 2; i >= 2; i -= 2 {
		if loc[i] >= 0 && loc[i+1] > loc[i] {
			return s[loc[i]:loc[i+1]], loc[i]
		}
	}
	return s[loc[0]:loc[1]], loc[0]
}
