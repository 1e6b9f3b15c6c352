package extract

import (
	"strconv"
	"strings"

	"github.com/sensit/sensit/internal/entropy"
	"github.com/sensit/sensit/internal/matcher"
	"github.com/sensit/sensit/internal/signatures"
	"github.com/sensit/sensit/internal/types"
)

// DefaultContextLines is the window captured around each match.
const DefaultContextLines = 5

// Extractor turns raw pattern matches into Secret candidates, applying
// the per-signature entropy gate and capturing surrounding context.
type Extractor struct {
	Corpus       *signatures.Corpus
	Matcher      *matcher.Matcher
	ContextLines int
}

// New builds an Extractor with its own matcher over the corpus.
func New(c *signatures.Corpus) *Extractor {
	return &Extractor{Corpus: c, Matcher: matcher.New(c), ContextLines: DefaultContextLines}
}

// Extract scans one input unit and returns surviving candidates in a
// deterministic order: signature declaration order, then ascending offset.
// Matches below their signature's entropy floor are dropped. Duplicate
// (type, value, line) triples collapse to the first occurrence.
func (e *Extractor) Extract(text, source string) ([]types.Secret, []types.Warning) {
	raw, warns := e.Matcher.Scan(text, source)
	if len(raw) == 0 {
		return nil, warns
	}

	lines := strings.Split(text, "\n")
	window := e.ContextLines
	if window <= 0 {
		window = DefaultContextLines
	}

	seen := map[string]bool{}
	var out []types.Secret
	for _, m := range raw {
		sig, ok := e.Corpus.Get(m.Signature)
		if !ok {
			continue
		}
		H := entropy.Shannon(m.Value)
		if sig.HasEntropy && H < sig.EntropyMin {
			continue
		}
		line := lineAt(text, m.Offset)
		key := m.Signature + "|" + m.Value + "|" + strconv.Itoa(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, types.Secret{
			Type:     m.Signature,
			Value:    m.Value,
			Location: source,
			Line:     line,
			Offset:   m.Offset,
			Context:  contextWindow(lines, line, window),
			Entropy:  H,
			Severity: sig.Severity,
			Status:   types.StatusUnverified,
			APIValid: types.ValidityUnknown,
		})
	}
	return out, warns
}

// lineAt returns the 1-based line number containing byte offset off.
func lineAt(text string, off int) int {
	if off > len(text) {
		off = len(text)
	}
	return strings.Count(text[:off], "\n") + 1
}

// contextWindow slices a fixed window of lines around the 1-based line.
func contextWindow(lines []string, line, window int) string {
	start := line - window - 1
	if start < 0 {
		start = 0
	}
	end := line + window
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}
