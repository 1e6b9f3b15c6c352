package signatures

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/sensit/sensit/internal/types"
	"gopkg.in/yaml.v3"
)

// Validation method names that do not name a live verifier.
const (
	ValidationNone   = "none"
	ValidationAIOnly = "ai_only"
)

//go:embed patterns.yml
var defaultCorpus []byte

// Signature is one compiled detection rule loaded from the corpus.
type Signature struct {
	Name        string
	Pattern     *regexp.Regexp
	EntropyMin  float64 // 0 means no threshold
	HasEntropy  bool
	Description string
	Severity    types.Severity
	Validation  string // ValidationNone, ValidationAIOnly, or a live verifier family
}

// entry is the on-disk YAML shape of a corpus record.
type entry struct {
	Pattern     string   `yaml:"pattern"`
	EntropyMin  *float64 `yaml:"entropy_min"`
	Description string   `yaml:"description"`
	Severity    string   `yaml:"severity"`
	Validation  string   `yaml:"validation"`
}

// Corpus holds the loaded signatures in declaration order.
type Corpus struct {
	sigs   []Signature
	byName map[string]*Signature
}

// Load parses a signature corpus preserving declaration order and fails on
// the first malformed entry: a bad regex, an unknown severity, a duplicate
// name, or a validation method that is neither built in nor present in
// verifiers. An invalid corpus must never start a scan.
func Load(data []byte, verifiers map[string]bool) (*Corpus, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty corpus")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("corpus root must be a mapping of signature names")
	}

	c := &Corpus{byName: map[string]*Signature{}}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var e entry
		if err := root.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("signature %q: %w", name, err)
		}
		sig, err := compile(name, e, verifiers)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("signature %q: duplicate name", name)
		}
		c.sigs = append(c.sigs, sig)
		c.byName[name] = &c.sigs[len(c.sigs)-1]
	}
	if len(c.sigs) == 0 {
		return nil, fmt.Errorf("corpus contains no signatures")
	}
	return c, nil
}

func compile(name string, e entry, verifiers map[string]bool) (Signature, error) {
	if e.Pattern == "" {
		return Signature{}, fmt.Errorf("signature %q: missing pattern", name)
	}
	re, err := regexp.Compile(e.Pattern)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: invalid pattern: %w", name, err)
	}
	sev, err := parseSeverity(e.Severity)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", name, err)
	}
	val := e.Validation
	if val == "" {
		val = ValidationNone
	}
	if val != ValidationNone && val != ValidationAIOnly && !verifiers[val] {
		return Signature{}, fmt.Errorf("signature %q: unknown validation method %q", name, val)
	}
	sig := Signature{
		Name:        name,
		Pattern:     re,
		Description: e.Description,
		Severity:    sev,
		Validation:  val,
	}
	if e.EntropyMin != nil {
		sig.EntropyMin = *e.EntropyMin
		sig.HasEntropy = true
	}
	return sig, nil
}

func parseSeverity(s string) (types.Severity, error) {
	switch types.Severity(s) {
	case types.SevCritical, types.SevHigh, types.SevMedium, types.SevLow:
		return types.Severity(s), nil
	case "":
		return types.SevMedium, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// LoadDefault loads the embedded corpus.
func LoadDefault(verifiers map[string]bool) (*Corpus, error) {
	return Load(defaultCorpus, verifiers)
}

// LoadFile loads a corpus from an external YAML file.
func LoadFile(path string, verifiers map[string]bool) (*Corpus, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return Load(b, verifiers)
}

// All returns the signatures in declaration order.
func (c *Corpus) All() []Signature { return c.sigs }

// Get looks a signature up by family name.
func (c *Corpus) Get(name string) (Signature, bool) {
	s, ok := c.byName[name]
	if !ok {
		return Signature{}, false
	}
	return *s, true
}

// Len reports the number of loaded signatures.
func (c *Corpus) Len() int { return len(c.sigs) }
