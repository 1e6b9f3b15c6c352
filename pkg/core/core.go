package core

import (
	"context"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/liveapi"
	"github.com/sensit/sensit/internal/scanner"
	"github.com/sensit/sensit/internal/signatures"
	"github.com/sensit/sensit/internal/types"
	"github.com/sensit/sensit/internal/walker"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type Config = config.Config
type Secret = types.Secret
type ScanResult = types.ScanResult
type Warning = types.Warning

// DefaultConfig returns the baseline configuration with validation
// stages disabled.
func DefaultConfig() Config { return config.Default() }

// ScanPath is the stable entrypoint for other programs: scan a
// directory tree with the embedded signature corpus.
func ScanPath(ctx context.Context, cfg Config, root string) (ScanResult, error) {
	corpus, err := loadCorpus(cfg)
	if err != nil {
		return ScanResult{}, err
	}
	sc, err := scanner.New(cfg, corpus)
	if err != nil {
		return ScanResult{}, err
	}
	src := walker.Source(walker.Options{
		Root:            root,
		Include:         cfg.Include,
		Exclude:         cfg.Exclude,
		MaxBytes:        cfg.MaxBytes,
		DefaultExcludes: true,
	})
	return sc.Scan(ctx, root, src)
}

// ScanText scans in-memory content, one result per named unit.
func ScanText(ctx context.Context, cfg Config, source, text string) (ScanResult, error) {
	corpus, err := loadCorpus(cfg)
	if err != nil {
		return ScanResult{}, err
	}
	sc, err := scanner.New(cfg, corpus)
	if err != nil {
		return ScanResult{}, err
	}
	return sc.Scan(ctx, source, scanner.Units(scanner.Unit{Source: source, Text: text}))
}

// SignatureNames returns the detector names in the embedded corpus.
// Exposed for convenience to avoid importing internals directly.
func SignatureNames() []string {
	corpus, err := signatures.LoadDefault(liveapi.Families())
	if err != nil {
		return nil
	}
	names := make([]string, 0, corpus.Len())
	for _, sig := range corpus.All() {
		names = append(names, sig.Name)
	}
	return names
}

func loadCorpus(cfg Config) (*signatures.Corpus, error) {
	if cfg.SignaturesPath != "" {
		return signatures.LoadFile(cfg.SignaturesPath, liveapi.Families())
	}
	return signatures.LoadDefault(liveapi.Families())
}
