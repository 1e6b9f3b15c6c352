package sensit

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sensit/sensit/internal/audit"
	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/crawler"
	"github.com/sensit/sensit/internal/liveapi"
	"github.com/sensit/sensit/internal/report"
	"github.com/sensit/sensit/internal/scanner"
	"github.com/sensit/sensit/internal/signatures"
	"github.com/sensit/sensit/internal/types"
	"github.com/sensit/sensit/internal/walker"
	"github.com/spf13/cobra"
)

var (
	flagPath       string
	flagURL        string
	flagInclude    string
	flagExclude    string
	flagMaxBytes   int64
	flagSignatures string
	flagAI         bool
	flagLive       bool
	flagProvider   string
	flagModel      string
	flagDepth      int
	flagMaxPages   int
	flagNoAudit    bool
	flagFailOn     string
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a directory or URL for secrets",
		RunE:  runScan,
	}
	rootCmd.AddCommand(cmd)

	cmd.Flags().StringVarP(&flagPath, "path", "p", ".", "path to scan")
	cmd.Flags().StringVarP(&flagURL, "url", "u", "", "crawl and scan a website instead of a path")
	cmd.Flags().StringVar(&flagInclude, "include", "", "comma-separated include globs")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "comma-separated exclude globs")
	cmd.Flags().Int64Var(&flagMaxBytes, "max-bytes", 0, "skip files larger than this (0 = config default)")
	cmd.Flags().StringVar(&flagSignatures, "signatures", "", "custom signature corpus (YAML)")
	cmd.Flags().BoolVar(&flagAI, "ai", false, "enable AI validation")
	cmd.Flags().BoolVar(&flagLive, "live", false, "enable live API verification")
	cmd.Flags().StringVar(&flagProvider, "provider", "", "AI provider: openai|gemini|ollama")
	cmd.Flags().StringVar(&flagModel, "model", "", "AI model name")
	cmd.Flags().IntVar(&flagDepth, "depth", 0, "crawl depth (0 = config default)")
	cmd.Flags().IntVar(&flagMaxPages, "max-pages", 0, "crawl page budget (0 = config default)")
	cmd.Flags().BoolVar(&flagNoAudit, "no-audit", false, "skip writing the scan history record")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit non-zero when a secret at or above this severity is found: low|medium|high|critical")
}

func runScan(_ *cobra.Command, _ []string) error {
	root, _ := filepath.Abs(flagPath)

	cfg, err := resolveConfig(root)
	if err != nil {
		return err
	}

	corpus, err := loadCorpus(cfg)
	if err != nil {
		return err
	}

	sc, err := scanner.New(cfg, corpus)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src    scanner.UnitSource
		target string
		cache  *walker.Cache
	)
	if flagURL != "" {
		target = flagURL
		src = crawler.Source(flagURL, cfg.Crawl, nil)
	} else {
		target = root
		if !cfg.NoCache {
			cache = walker.LoadCache(root)
		}
		src = walker.Source(walker.Options{
			Root:            root,
			Include:         cfg.Include,
			Exclude:         cfg.Exclude,
			MaxBytes:        cfg.MaxBytes,
			DefaultExcludes: flagDefaultExcludes,
			Cache:           cache,
		})
	}

	res, err := sc.Scan(ctx, target, src)
	if err != nil {
		return fmt.Errorf("scan error: %w", err)
	}

	// An interrupted run must not mark unvisited files as clean.
	if cache != nil && !res.Incomplete {
		if err := cache.Save(); err != nil {
			fmt.Fprintln(os.Stderr, "warning: could not save scan cache:", err)
		}
	}
	if !flagNoAudit && flagURL == "" {
		if err := audit.NewLog(root).Record(audit.NewRecord(res)); err != nil {
			fmt.Fprintln(os.Stderr, "warning: could not write audit record:", err)
		}
	}

	if flagJSON {
		if err := report.WriteJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		report.PrintTable(os.Stdout, res, report.PrintOptions{
			NoColor:  flagNoColor || cfg.NoColor,
			Bordered: flagTable,
			Verbose:  flagVerbose,
		})
	}

	if flagFailOn != "" {
		if n := countAtOrAbove(res, flagFailOn); n > 0 {
			return fmt.Errorf("%d secret(s) at or above %s severity", n, flagFailOn)
		}
	}
	return nil
}

// resolveConfig layers defaults, global file, local file, environment,
// and finally CLI flags.
func resolveConfig(root string) (config.Config, error) {
	cfg := config.Default()
	if fc, err := config.LoadGlobal(); err == nil {
		if err := fc.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("global config: %w", err)
		}
	}
	if fc, err := config.LoadLocal(root); err == nil {
		if err := fc.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("local config: %w", err)
		}
	}
	config.ApplyEnv(&cfg)

	if flagInclude != "" {
		cfg.Include = flagInclude
	}
	if flagExclude != "" {
		cfg.Exclude = flagExclude
	}
	if flagMaxBytes > 0 {
		cfg.MaxBytes = flagMaxBytes
	}
	if flagThreads > 0 {
		cfg.Threads = flagThreads
	}
	if flagSignatures != "" {
		cfg.SignaturesPath = flagSignatures
	}
	if flagAI {
		cfg.EnableAI = true
	}
	if flagLive {
		cfg.EnableLive = true
	}
	if flagProvider != "" {
		cfg.AI.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.AI.Model = flagModel
	}
	if flagDepth > 0 {
		cfg.Crawl.MaxDepth = flagDepth
	}
	if flagMaxPages > 0 {
		cfg.Crawl.MaxPages = flagMaxPages
	}
	if flagNoCache {
		cfg.NoCache = true
	}
	return cfg, nil
}

func loadCorpus(cfg config.Config) (*signatures.Corpus, error) {
	if cfg.SignaturesPath != "" {
		return signatures.LoadFile(cfg.SignaturesPath, liveapi.Families())
	}
	return signatures.LoadDefault(liveapi.Families())
}

var severityRank = map[string]int{
	"low": 1, "medium": 2, "high": 3, "critical": 4,
}

func countAtOrAbove(res types.ScanResult, threshold string) int {
	floor, ok := severityRank[threshold]
	if !ok {
		return 0
	}
	rank := map[types.Severity]int{
		types.SevLow: 1, types.SevMedium: 2, types.SevHigh: 3, types.SevCritical: 4,
	}
	n := 0
	for _, s := range res.Secrets {
		if rank[s.Severity] >= floor {
			n++
		}
	}
	return n
}
