package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifiers accepted for ai.provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config is the fully resolved runtime configuration with defaults applied.
type Config struct {
	SignaturesPath string // empty means embedded corpus

	Include      string
	Exclude      string
	MaxBytes     int64
	Threads      int
	ContextLines int
	RegexBudget  time.Duration
	NoCache      bool
	NoColor      bool

	EnableAI   bool
	EnableLive bool

	LikelyThreshold   float64
	PossibleThreshold float64

	AI    AIConfig
	Live  LiveConfig
	Crawl CrawlConfig
}

// AIConfig selects and tunes the AI validation backend.
type AIConfig struct {
	Provider    string
	Model       string
	Endpoint    string // base URL; defaults per provider
	APIKey      string
	BatchSize   int
	MaxTokens   int
	Temperature float64
	Concurrency int     // max outstanding batch calls
	RPS         float64 // request rate ceiling
	Timeout     time.Duration
}

// LiveConfig tunes the live verification stage.
type LiveConfig struct {
	Timeout     time.Duration
	Concurrency int
	RPS         float64
}

// CrawlConfig bounds URL acquisition.
type CrawlConfig struct {
	MaxDepth  int
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
}

// FileConfig is the on-disk YAML shape. All fields are pointers so that an
// absent key leaves the default untouched when merging.
type FileConfig struct {
	Signatures   *string `yaml:"signatures"`
	Include      *string `yaml:"include"`
	Exclude      *string `yaml:"exclude"`
	MaxBytes     *int64  `yaml:"max_bytes"`
	Threads      *int    `yaml:"threads"`
	ContextLines *int    `yaml:"context_lines"`
	RegexBudget  *string `yaml:"regex_budget"`
	NoCache      *bool   `yaml:"no_cache"`
	NoColor      *bool   `yaml:"no_color"`

	Validation *struct {
		EnableAI          *bool    `yaml:"enable_ai_validation"`
		EnableAPI         *bool    `yaml:"enable_api_validation"`
		LikelyThreshold   *float64 `yaml:"likely_threshold"`
		PossibleThreshold *float64 `yaml:"possible_threshold"`
		APITimeout        *string  `yaml:"api_timeout"`
		APIConcurrency    *int     `yaml:"api_concurrency"`
		APIRPS            *float64 `yaml:"api_rate_limit"`
	} `yaml:"validation"`

	AI *struct {
		Provider    *string  `yaml:"provider"`
		Model       *string  `yaml:"model"`
		Endpoint    *string  `yaml:"endpoint"`
		APIKey      *string  `yaml:"api_key"`
		BatchSize   *int     `yaml:"batch_size"`
		MaxTokens   *int     `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"`
		Concurrency *int     `yaml:"concurrency"`
		RPS         *float64 `yaml:"rate_limit"`
		Timeout     *string  `yaml:"timeout"`
	} `yaml:"ai"`

	Crawl *struct {
		MaxDepth  *int    `yaml:"max_depth"`
		MaxPages  *int    `yaml:"max_pages"`
		Timeout   *string `yaml:"timeout"`
		UserAgent *string `yaml:"user_agent"`
	} `yaml:"crawl"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		MaxBytes:          1 << 20,
		ContextLines:      5,
		RegexBudget:       2 * time.Second,
		EnableAI:          false,
		EnableLive:        false,
		LikelyThreshold:   85,
		PossibleThreshold: 60,
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			BatchSize:   10,
			MaxTokens:   500,
			Temperature: 0.3,
			Concurrency: 4,
			RPS:         5,
			Timeout:     60 * time.Second,
		},
		Live: LiveConfig{
			Timeout:     10 * time.Second,
			Concurrency: 4,
			RPS:         5,
		},
		Crawl: CrawlConfig{
			MaxDepth:  2,
			MaxPages:  50,
			Timeout:   10 * time.Second,
			UserAgent: "sensit/1.0 security scanner",
		},
	}
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// LoadLocal searches the given root for a repo-local config file.
func LoadLocal(root string) (FileConfig, error) {
	for _, name := range []string{".sensit.yml", ".sensit.yaml", "sensit.yml", "sensit.yaml"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return FileConfig{}, errors.New("no local config")
}

// LoadGlobal loads the user-level config from XDG config or ~/.config.
func LoadGlobal() (FileConfig, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return FileConfig{}, errors.New("no config dir")
	}
	p := filepath.Join(base, "sensit", "config.yml")
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return FileConfig{}, errors.New("no global config")
}

// Apply overlays fc onto cfg, leaving defaults in place for absent keys.
// Duration strings that fail to parse are reported as errors: a bad config
// aborts the run rather than silently degrading.
func (fc FileConfig) Apply(cfg *Config) error {
	setStr(&cfg.SignaturesPath, fc.Signatures)
	setStr(&cfg.Include, fc.Include)
	setStr(&cfg.Exclude, fc.Exclude)
	setI64(&cfg.MaxBytes, fc.MaxBytes)
	setInt(&cfg.Threads, fc.Threads)
	setInt(&cfg.ContextLines, fc.ContextLines)
	setBool(&cfg.NoCache, fc.NoCache)
	setBool(&cfg.NoColor, fc.NoColor)
	if err := setDur(&cfg.RegexBudget, fc.RegexBudget, "regex_budget"); err != nil {
		return err
	}

	if v := fc.Validation; v != nil {
		setBool(&cfg.EnableAI, v.EnableAI)
		setBool(&cfg.EnableLive, v.EnableAPI)
		setF64(&cfg.LikelyThreshold, v.LikelyThreshold)
		setF64(&cfg.PossibleThreshold, v.PossibleThreshold)
		setInt(&cfg.Live.Concurrency, v.APIConcurrency)
		setF64(&cfg.Live.RPS, v.APIRPS)
		if err := setDur(&cfg.Live.Timeout, v.APITimeout, "validation.api_timeout"); err != nil {
			return err
		}
	}
	if a := fc.AI; a != nil {
		setStr(&cfg.AI.Provider, a.Provider)
		setStr(&cfg.AI.Model, a.Model)
		setStr(&cfg.AI.Endpoint, a.Endpoint)
		setStr(&cfg.AI.APIKey, a.APIKey)
		setInt(&cfg.AI.BatchSize, a.BatchSize)
		setInt(&cfg.AI.MaxTokens, a.MaxTokens)
		setF64(&cfg.AI.Temperature, a.Temperature)
		setInt(&cfg.AI.Concurrency, a.Concurrency)
		setF64(&cfg.AI.RPS, a.RPS)
		if err := setDur(&cfg.AI.Timeout, a.Timeout, "ai.timeout"); err != nil {
			return err
		}
	}
	if c := fc.Crawl; c != nil {
		setInt(&cfg.Crawl.MaxDepth, c.MaxDepth)
		setInt(&cfg.Crawl.MaxPages, c.MaxPages)
		setStr(&cfg.Crawl.UserAgent, c.UserAgent)
		if err := setDur(&cfg.Crawl.Timeout, c.Timeout, "crawl.timeout"); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays credential material from the environment. Environment
// values win over file values so secrets can stay out of config files.
func ApplyEnv(cfg *Config) {
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		if k := os.Getenv("OPENAI_API_KEY"); k != "" {
			cfg.AI.APIKey = k
		}
	case ProviderGemini:
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			cfg.AI.APIKey = k
		}
	case ProviderOllama:
		if u := os.Getenv("OLLAMA_BASE_URL"); u != "" {
			cfg.AI.Endpoint = u
		}
	}
}

// Validate rejects configurations that must abort the run up front.
func Validate(cfg Config) error {
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
	if cfg.AI.BatchSize <= 0 {
		return fmt.Errorf("ai batch_size must be positive, got %d", cfg.AI.BatchSize)
	}
	if cfg.LikelyThreshold < cfg.PossibleThreshold {
		return fmt.Errorf("likely_threshold (%v) below possible_threshold (%v)", cfg.LikelyThreshold, cfg.PossibleThreshold)
	}
	return nil
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setI64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setF64(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDur(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("config %s: %w", key, err)
	}
	*dst = d
	return nil
}
