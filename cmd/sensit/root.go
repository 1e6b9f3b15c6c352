package sensit

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagJSON            bool
	flagTable           bool
	flagNoColor         bool
	flagVerbose         bool
	flagThreads         int
	flagNoCache         bool
	flagDefaultExcludes bool

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the sensit CLI.
var rootCmd = &cobra.Command{
	Use:           "sensit",
	Short:         "Find and validate leaked secrets",
	Long:          "Sensit scans directories or websites for leaked credentials, then raises confidence with AI scoring and live API verification.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}
	},
}

// Execute runs the sensit CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().BoolVar(&flagTable, "table", false, "output in table format with borders")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging and per-finding detail")
	rootCmd.PersistentFlags().IntVar(&flagThreads, "threads", 0, "worker count (0 = default)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "disable incremental scan cache")
	rootCmd.PersistentFlags().BoolVar(&flagDefaultExcludes, "default-excludes", true, "apply built-in exclude list (node_modules, dist, images, etc.)")
}
