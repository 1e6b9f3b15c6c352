// Package report renders scan results for terminals and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sensit/sensit/internal/types"
)

// PrintOptions controls terminal rendering.
type PrintOptions struct {
	NoColor  bool
	Bordered bool // full table borders instead of aligned columns
	Verbose  bool // include AI reasoning and verifier details
}

var (
	critical = color.New(color.FgRed, color.Bold)
	high     = color.New(color.FgRed)
	medium   = color.New(color.FgYellow)
	low      = color.New(color.FgCyan)
	okGreen  = color.New(color.FgGreen)
)

// PrintTable writes the human-readable report: one row per secret with
// masked values, then a summary footer with counts, warnings, and the
// incomplete marker.
func PrintTable(w io.Writer, res types.ScanResult, opts PrintOptions) {
	if opts.NoColor {
		color.NoColor = true
	}
	secrets := append([]types.Secret(nil), res.Secrets...)
	sort.Slice(secrets, func(i, j int) bool {
		if secrets[i].Location == secrets[j].Location {
			return secrets[i].Line < secrets[j].Line
		}
		return secrets[i].Location < secrets[j].Location
	})

	if len(secrets) == 0 {
		fmt.Fprintln(w, okGreen.Sprint("No secrets found"))
	} else if opts.Bordered {
		printBordered(w, secrets, opts)
	} else {
		printColumns(w, secrets, opts)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Secrets: %d (critical: %d, high: %d, medium: %d, low: %d)\n",
		len(secrets),
		res.BySeverity[types.SevCritical],
		res.BySeverity[types.SevHigh],
		res.BySeverity[types.SevMedium],
		res.BySeverity[types.SevLow])
	fmt.Fprintf(w, "Status: confirmed %d, likely %d, possible %d, unverified %d\n",
		res.ByStatus[types.StatusConfirmed],
		res.ByStatus[types.StatusLikely],
		res.ByStatus[types.StatusPossible],
		res.ByStatus[types.StatusUnverified])
	fmt.Fprintf(w, "Units scanned: %d in %.2fs\n", res.UnitsScanned, res.Duration.Seconds())

	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(res.Warnings))
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", warn.Stage, warn.Source, warn.Msg)
		}
	}
	if res.Incomplete {
		fmt.Fprintln(w, medium.Sprint("\nScan interrupted: results are partial"))
	}
}

func printColumns(w io.Writer, secrets []types.Secret, opts PrintOptions) {
	maxType := 8
	for _, s := range secrets {
		if len(s.Type) > maxType {
			maxType = len(s.Type)
		}
	}
	for _, s := range secrets {
		fmt.Fprintf(w, "%-20s %-12s %-*s %s:%d  %s\n",
			colorSeverity(s.Severity), colorStatus(s.Status),
			maxType, s.Type, s.Location, s.Line, types.Mask(s.Value))
		if opts.Verbose && s.AIScored {
			fmt.Fprintf(w, "    ai: %.0f%% %s\n", s.AIConf, s.AIReason)
		}
		if opts.Verbose && len(s.APIDetails) > 0 {
			fmt.Fprintf(w, "    verified: %v %v\n", s.APIValid, s.APIDetails)
		}
	}
}

func printBordered(w io.Writer, secrets []types.Secret, opts PrintOptions) {
	table := tablewriter.NewTable(w)
	table.Header("Severity", "Status", "Type", "Location", "Line", "Value", "Entropy")
	for _, s := range secrets {
		table.Append([]string{
			string(s.Severity),
			string(s.Status),
			s.Type,
			s.Location,
			strconv.Itoa(s.Line),
			types.Mask(s.Value),
			fmt.Sprintf("%.2f", s.Entropy),
		})
	}
	table.Render()
}

func colorSeverity(s types.Severity) string {
	switch s {
	case types.SevCritical:
		return critical.Sprint(string(s))
	case types.SevHigh:
		return high.Sprint(string(s))
	case types.SevMedium:
		return medium.Sprint(string(s))
	default:
		return low.Sprint(string(s))
	}
}

func colorStatus(s types.Status) string {
	switch s {
	case types.StatusConfirmed:
		return critical.Sprint(string(s))
	case types.StatusLikely:
		return high.Sprint(string(s))
	case types.StatusPossible:
		return medium.Sprint(string(s))
	default:
		return string(s)
	}
}

// WriteJSON emits the machine-readable report. Secret values are
// truncated so the report itself never becomes a fresh leak.
func WriteJSON(w io.Writer, res types.ScanResult) error {
	out := res
	out.Secrets = make([]types.Secret, len(res.Secrets))
	for i, s := range res.Secrets {
		s.Value = types.Truncate(s.Value, 20)
		out.Secrets[i] = s
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
