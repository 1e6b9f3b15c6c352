package sensit

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/sensit/sensit/internal/liveapi"
	"github.com/sensit/sensit/internal/signatures"
	"github.com/spf13/cobra"
)

func init() {
	var file string
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "List the signature corpus",
		RunE: func(_ *cobra.Command, _ []string) error {
			var (
				corpus *signatures.Corpus
				err    error
			)
			if file != "" {
				corpus, err = signatures.LoadFile(file, liveapi.Families())
			} else {
				corpus, err = signatures.LoadDefault(liveapi.Families())
			}
			if err != nil {
				return err
			}

			if flagTable {
				table := tablewriter.NewTable(os.Stdout)
				table.Header("Name", "Severity", "Validation", "Entropy min")
				for _, sig := range corpus.All() {
					emin := "-"
					if sig.HasEntropy {
						emin = fmt.Sprintf("%.1f", sig.EntropyMin)
					}
					table.Append([]string{sig.Name, string(sig.Severity), sig.Validation, emin})
				}
				table.Render()
				return nil
			}
			for _, sig := range corpus.All() {
				fmt.Printf("%-28s %-8s %s\n", sig.Name, sig.Severity, sig.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "list a custom corpus instead of the embedded one")
	rootCmd.AddCommand(cmd)
}
