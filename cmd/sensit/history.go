package sensit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sensit/sensit/internal/audit"
	"github.com/spf13/cobra"
)

func init() {
	var (
		path      string
		deleteIdx int
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past scans from the audit log",
		RunE: func(_ *cobra.Command, _ []string) error {
			root, _ := filepath.Abs(path)
			log := audit.NewLog(root)

			if deleteIdx >= 0 {
				if err := log.Delete(deleteIdx); err != nil {
					return err
				}
				fmt.Println("record deleted")
				return nil
			}

			records, err := log.History()
			if err != nil {
				return fmt.Errorf("no scan history for %s", root)
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			for i, r := range records {
				fmt.Printf("%3d  %s  %s  secrets=%d units=%d %s", i,
					r.Timestamp.Format("2006-01-02 15:04"), r.ScanID,
					r.TotalSecrets, r.UnitsScanned, r.Duration)
				if r.Incomplete {
					fmt.Print("  (incomplete)")
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "repository whose history to show")
	cmd.Flags().IntVar(&deleteIdx, "delete", -1, "delete the record at this index")
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many records (0 = all)")
	rootCmd.AddCommand(cmd)
}
