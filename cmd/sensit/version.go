package sensit

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the sensit version",
		Run: func(*cobra.Command, []string) {
			v := version
			if info, ok := debug.ReadBuildInfo(); ok && v == "" {
				v = info.Main.Version
			}
			fmt.Println("sensit", v)
		},
	}
	rootCmd.AddCommand(cmd)
}
