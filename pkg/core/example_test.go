package core_test

import (
	"context"
	"fmt"
	"os"

	"github.com/sensit/sensit/pkg/core"
)

// Demonstrates embedding sensit in another program.
func ExampleScanPath() {
	cfg := core.DefaultConfig()
	res, err := core.ScanPath(context.Background(), cfg, ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	for _, s := range res.Secrets {
		fmt.Printf("%s %s:%d\n", s.Type, s.Location, s.Line)
	}
}
