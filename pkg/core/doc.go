// Package core provides a small, stable facade over sensit's internal
// pipeline for external integrations. It deliberately re-exports a
// narrow API surface so third-party tools can depend on a stable import
// path without exposing internal implementation packages.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	res, err := core.ScanPath(ctx, cfg, ".")
//	if err != nil { /* handle */ }
//	_ = core.MarshalResult(os.Stdout, res)
package core
