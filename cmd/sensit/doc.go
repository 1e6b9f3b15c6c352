// Package sensit provides the command-line interface for the sensit
// scanner. It configures subcommands (scan, signatures, history),
// parses flags, and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/sensit/sensit/cmd/sensit"
//	func main() { sensit.Execute() }
package sensit
