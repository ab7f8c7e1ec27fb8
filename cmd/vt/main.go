// Command vt is the CLI veneer over the sync engine in internal/syncops
// Argument parsing, prompts, and colored output live here; commands use a
// cobra.Command{Use, GroupID, Short, RunE} shape, and run maps any command
// error onto exit status 1.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
