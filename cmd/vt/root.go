package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/ui"
)

// newRootCmd builds a fresh command tree per invocation (no package-level
// cobra.Command vars): a deliberate "no process-global mutable state" design
// note applies to the CLI veneer too, and it keeps run() re-entrant for the
// script tests in script_test.go.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vt",
		Short:         "vt synchronizes a local directory with a Val Town val",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddGroup(&cobra.Group{ID: "sync", Title: "Sync commands:"})

	root.AddCommand(newCloneCmd())
	root.AddCommand(newPullCmd())
	root.AddCommand(newPushCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newStashCmd())
	return root
}

// run executes the CLI and maps any returned engine/CLI error onto exit
// code 1 ("0 success, 1 any engine error"). Stdout carries
// diff summaries, stderr carries diagnostic failures.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, ui.RenderFail("Error: "+err.Error()))
		return 1
	}
	return 0
}
