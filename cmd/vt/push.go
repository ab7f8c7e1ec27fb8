package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/ui"
)

func newPushCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "push",
		GroupID: "sync",
		Short:   "Push local changes to the remote val",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _, _, err := openWorkingTree()
			if err != nil {
				return err
			}
			changes, err := ops.Push(cmd.Context(), syncops.PushOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderWarnings(changes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the changes without applying them")
	return cmd
}
