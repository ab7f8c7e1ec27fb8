package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/ui"
	"github.com/val-town/vt/internal/vterrors"
)

func newPullCmd() *cobra.Command {
	var force, dryRun bool

	cmd := &cobra.Command{
		Use:     "pull",
		GroupID: "sync",
		Short:   "Pull remote changes into the local working tree",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _, sess, err := openWorkingTree()
			if err != nil {
				return err
			}

			if force {
				dirty, err := ops.Status(cmd.Context())
				if err != nil {
					return err
				}
				if len(dirty.Created) > 0 || len(dirty.Modified) > 0 {
					ok, err := confirmDestructive(sess.Config, "Discard local changes and pull? (They will be stashed first.)")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "aborted")
						return nil
					}
					id, err := ops.StashSave(cmd.Context(), dirty)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s stashed local changes as %s before pulling\n", ui.RenderWarn("!"), id)
				}
			}

			changes, err := ops.Pull(cmd.Context(), syncops.PullOptions{Force: force, DryRun: dryRun})
			if err != nil {
				if errors.Is(err, vterrors.ErrDirtyWorkingTree) && changes != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "remote changes not applied:")
					fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
					return fmt.Errorf("working tree has local changes; re-run with --force to discard them")
				}
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard local changes that would otherwise block the pull")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the changes without applying them")
	return cmd
}
