package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/ui"
)

func newCheckoutCmd() *cobra.Command {
	var newBranch string
	var force bool

	cmd := &cobra.Command{
		Use:     "checkout [branch]",
		GroupID: "sync",
		Short:   "Switch the working tree to another branch",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _, sess, err := openWorkingTree()
			if err != nil {
				return err
			}

			opts := syncops.CheckoutOptions{Force: force}
			if newBranch != "" {
				opts.NewBranchName = newBranch
				if state, err := ops.State(); err == nil {
					opts.ForkedFromBranchID = state.Branch.ID
				}
			} else {
				if len(args) != 1 {
					return fmt.Errorf("checkout requires a branch name, or -b <new>")
				}
				opts.BranchName = args[0]
			}

			if force {
				dirty, err := ops.Status(cmd.Context())
				if err != nil {
					return err
				}
				if len(dirty.Created) > 0 || len(dirty.Modified) > 0 {
					ok, err := confirmDestructive(sess.Config, "Discard local changes and check out? (They will be stashed first.)")
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
					fmt.Fprintf(cmd.OutOrStdout(), "%s stashed local changes as %s before checkout\n", ui.RenderWarn("!"), id)
				}
			}

			changes, err := ops.Checkout(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&newBranch, "branch", "b", "", "create and switch to a new branch forked from the current one")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard local changes that would otherwise block the checkout")
	return cmd
}
