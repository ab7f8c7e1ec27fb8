package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/ui"
)

func newBranchCmd() *cobra.Command {
	var deleteName string

	cmd := &cobra.Command{
		Use:     "branch",
		GroupID: "sync",
		Short:   "List branches of the current val",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteName != "" {
				// The remote API has no delete-branch method, only val and
				// file deletion, so this is not something the engine can
				// perform.
				return fmt.Errorf("branch deletion is not supported by the remote API")
			}

			ops, _, sess, err := openWorkingTree()
			if err != nil {
				return err
			}
			state, err := ops.State()
			if err != nil {
				return err
			}

			branches, err := sess.RemoteAPI.ListBranches(cmd.Context(), state.Val.ID)
			if err != nil {
				return err
			}
			for _, b := range branches {
				marker := " "
				if b.ID == state.Branch.ID {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", marker, ui.RenderAccent(b.Name), ui.RenderDim(fmt.Sprintf("(v%d)", b.Version)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteName, "delete", "D", "", "delete a branch by name (unsupported: no delete-branch method on the remote API)")
	return cmd
}
