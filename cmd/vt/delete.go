package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/ui"
)

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete",
		GroupID: "sync",
		Short:   "Sever the local binding to a val (does not touch the remote)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, root, sess, err := openWorkingTree()
			if err != nil {
				return err
			}

			if !force {
				ok, err := confirmDestructive(sess.Config, fmt.Sprintf("Delete local vt binding at %s?", root))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			if err := ops.Delete(cmd.Context(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed local .vt state at %s\n", ui.RenderPass("✓"), root)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete even if the working tree has local changes")
	return cmd
}
