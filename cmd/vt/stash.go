package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/ui"
)

func newStashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stash",
		GroupID: "sync",
		Short:   "Manage stashed local changes",
	}
	cmd.AddCommand(newStashListCmd())
	cmd.AddCommand(newStashPopCmd())
	return cmd
}

func newStashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stashed changesets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _, _, err := openWorkingTree()
			if err != nil {
				return err
			}
			manifests, err := ops.StashList()
			if err != nil {
				return err
			}
			if len(manifests) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stashes")
				return nil
			}
			for _, m := range manifests {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d files, %s)\n",
					ui.RenderAccent(m.ID), m.CreatedAt.Format("2006-01-02 15:04:05"), len(m.Paths), ui.RenderDim(fmt.Sprintf("v%d", m.Version)))
			}
			return nil
		},
	}
}

func newStashPopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pop [id]",
		Short: "Restore a stashed changeset into the working tree (newest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, root, _, err := openWorkingTree()
			if err != nil {
				return err
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				manifests, err := ops.StashList()
				if err != nil {
					return err
				}
				if len(manifests) == 0 {
					return fmt.Errorf("no stashes to pop")
				}
				id = manifests[0].ID
			}

			if err := ops.StashPop(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Restored stash %s into %s\n", ui.RenderPass("✓"), id, root)
			return nil
		},
	}
}
