package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show changes that a push would apply",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, _, _, err := openWorkingTree()
			if err != nil {
				return err
			}
			changes, err := ops.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			return nil
		},
	}
}
