package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/ui"
	"github.com/val-town/vt/internal/vterrors"
)

func newCreateCmd() *cobra.Command {
	var public, private, unlisted bool
	var org string

	cmd := &cobra.Command{
		Use:     "create <name> [targetDir]",
		GroupID: "sync",
		Short:   "Create a new val and clone it locally",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			targetDir := name
			if len(args) == 2 {
				targetDir = args[1]
			}
			root, err := filepath.Abs(targetDir)
			if err != nil {
				return err
			}
			if _, err := meta.New(root).GetState(); err == nil {
				return fmt.Errorf("%w: %s", vterrors.ErrAlreadyInitialized, root)
			}

			orgID, err := orgIDFromFlag(org)
			if err != nil {
				return err
			}

			sess, err := openSessionAt(root)
			if err != nil {
				return err
			}

			val, err := sess.RemoteAPI.CreateVal(cmd.Context(), name, privacyFromFlags(public, private, unlisted), "", orgID)
			if err != nil {
				return err
			}

			branchID, err := resolveBranchByName(cmd.Context(), sess, val.ID, "main")
			if err != nil {
				return err
			}

			ops := syncops.New(root, sess, nil)
			changes, err := ops.Clone(cmd.Context(), syncops.CloneOptions{ValID: val.ID, BranchID: branchID})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s and cloned into %s\n", ui.RenderPass("✓"), val.Name, root)
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&public, "public", true, "create a public val (default)")
	cmd.Flags().BoolVar(&private, "private", false, "create a private val")
	cmd.Flags().BoolVar(&unlisted, "unlisted", false, "create an unlisted val")
	cmd.Flags().StringVar(&org, "org", "me", `organization id, or "me" for your personal account`)
	return cmd
}
