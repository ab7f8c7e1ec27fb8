package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/syncops"
	"github.com/val-town/vt/internal/ui"
)

func newCloneCmd() *cobra.Command {
	var uploadExisting bool

	cmd := &cobra.Command{
		Use:     "clone <val-uri> [targetDir] [branchName]",
		GroupID: "sync",
		Short:   "Clone a val into a local directory",
		Args:    cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			valID, err := parseValID(args[0])
			if err != nil {
				return err
			}

			targetDir := valID.String()
			if len(args) >= 2 {
				targetDir = args[1]
			}
			root, err := filepath.Abs(targetDir)
			if err != nil {
				return err
			}

			sess, err := openSessionAt(root)
			if err != nil {
				return err
			}

			branchName := "main"
			if len(args) == 3 {
				branchName = args[2]
			}
			branchID, err := resolveBranchByName(cmd.Context(), sess, valID, branchName)
			if err != nil {
				return err
			}

			ops := syncops.New(root, sess, nil)
			changes, err := ops.Clone(cmd.Context(), syncops.CloneOptions{
				ValID:          valID,
				BranchID:       branchID,
				UploadExisting: uploadExisting,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Cloned into %s\n", ui.RenderPass("✓"), root)
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&uploadExisting, "upload-existing", false,
		"allow cloning into a non-empty directory; the first push uploads its existing files")
	return cmd
}
