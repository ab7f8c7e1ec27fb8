package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/val-town/vt/internal/diff"
	"github.com/val-town/vt/internal/meta"
	"github.com/val-town/vt/internal/ui"
	"github.com/val-town/vt/internal/vterrors"
	"github.com/val-town/vt/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var debounceMS int
	var logPath string

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "sync",
		Short:   "Watch the working tree and push on every change",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, root, _, err := openWorkingTree()
			if err != nil {
				return err
			}

			opts := watch.Options{LogPath: logPath}
			if debounceMS > 0 {
				opts.DebounceDelay = time.Duration(debounceMS) * time.Millisecond
			}

			w := watch.New(root, ops, meta.New(root), opts, func(changes *diff.FileStateChanges) {
				if changes.IsClean() {
					return
				}
				fmt.Fprint(cmd.OutOrStdout(), ui.RenderChanges(changes))
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "%s watching %s (ctrl-c to stop)\n", ui.RenderAccent("●"), root)
			err = w.Run(ctx)
			if errors.Is(err, vterrors.ErrAlreadyWatching) {
				return fmt.Errorf("another vt watch process is already running against %s", root)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&debounceMS, "debounce-delay", 0, "debounce delay in milliseconds (default 500)")
	cmd.Flags().StringVar(&logPath, "log-file", "", "write the watcher's log (push failures, filesystem errors) to a rotating log file instead of stderr")
	return cmd
}
