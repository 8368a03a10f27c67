package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/trainingsync/internal/engine"
	"example.com/trainingsync/internal/syncer"
)

func (a *app) syncCmd() *cobra.Command {
	var withPull bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending changes to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				var (
					result syncer.Result
					pulled engine.PullResult
					err    error
				)
				if withPull {
					result, pulled, err = rt.Engine.Reconcile(ctx)
				} else {
					result, err = rt.Engine.SyncAllPending(ctx)
				}
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), map[string]any{"sync": result, "pull": pulled})
				}
				printResult(cmd.OutOrStdout(), result)
				if withPull {
					printPull(cmd.OutOrStdout(), pulled)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withPull, "pull", false, "pull remote changes after pushing")
	return cmd
}

func (a *app) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fetch remote changes and merge them into the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				pulled, err := rt.Engine.Pull(ctx)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), pulled)
				}
				printPull(cmd.OutOrStdout(), pulled)
				return nil
			})
		},
	}
}

func printResult(w io.Writer, result syncer.Result) {
	fmt.Fprintf(w, "%d synced, %d failed, %d deleted\n", result.Success, result.Failed, result.Deleted)
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

func printPull(w io.Writer, pulled engine.PullResult) {
	fmt.Fprintf(w, "%d fetched, %d inserted, %d confirmed\n", pulled.Fetched, pulled.Inserted, pulled.Ghosts)
}
