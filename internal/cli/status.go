package cli

import (
	"context"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"example.com/trainingsync/internal/domain"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarise the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				status, err := rt.Engine.Status(ctx)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), status)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Activity", "Records"})
				types := make([]string, 0, len(status.ByType))
				for activityType := range status.ByType {
					types = append(types, string(activityType))
				}
				sort.Strings(types)
				for _, activityType := range types {
					tw.AppendRow(table.Row{activityType, status.ByType[domain.ActivityType(activityType)]})
				}
				tw.AppendSeparator()
				tw.AppendRow(table.Row{"pending", status.Pending})
				tw.AppendRow(table.Row{"failed", status.Failed})
				tw.AppendRow(table.Row{"synced", status.Synced})
				tw.AppendRow(table.Row{"queued deletes", status.PendingDeletes})
				lastPull := "never"
				if status.LastPull != nil {
					lastPull = status.LastPull.Format(time.RFC3339)
				}
				tw.AppendFooter(table.Row{"last pull", lastPull})
				tw.Render()
				return nil
			})
		},
	}
}
