package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/store"
)

func (a *app) recordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Manage local records"}
	cmd.AddCommand(a.recordListCmd())
	cmd.AddCommand(a.recordAddCmd())
	cmd.AddCommand(a.recordEditCmd())
	cmd.AddCommand(a.recordRemoveCmd())
	return cmd
}

func (a *app) recordListCmd() *cobra.Command {
	var activityType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				var (
					records []domain.Record
					err     error
				)
				if activityType != "" {
					records, err = rt.Engine.Store().ListByType(ctx, domain.ActivityType(activityType))
				} else {
					records, err = rt.Engine.Store().All(ctx)
				}
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), records)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Type", "Date", "Time", "Status"})
				for _, r := range records {
					tw.AppendRow(table.Row{r.ID, r.ActivityType, r.Date, r.Time.OrElse(""), r.SyncStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activityType, "type", "", "activity type filter")
	return cmd
}

func (a *app) recordAddCmd() *cobra.Command {
	var (
		activityType string
		date         string
		clock        string
		fields       []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a session locally; it is pushed on the next sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			if activityType == "" || date == "" {
				return fmt.Errorf("--type and --date required")
			}
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}
			input := store.NewRecord{
				ActivityType: domain.ActivityType(activityType),
				Date:         date,
				Fields:       payload,
			}
			if clock != "" {
				input.Time = optional.Some(clock)
			}

			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				r, err := rt.Engine.Store().Add(ctx, input)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), r)
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activityType, "type", "", "activity type ("+strings.Join(activityTypeNames(), ", ")+")")
	cmd.Flags().StringVar(&date, "date", "", "session date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "session start time (HH:MM)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "payload field as key=value; JSON values are kept as JSON")
	return cmd
}

func (a *app) recordEditCmd() *cobra.Command {
	var (
		date   string
		clock  string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a local record and mark it for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}
			patch := store.Patch{Fields: payload}
			if date != "" {
				patch.Date = optional.Some(date)
			}
			if clock != "" {
				patch.Time = optional.Some(clock)
			}

			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				_, found, err := rt.Engine.Store().Update(ctx, args[0], patch)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s", domain.ErrNotFound, args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Record updated")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new session date")
	cmd.Flags().StringVar(&clock, "time", "", "new session start time")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "payload field as key=value; key=null removes it")
	return cmd
}

func (a *app) recordRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a local record; synced records are deleted remotely on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(ctx context.Context, rt *Runtime) error {
				found, err := rt.Engine.Store().Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s", domain.ErrNotFound, args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Record removed")
				return nil
			})
		},
	}
}

// parseFields turns key=value pairs into payload fields. Values that are valid JSON are
// stored as-is, anything else as a JSON string.
func parseFields(pairs []string) (domain.Fields, error) {
	out := make(domain.Fields, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		if domain.IsReservedKey(key) {
			return nil, fmt.Errorf("field %q is reserved", key)
		}
		if json.Valid([]byte(value)) {
			out[key] = json.RawMessage(value)
			continue
		}
		if err := out.Set(key, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func activityTypeNames() []string {
	types := domain.ActivityTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}
