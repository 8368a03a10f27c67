// Package cli implements the trainingsync command line.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/trainingsync/internal/config"
)

type app struct {
	cfg    config.Config
	open   Opener
	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd builds the command tree. open is called once per command that needs the engine.
func NewRootCmd(cfg config.Config, open Opener, logger *slog.Logger) *cobra.Command {
	a := &app{cfg: cfg, open: open, v: viper.New(), logger: logger}
	if a.logger == nil {
		a.logger = newLogger(cfg)
	}

	root := &cobra.Command{
		Use:           "trainingsync",
		Short:         "Offline-first sync for training sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", cfg.LocalDBPath, "local database path")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = a.v.BindPFlag("db", root.PersistentFlags().Lookup("db"))
	_ = a.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	a.v.SetEnvPrefix("TRAININGSYNC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(a.syncCmd())
	root.AddCommand(a.pullCmd())
	root.AddCommand(a.statusCmd())
	root.AddCommand(a.recordCmd())
	root.AddCommand(a.watchCmd())
	return root
}

// withRuntime opens the runtime for the duration of fn.
func (a *app) withRuntime(ctx context.Context, fn func(context.Context, *Runtime) error) error {
	cfg := a.cfg
	if path := a.v.GetString("db"); path != "" {
		cfg.LocalDBPath = path
	}
	rt, err := a.open(ctx, cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			a.logger.Warn("close runtime", slogx.Error(closeErr))
		}
	}()
	return fn(ctx, rt)
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool("json")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
