package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/spf13/cobra"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/changefeed"
	"example.com/trainingsync/internal/domain"
	httptransport "example.com/trainingsync/internal/transport/http"
)

func (a *app) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile periodically and whenever another device reports a change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.withRuntime(ctx, func(ctx context.Context, rt *Runtime) error {
				return a.watch(ctx, rt, interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", a.cfg.SyncInterval, "time between scheduled reconciles")
	return cmd
}

func (a *app) watch(ctx context.Context, rt *Runtime, interval time.Duration) error {
	logger := slogx.ChildForComponent(a.logger, "watch")

	srv := httptransport.NewServer(httptransport.ServerConfig{
		Address:      a.cfg.MetricsAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.NewHandler(rt.Engine.Status, auth.Config{Secret: a.cfg.JWTSecret, Issuer: a.cfg.JWTIssuer}, rt.User))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("metrics listening", slog.String("address", a.cfg.MetricsAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slogx.Error(err))
		}
	}()

	if a.cfg.ChangefeedEnabled() {
		feedCfg := a.cfg
		feedCfg.DeviceID = rt.DeviceID
		reader := changefeed.NewKafkaReader(feedCfg.KafkaBrokers, feedCfg.ChangefeedTopic, feedCfg.ConsumerGroup())
		processor := changefeed.NewProcessor(reader, changefeed.HandlerFunc(func(ctx context.Context, msg changefeed.Message) error {
			_, err := rt.Engine.Pull(ctx)
			return err
		}), rt.DeviceID, rt.User, changefeed.WithLogger(a.logger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()
			logger.Info("change feed consumer started", slog.String("topic", a.cfg.ChangefeedTopic))
			if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("change feed consumer stopped", slogx.Error(err))
			}
		}()
	}

	a.reconcile(ctx, rt, logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", slogx.Error(err))
			}
			wg.Wait()
			return nil
		case <-ticker.C:
			a.reconcile(ctx, rt, logger)
		}
	}
}

func (a *app) reconcile(ctx context.Context, rt *Runtime, logger *slog.Logger) {
	result, pulled, err := rt.Engine.Reconcile(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, domain.ErrNetworkUnavailable), errors.Is(err, domain.ErrNotAuthenticated):
		logger.Info("reconcile skipped", slogx.Error(err))
	case err != nil:
		logger.Error("reconcile failed", slogx.Error(err))
	default:
		logger.Info("reconciled",
			slog.Int("synced", result.Success),
			slog.Int("failed", result.Failed),
			slog.Int("deleted", result.Deleted),
			slog.Int("pulled", pulled.Inserted+pulled.Ghosts),
		)
	}
}
