package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/changefeed"
	"example.com/trainingsync/internal/config"
	"example.com/trainingsync/internal/engine"
	"example.com/trainingsync/internal/remote/postgres"
	"example.com/trainingsync/internal/store"
	"example.com/trainingsync/internal/store/sqlite"
)

// Runtime is everything a command needs, opened once per invocation.
type Runtime struct {
	Engine *engine.Engine
	// User resolves the signed-in user for components outside the engine.
	User auth.UserFunc
	// Publisher is nil when the change feed is disabled.
	Publisher *changefeed.Publisher
	// DeviceID identifies this installation on the change feed.
	DeviceID string
	closers  []func() error
}

// NewRuntime bundles an engine with cleanup functions run by Close in reverse order.
func NewRuntime(eng *engine.Engine, user auth.UserFunc, publisher *changefeed.Publisher, closers ...func() error) *Runtime {
	return &Runtime{Engine: eng, User: user, Publisher: publisher, closers: closers}
}

// Close releases every resource the runtime opened.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Opener builds a Runtime from configuration.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error)

// OpenRuntime wires the SQLite cache, the Postgres document store and, when brokers
// are configured, the Kafka change publisher.
func OpenRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	medium, err := sqlite.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		return nil, err
	}
	closers := []func() error{medium.Close}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		medium.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	closers = append(closers, func() error {
		pool.Close()
		return nil
	})

	user := auth.TokenUser(cfg.AuthToken, auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	online := pingProbe(pool, cfg.ConnectivityTimeout)
	st := store.New(medium, store.WithLogger(logger))

	deviceID, err := resolveDeviceID(ctx, cfg, st)
	if err != nil {
		runClosers(closers)
		return nil, err
	}

	var publisher *changefeed.Publisher
	if cfg.ChangefeedEnabled() {
		publisher = changefeed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ChangefeedTopic, deviceID, user,
			changefeed.WithPublisherLogger(logger))
		closers = append(closers, publisher.Close)
	}

	engCfg := engine.Config{
		Store:  st,
		Remote: postgres.New(pool, user),
		Online: online,
		User:   user,
		Logger: logger,
	}
	if publisher != nil {
		engCfg.Notifier = publisher
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	rt := NewRuntime(eng, user, publisher, closers...)
	rt.DeviceID = deviceID
	return rt, nil
}

// resolveDeviceID prefers DEVICE_ID and otherwise uses the id persisted in the local store.
func resolveDeviceID(ctx context.Context, cfg config.Config, st *store.Store) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	return st.DeviceID(ctx)
}

// pingProbe treats the remote store as reachable when a ping succeeds within timeout.
func pingProbe(pool *pgxpool.Pool, timeout time.Duration) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return pool.Ping(ctx) == nil
	}
}

func runClosers(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	return slogx.NewLogger(slogx.WithLevel(cfg.LogLevel), slogx.WithFormat(cfg.LogFormat), slogx.WithWriter(os.Stderr))
}
