// Package engine ties the local store, the merge engine and the sync orchestrator
// together behind one serialized entry point per device.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-softwarelab/common/pkg/slogx"
	"golang.org/x/sync/singleflight"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/merge"
	"example.com/trainingsync/internal/observability"
	"example.com/trainingsync/internal/remote"
	"example.com/trainingsync/internal/store"
	"example.com/trainingsync/internal/syncer"
)

// Config wires an Engine.
type Config struct {
	Store    *store.Store
	Remote   remote.Store
	Online   func() bool
	User     auth.UserFunc
	Notifier syncer.Notifier
	Logger   *slog.Logger
}

// PullResult reports how a pull changed the local store.
type PullResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Ghosts   int `json:"ghosts"`
	Kept     int `json:"kept"`
	Skipped  int `json:"skipped"`
}

// Engine serializes sync passes, pulls and merges so no two of them interleave
// their read-modify-write cycles.
type Engine struct {
	mu     sync.Mutex
	group  singleflight.Group
	store  *store.Store
	remote remote.Store
	online func() bool
	user   auth.UserFunc
	merger *merge.Engine
	syncer *syncer.Orchestrator
	logger *slog.Logger
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("engine: remote store is required")
	}

	logger := slogx.DefaultIfNil(cfg.Logger)
	opts := []syncer.Option{syncer.WithLogger(logger)}
	if cfg.Notifier != nil {
		opts = append(opts, syncer.WithNotifier(cfg.Notifier))
	}

	return &Engine{
		store:  cfg.Store,
		remote: cfg.Remote,
		online: cfg.Online,
		user:   cfg.User,
		merger: merge.New(cfg.Store, merge.WithLogger(logger)),
		syncer: syncer.New(cfg.Store, cfg.Remote, cfg.Online, cfg.User, opts...),
		logger: slogx.ChildForComponent(logger, "engine"),
	}, nil
}

// Store exposes the local store for reads and local edits.
func (e *Engine) Store() *store.Store {
	return e.store
}

// SyncAllPending runs one sync pass. Callers arriving while a pass is running share its result.
func (e *Engine) SyncAllPending(ctx context.Context) (syncer.Result, error) {
	v, err, shared := e.group.Do("sync", func() (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.syncer.SyncAllPending(ctx)
	})
	if shared {
		e.logger.Debug("joined running sync pass")
	}
	result, _ := v.(syncer.Result)
	return result, err
}

// MergeSessions merges a remote snapshot into the store and reports whether anything changed.
func (e *Engine) MergeSessions(ctx context.Context, records []domain.Record) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merger.Merge(ctx, records)
}

// Pull lists every collection changed since the last pull and merges the result.
// The first pull, with no watermark, fetches everything.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	v, err, _ := e.group.Do("pull", func() (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.pull(ctx)
	})
	result, _ := v.(PullResult)
	return result, err
}

func (e *Engine) pull(ctx context.Context) (PullResult, error) {
	if e.online != nil && !e.online() {
		return PullResult{}, domain.ErrNetworkUnavailable
	}
	if _, err := auth.RequireUser(ctx, e.user); err != nil {
		return PullResult{}, err
	}

	since, err := e.store.LastPull(ctx)
	if err != nil {
		return PullResult{}, err
	}

	var fetched []domain.Record
	for _, category := range remote.Categories() {
		records, err := e.remote.List(ctx, category.Collection, since)
		if err != nil {
			return PullResult{}, fmt.Errorf("list %s: %w", category.Collection, err)
		}
		fetched = append(fetched, records...)
	}

	summary, err := e.merger.MergePulled(ctx, fetched)
	if err != nil {
		return PullResult{}, err
	}
	observability.RecordPullCompleted(time.Now())

	result := PullResult{
		Fetched:  len(fetched),
		Inserted: summary[merge.OutcomeInserted],
		Ghosts:   summary[merge.OutcomeGhost],
		Kept:     summary[merge.OutcomeKept],
		Skipped:  summary[merge.OutcomeSkipped],
	}
	e.logger.Info("pull finished",
		slog.Bool("incremental", since.IsPresent()),
		slog.Int("fetched", result.Fetched),
		slog.Int("inserted", result.Inserted),
	)
	return result, nil
}

// Reconcile pushes local changes and then pulls remote ones. A pull is skipped when the
// sync pass could not reach the remote store.
func (e *Engine) Reconcile(ctx context.Context) (syncer.Result, PullResult, error) {
	result, err := e.SyncAllPending(ctx)
	if err != nil {
		return result, PullResult{}, err
	}
	if blocked(result) {
		return result, PullResult{}, nil
	}
	pulled, err := e.Pull(ctx)
	return result, pulled, err
}

func blocked(result syncer.Result) bool {
	if result.Success+result.Failed+result.Deleted > 0 || len(result.Errors) != 1 {
		return false
	}
	return result.Errors[0] == syncer.MessageOffline || result.Errors[0] == syncer.MessageUnauthenticated
}
