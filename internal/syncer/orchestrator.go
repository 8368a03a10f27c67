// Package syncer pushes local changes to the remote store: queued deletes first,
// then pending creates and updates.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-softwarelab/common/pkg/slogx"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/observability"
	"example.com/trainingsync/internal/remote"
	"example.com/trainingsync/internal/store"
)

// Messages reported when a pass cannot start.
const (
	MessageOffline         = "No network connection"
	MessageUnauthenticated = "User not authenticated"
)

// Result summarises one pass. Errors holds one human-readable line per failure.
type Result struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// ChangeOp names what happened to a record remotely.
type ChangeOp string

const (
	ChangeUpserted ChangeOp = "upserted"
	ChangeDeleted  ChangeOp = "deleted"
)

// Change describes one successful remote write.
type Change struct {
	Op           ChangeOp
	RecordID     string
	ActivityType domain.ActivityType
	Collection   string
	OccurredAt   time.Time
}

// Notifier is told about every successful remote write, e.g. to wake other devices.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// Option configures optional behaviour for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithNotifier registers a Notifier for successful remote writes.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// Orchestrator drains the local queues against the remote store.
type Orchestrator struct {
	store    *store.Store
	remote   remote.Store
	online   func() bool
	user     auth.UserFunc
	notifier Notifier
	logger   *slog.Logger
}

// New constructs an Orchestrator.
func New(st *store.Store, rs remote.Store, online func() bool, user auth.UserFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  st,
		remote: rs,
		online: online,
		user:   user,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = slogx.ChildForComponent(o.logger, "syncer")
	return o
}

// SyncAllPending runs one pass. Remote calls are strictly sequential; per-record failures
// are recorded in the Result and the pass continues. Local storage failures abort the
// pass and are returned as an error together with the partial Result.
func (o *Orchestrator) SyncAllPending(ctx context.Context) (Result, error) {
	var result Result

	if o.online != nil && !o.online() {
		result.Errors = append(result.Errors, MessageOffline)
		recordPass(passOffline, 0)
		return result, nil
	}
	if _, err := auth.RequireUser(ctx, o.user); err != nil {
		result.Errors = append(result.Errors, MessageUnauthenticated)
		recordPass(passUnauthenticated, 0)
		return result, nil
	}

	start := time.Now()
	if err := o.drainDeletes(ctx, &result); err != nil {
		recordPass(passAborted, time.Since(start))
		return result, err
	}
	if err := o.drainPending(ctx, &result); err != nil {
		recordPass(passAborted, time.Since(start))
		return result, err
	}

	recordPass(passCompleted, time.Since(start))
	observability.RecordSyncCompleted(time.Now())
	if remaining, err := o.store.PendingCount(ctx); err == nil {
		observability.SetPendingRecords(remaining)
	}

	o.logger.Info("sync pass finished",
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
		slog.Int("deleted", result.Deleted),
	)
	return result, nil
}

func (o *Orchestrator) drainDeletes(ctx context.Context, result *Result) error {
	deletes, err := o.store.PendingDeletes(ctx)
	if err != nil {
		return err
	}

	for _, pending := range deletes {
		collection, err := o.deleteRemote(ctx, pending)
		if err != nil {
			o.logger.Warn("remote delete failed", slog.String("id", pending.ID), slogx.Error(err))
			recordDelete(deleteFailed)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Delete %s: %v", pending.ID, err))
			continue
		}

		if _, err := o.store.ClearPendingDelete(ctx, pending.ID); err != nil {
			return err
		}
		recordDelete(deleteCleared)
		result.Deleted++
		if collection != "" {
			o.notify(ctx, Change{
				Op:           ChangeDeleted,
				RecordID:     pending.ID,
				ActivityType: pending.ActivityType.OrZeroValue(),
				Collection:   collection,
				OccurredAt:   time.Now().UTC(),
			})
		}
	}
	return nil
}

// deleteRemote deletes the document in its recorded collection, or tries every collection
// for entries queued before the category was recorded. A missing document counts as deleted.
// The returned collection is empty when nothing was found to delete.
func (o *Orchestrator) deleteRemote(ctx context.Context, pending store.PendingDelete) (string, error) {
	collections := allCollections()
	if pending.ActivityType.IsPresent() {
		if collection, err := remote.CollectionFor(pending.ActivityType.MustGet()); err == nil {
			collections = []string{collection}
		}
	}

	for _, collection := range collections {
		err := o.remote.Delete(ctx, collection, pending.ID)
		switch {
		case err == nil:
			return collection, nil
		case errors.Is(err, domain.ErrNotFound):
			continue
		default:
			return "", err
		}
	}
	return "", nil
}

func (o *Orchestrator) drainPending(ctx context.Context, result *Result) error {
	pending, err := o.store.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, r := range pending {
		change, err := o.syncRecord(ctx, r)
		if errors.Is(err, domain.ErrLocalStorage) {
			return err
		}
		if err != nil {
			o.logger.Warn("record sync failed", slog.String("id", r.ID), slogx.Error(err))
			if _, markErr := o.store.MarkError(ctx, r.ID); markErr != nil {
				return markErr
			}
			recordRecord(r.ActivityType, recordFailed)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Session %s: %v", r.ID, err))
			continue
		}

		recordRecord(r.ActivityType, recordSynced)
		result.Success++
		o.notify(ctx, change)
	}
	return nil
}

// syncRecord creates a never-synced record at its derived key and adopts the id the
// remote store returns, or updates a previously synced record in place.
func (o *Orchestrator) syncRecord(ctx context.Context, r domain.Record) (Change, error) {
	collection, err := remote.CollectionFor(r.ActivityType)
	if err != nil {
		return Change{}, err
	}
	doc, err := remote.DocumentFor(r)
	if err != nil {
		return Change{}, err
	}

	id := r.ID
	if r.SyncedAt.IsEmpty() {
		key, err := domain.RecordKey(r)
		if err != nil {
			return Change{}, err
		}
		if id, err = o.remote.Create(ctx, collection, key, doc); err != nil {
			return Change{}, err
		}
		if id == "" {
			id = key
		}
		if err := o.store.Confirm(ctx, r.ID, id); err != nil {
			return Change{}, err
		}
	} else {
		if err := o.remote.Update(ctx, collection, r.ID, doc); err != nil {
			return Change{}, err
		}
		if _, err := o.store.MarkSynced(ctx, r.ID); err != nil {
			return Change{}, err
		}
	}

	return Change{
		Op:           ChangeUpserted,
		RecordID:     id,
		ActivityType: r.ActivityType,
		Collection:   collection,
		OccurredAt:   time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) notify(ctx context.Context, change Change) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, change); err != nil {
		o.logger.Warn("change notification failed", slog.String("id", change.RecordID), slogx.Error(err))
	}
}

func allCollections() []string {
	categories := remote.Categories()
	out := make([]string, 0, len(categories))
	for _, category := range categories {
		out = append(out, category.Collection)
	}
	return out
}
