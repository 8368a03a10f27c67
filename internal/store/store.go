// Package store is the local record cache. Every mutation is a full
// read-modify-write of the persisted blobs, applied in one atomic Medium write.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/google/uuid"

	"example.com/trainingsync/internal/domain"
)

// Storage keys used on the Medium.
const (
	RecordsKey        = "training_tracker_sessions"
	PendingDeletesKey = "training_tracker_pending_deletes"
	LastPullKey       = "training_tracker_last_pull"
	DeviceIDKey       = "training_tracker_device_id"
)

// NewRecord carries the caller-supplied part of a record being created.
type NewRecord struct {
	ActivityType domain.ActivityType
	Date         string
	Time         optional.Value[string]
	Fields       domain.Fields
}

// Patch describes a local edit. It cannot change a record's id or activity type.
type Patch struct {
	Date   optional.Value[string]
	Time   optional.Value[string]
	Fields domain.Fields
}

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the generator used for temporary record ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store serializes access to the records and pending-delete queue held on a Medium.
type Store struct {
	mu     sync.Mutex
	medium Medium
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New constructs a Store backed by medium.
func New(medium Medium, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = slogx.ChildForComponent(s.logger, "store")
	return s
}

// Batch runs fn against one loaded snapshot and persists the result in a single write.
// Nothing is written when fn returns an error.
func (s *Store) Batch(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.persist(ctx, tx)
}

// View runs fn against a loaded snapshot without persisting anything.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}

func (s *Store) load(ctx context.Context) (*Tx, error) {
	tx := &Tx{now: s.now(), newID: s.newID}

	if raw, ok, err := s.read(ctx, RecordsKey); err != nil {
		return nil, err
	} else if ok {
		if tx.records, err = decodeRecords(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
	}

	if raw, ok, err := s.read(ctx, PendingDeletesKey); err != nil {
		return nil, err
	} else if ok {
		if tx.deletes, err = decodeDeletes(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
	}

	if raw, ok, err := s.read(ctx, LastPullKey); err != nil {
		return nil, err
	} else if ok {
		if tx.lastPull, err = decodeCursor(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
	}
	return tx, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.medium.Read(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %v", domain.ErrLocalStorage, key, err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	return raw, true, nil
}

func (s *Store) persist(ctx context.Context, tx *Tx) error {
	var entries []Entry
	if tx.recordsDirty {
		raw, err := encodeRecords(tx.records)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
		entries = append(entries, Entry{Key: RecordsKey, Value: raw})
	}
	if tx.deletesDirty {
		raw, err := encodeDeletes(tx.deletes)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
		entries = append(entries, Entry{Key: PendingDeletesKey, Value: raw})
	}
	if tx.cursorDirty && tx.lastPull.IsPresent() {
		raw, err := encodeCursor(tx.lastPull.MustGet())
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
		entries = append(entries, Entry{Key: LastPullKey, Value: raw})
	}
	if len(entries) == 0 {
		return nil
	}

	if err := s.medium.Write(ctx, entries...); err != nil {
		s.logger.Error("persist failed", slogx.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
	}
	s.logger.Debug("persisted", slog.Int("entries", len(entries)), slog.Int("records", len(tx.records)))
	return nil
}

// All returns every record.
func (s *Store) All(ctx context.Context) ([]domain.Record, error) {
	var out []domain.Record
	err := s.View(ctx, func(tx *Tx) error {
		out = tx.All()
		return nil
	})
	return out, err
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Record, bool, error) {
	var (
		out   domain.Record
		found bool
	)
	err := s.View(ctx, func(tx *Tx) error {
		out, found = tx.Get(id)
		return nil
	})
	return out, found, err
}

// Add creates a pending record with a fresh temporary id.
func (s *Store) Add(ctx context.Context, input NewRecord) (domain.Record, error) {
	var out domain.Record
	err := s.Batch(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Add(input)
		return err
	})
	return out, err
}

// Update applies patch to the record with id and marks it pending. Unknown ids report false.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (domain.Record, bool, error) {
	var (
		out   domain.Record
		found bool
	)
	err := s.Batch(ctx, func(tx *Tx) error {
		out, found = tx.Update(id, patch)
		return nil
	})
	return out, found, err
}

// Remove deletes the record with id, queueing a remote delete when it may exist remotely.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.Batch(ctx, func(tx *Tx) error {
		found = tx.Remove(id)
		return nil
	})
	return found, err
}

// MarkSynced flags the record as matching the remote store.
func (s *Store) MarkSynced(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.Batch(ctx, func(tx *Tx) error {
		found = tx.MarkSynced(id)
		return nil
	})
	return found, err
}

// MarkError flags the record's last sync attempt as failed.
func (s *Store) MarkError(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.Batch(ctx, func(tx *Tx) error {
		found = tx.MarkError(id)
		return nil
	})
	return found, err
}

// ListPending returns records with status pending or error.
func (s *Store) ListPending(ctx context.Context) ([]domain.Record, error) {
	var out []domain.Record
	err := s.View(ctx, func(tx *Tx) error {
		out = tx.ListPending()
		return nil
	})
	return out, err
}

// PendingCount returns the number of records awaiting sync.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	records, err := s.ListPending(ctx)
	return len(records), err
}

// ListByType returns records of one activity type.
func (s *Store) ListByType(ctx context.Context, activityType domain.ActivityType) ([]domain.Record, error) {
	var out []domain.Record
	err := s.View(ctx, func(tx *Tx) error {
		out = tx.ListByType(activityType)
		return nil
	})
	return out, err
}

// RewriteID replaces a record's id. See Tx.RewriteID.
func (s *Store) RewriteID(ctx context.Context, oldID, newID string) error {
	return s.Batch(ctx, func(tx *Tx) error {
		return tx.RewriteID(oldID, newID)
	})
}

// Confirm rewrites oldID to newID and marks the record synced in one write.
func (s *Store) Confirm(ctx context.Context, oldID, newID string) error {
	return s.Batch(ctx, func(tx *Tx) error {
		return tx.Confirm(oldID, newID)
	})
}

// PendingDeletes returns the queued remote deletions.
func (s *Store) PendingDeletes(ctx context.Context) ([]PendingDelete, error) {
	var out []PendingDelete
	err := s.View(ctx, func(tx *Tx) error {
		out = tx.PendingDeletes()
		return nil
	})
	return out, err
}

// ClearPendingDelete drops id from the pending-delete queue.
func (s *Store) ClearPendingDelete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.Batch(ctx, func(tx *Tx) error {
		found = tx.ClearPendingDelete(id)
		return nil
	})
	return found, err
}

// LastPull returns the watermark of the last successful bulk fetch.
func (s *Store) LastPull(ctx context.Context) (optional.Value[time.Time], error) {
	var out optional.Value[time.Time]
	err := s.View(ctx, func(tx *Tx) error {
		out = tx.LastPull()
		return nil
	})
	return out, err
}

// DeviceID returns the id this installation publishes change events under. The first
// call generates one and persists it so it survives restarts.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.read(ctx, DeviceIDKey)
	if err != nil {
		return "", err
	}
	if ok {
		id, err := decodeDeviceID(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
		}
		return id, nil
	}

	id := s.newID()
	raw, err = encodeDeviceID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
	}
	if err := s.medium.Write(ctx, Entry{Key: DeviceIDKey, Value: raw}); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLocalStorage, err)
	}
	s.logger.Info("device id generated", slog.String("device_id", id))
	return id, nil
}
