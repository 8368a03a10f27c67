package store

import (
	"fmt"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"

	"example.com/trainingsync/internal/domain"
)

// Tx is a loaded snapshot of the store. It is only valid inside the Batch or View call that created it.
type Tx struct {
	records  []domain.Record
	deletes  []PendingDelete
	lastPull optional.Value[time.Time]
	now      time.Time
	newID    func() string

	recordsDirty bool
	deletesDirty bool
	cursorDirty  bool
}

// Now is the timestamp used for every change made through this Tx.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// All returns copies of every record in storage order.
func (tx *Tx) All() []domain.Record {
	out := make([]domain.Record, 0, len(tx.records))
	for _, r := range tx.records {
		out = append(out, r.Clone())
	}
	return out
}

// Get returns a copy of the record with id.
func (tx *Tx) Get(id string) (domain.Record, bool) {
	idx := tx.indexOf(id)
	if idx < 0 {
		return domain.Record{}, false
	}
	return tx.records[idx].Clone(), true
}

// Add appends a new pending record.
func (tx *Tx) Add(input NewRecord) (domain.Record, error) {
	if !input.ActivityType.Valid() {
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrUnknownActivityType, input.ActivityType)
	}

	id := tx.newID()
	if tx.indexOf(id) >= 0 {
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrIDConflict, id)
	}

	r := domain.Record{
		ID:           id,
		ActivityType: input.ActivityType,
		Date:         input.Date,
		Time:         input.Time,
		CreatedAt:    tx.now,
		UpdatedAt:    tx.now,
		SyncStatus:   domain.SyncStatusPending,
		Fields:       domain.Fields{}.Merge(input.Fields),
	}
	tx.records = append(tx.records, r)
	tx.recordsDirty = true
	return r.Clone(), nil
}

// Update merges patch into the record and forces it back to pending.
func (tx *Tx) Update(id string, patch Patch) (domain.Record, bool) {
	idx := tx.indexOf(id)
	if idx < 0 {
		return domain.Record{}, false
	}

	r := &tx.records[idx]
	if patch.Date.IsPresent() {
		r.Date = patch.Date.MustGet()
	}
	if patch.Time.IsPresent() {
		r.Time = patch.Time
	}
	r.Fields = r.Fields.Merge(patch.Fields)
	r.UpdatedAt = tx.now
	r.SyncStatus = domain.SyncStatusPending
	tx.recordsDirty = true
	return r.Clone(), true
}

// Remove deletes the record. Records that may exist remotely are queued for remote deletion
// together with their activity type.
func (tx *Tx) Remove(id string) bool {
	idx := tx.indexOf(id)
	if idx < 0 {
		return false
	}

	removed := tx.records[idx]
	tx.records = append(tx.records[:idx], tx.records[idx+1:]...)
	tx.recordsDirty = true

	if mayExistRemotely(removed) && tx.deleteIndex(id) < 0 {
		tx.deletes = append(tx.deletes, PendingDelete{
			ID:           id,
			ActivityType: optional.Some(removed.ActivityType),
		})
		tx.deletesDirty = true
	}
	return true
}

// MarkSynced sets status synced and stamps SyncedAt.
func (tx *Tx) MarkSynced(id string) bool {
	idx := tx.indexOf(id)
	if idx < 0 {
		return false
	}
	tx.records[idx].SyncStatus = domain.SyncStatusSynced
	tx.records[idx].SyncedAt = optional.Some(tx.now)
	tx.recordsDirty = true
	return true
}

// MarkError sets status error, keeping SyncedAt so the next attempt still knows create from update.
func (tx *Tx) MarkError(id string) bool {
	idx := tx.indexOf(id)
	if idx < 0 {
		return false
	}
	tx.records[idx].SyncStatus = domain.SyncStatusError
	tx.recordsDirty = true
	return true
}

// ListPending returns copies of records with status pending or error.
func (tx *Tx) ListPending() []domain.Record {
	var out []domain.Record
	for _, r := range tx.records {
		if r.NeedsSync() {
			out = append(out, r.Clone())
		}
	}
	return out
}

// ListByType returns copies of records of one activity type.
func (tx *Tx) ListByType(activityType domain.ActivityType) []domain.Record {
	var out []domain.Record
	for _, r := range tx.records {
		if r.ActivityType == activityType {
			out = append(out, r.Clone())
		}
	}
	return out
}

// RewriteID replaces the id of the record oldID with newID, leaving every other field untouched.
// It fails with domain.ErrNotFound when oldID is unknown and domain.ErrIDConflict when newID is taken.
func (tx *Tx) RewriteID(oldID, newID string) error {
	idx := tx.indexOf(oldID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, oldID)
	}
	if oldID == newID {
		return nil
	}
	if newID == "" {
		return fmt.Errorf("rewrite %s: empty target id", oldID)
	}
	if tx.indexOf(newID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrIDConflict, newID)
	}
	tx.records[idx].ID = newID
	tx.recordsDirty = true
	return nil
}

// Confirm records that the remote store accepted the record under newID.
func (tx *Tx) Confirm(oldID, newID string) error {
	if err := tx.RewriteID(oldID, newID); err != nil {
		return err
	}
	tx.MarkSynced(newID)
	return nil
}

// Insert adds a record received from the remote store as synced.
func (tx *Tx) Insert(r domain.Record) error {
	if r.ID == "" {
		return fmt.Errorf("insert: empty record id")
	}
	if tx.indexOf(r.ID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrIDConflict, r.ID)
	}

	r = r.Clone()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	r.SyncStatus = domain.SyncStatusSynced
	r.SyncedAt = optional.Some(tx.now)
	tx.records = append(tx.records, r)
	tx.recordsDirty = true
	return nil
}

// PendingDeletes returns a copy of the pending-delete queue.
func (tx *Tx) PendingDeletes() []PendingDelete {
	return append([]PendingDelete(nil), tx.deletes...)
}

// ClearPendingDelete removes id from the queue.
func (tx *Tx) ClearPendingDelete(id string) bool {
	idx := tx.deleteIndex(id)
	if idx < 0 {
		return false
	}
	tx.deletes = append(tx.deletes[:idx], tx.deletes[idx+1:]...)
	tx.deletesDirty = true
	return true
}

// LastPull returns the bulk-fetch watermark.
func (tx *Tx) LastPull() optional.Value[time.Time] {
	return tx.lastPull
}

// SetLastPull moves the bulk-fetch watermark.
func (tx *Tx) SetLastPull(at time.Time) {
	tx.lastPull = optional.Some(at.UTC())
	tx.cursorDirty = true
}

func (tx *Tx) indexOf(id string) int {
	for i := range tx.records {
		if tx.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (tx *Tx) deleteIndex(id string) int {
	for i := range tx.deletes {
		if tx.deletes[i].ID == id {
			return i
		}
	}
	return -1
}

// A pending record edited after a successful sync still has a remote copy.
func mayExistRemotely(r domain.Record) bool {
	switch r.SyncStatus {
	case domain.SyncStatusSynced, domain.SyncStatusError:
		return true
	default:
		return r.SyncedAt.IsPresent()
	}
}
