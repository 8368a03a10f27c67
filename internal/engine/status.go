package engine

import (
	"context"
	"time"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/store"
)

// Status summarises the local store.
type Status struct {
	Total          int                         `json:"total"`
	Pending        int                         `json:"pending"`
	Synced         int                         `json:"synced"`
	Failed         int                         `json:"failed"`
	PendingDeletes int                         `json:"pendingDeletes"`
	ByType         map[domain.ActivityType]int `json:"byType"`
	LastPull       *time.Time                  `json:"lastPull,omitempty"`
}

// Status reads a consistent snapshot of the local store.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	status := Status{ByType: make(map[domain.ActivityType]int)}
	err := e.store.View(ctx, func(tx *store.Tx) error {
		for _, r := range tx.All() {
			status.Total++
			status.ByType[r.ActivityType]++
			switch r.SyncStatus {
			case domain.SyncStatusSynced:
				status.Synced++
			case domain.SyncStatusError:
				status.Failed++
			default:
				status.Pending++
			}
		}
		status.PendingDeletes = len(tx.PendingDeletes())
		tx.LastPull().IfPresent(func(at time.Time) {
			status.LastPull = &at
		})
		return nil
	})
	return status, err
}
