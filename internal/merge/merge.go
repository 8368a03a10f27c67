// Package merge reconciles a batch of remote records with the local store.
package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/go-softwarelab/common/pkg/slogx"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/store"
)

// Outcome classifies what happened to one remote record.
type Outcome string

const (
	// OutcomeKept means the local side wins: a record with the same id exists or its delete is queued.
	OutcomeKept Outcome = "kept_local"
	// OutcomeGhost means an unsynced local record was recognised as the remote record and took its id.
	OutcomeGhost Outcome = "ghost_confirmed"
	// OutcomeInserted means the remote record was new to this device.
	OutcomeInserted Outcome = "inserted"
	// OutcomeSkipped means the remote record was unusable.
	OutcomeSkipped Outcome = "skipped"
)

// Summary counts outcomes for one Merge call.
type Summary map[Outcome]int

// Changed reports whether the merge modified the store.
func (s Summary) Changed() bool {
	return s[OutcomeGhost] > 0 || s[OutcomeInserted] > 0
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine applies remote snapshots to a store.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs an Engine.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{store: st}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = slogx.ChildForComponent(e.logger, "merge")
	return e
}

// Merge applies remote to the store in a single write and reports whether anything changed.
func (e *Engine) Merge(ctx context.Context, remote []domain.Record) (bool, error) {
	summary, err := e.MergeSummary(ctx, remote)
	if err != nil {
		return false, err
	}
	return summary.Changed(), nil
}

// MergeSummary is Merge with per-outcome counts.
//
// For each remote record: an exact id match keeps the local copy untouched; otherwise an
// unclaimed pending or error record describing the same session adopts the remote id and
// becomes synced; otherwise the remote record is inserted as synced.
func (e *Engine) MergeSummary(ctx context.Context, remote []domain.Record) (Summary, error) {
	return e.merge(ctx, remote, optional.Empty[time.Time]())
}

// MergePulled merges a pulled snapshot and moves the pull watermark to the newest
// remote modification time in the same write. An empty snapshot leaves the watermark alone.
func (e *Engine) MergePulled(ctx context.Context, remote []domain.Record) (Summary, error) {
	var newest time.Time
	for _, r := range remote {
		if r.UpdatedAt.After(newest) {
			newest = r.UpdatedAt
		}
	}
	watermark := optional.Empty[time.Time]()
	if !newest.IsZero() {
		watermark = optional.Some(newest)
	}
	return e.merge(ctx, remote, watermark)
}

func (e *Engine) merge(ctx context.Context, remote []domain.Record, watermark optional.Value[time.Time]) (Summary, error) {
	summary := make(Summary)
	if len(remote) == 0 {
		return summary, nil
	}

	err := e.store.Batch(ctx, func(tx *store.Tx) error {
		candidates := ghostCandidates(tx.ListPending())
		deleted := make(map[string]struct{})
		for _, d := range tx.PendingDeletes() {
			deleted[d.ID] = struct{}{}
		}
		claimed := make(map[string]struct{})

		for _, r := range remote {
			if r.ID == "" || !r.ActivityType.Valid() {
				e.logger.Warn("skipping unusable remote record", slog.String("id", r.ID), slog.String("activity_type", string(r.ActivityType)))
				summary[OutcomeSkipped]++
				continue
			}

			if _, exists := tx.Get(r.ID); exists {
				summary[OutcomeKept]++
				continue
			}
			if _, queued := deleted[r.ID]; queued {
				e.logger.Debug("remote record deleted locally", slog.String("id", r.ID))
				summary[OutcomeKept]++
				continue
			}

			if ghost, ok := findGhost(candidates, claimed, r); ok {
				if err := tx.Confirm(ghost.ID, r.ID); err != nil {
					return err
				}
				claimed[ghost.ID] = struct{}{}
				e.logger.Debug("ghost confirmed", slog.String("local_id", ghost.ID), slog.String("remote_id", r.ID))
				summary[OutcomeGhost]++
				continue
			}

			if err := tx.Insert(r); err != nil {
				return err
			}
			summary[OutcomeInserted]++
		}

		watermark.IfPresent(func(at time.Time) {
			if last := tx.LastPull(); last.IsEmpty() || at.After(last.MustGet()) {
				tx.SetLastPull(at)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for outcome, n := range summary {
		recordOutcome(outcome, n)
	}
	e.logger.Info("merge applied",
		slog.Int("received", len(remote)),
		slog.Int("kept_local", summary[OutcomeKept]),
		slog.Int("ghosts", summary[OutcomeGhost]),
		slog.Int("inserted", summary[OutcomeInserted]),
	)
	return summary, nil
}

// ghostCandidates keeps the records that never reached the remote store. A record
// edited after a sync is pending too, but its id is already remote-assigned.
func ghostCandidates(pending []domain.Record) []domain.Record {
	out := pending[:0]
	for _, r := range pending {
		if r.SyncedAt.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

func findGhost(candidates []domain.Record, claimed map[string]struct{}, r domain.Record) (domain.Record, bool) {
	for _, local := range candidates {
		if _, taken := claimed[local.ID]; taken {
			continue
		}
		if domain.SameSession(local, r) {
			return local, true
		}
	}
	return domain.Record{}, false
}
