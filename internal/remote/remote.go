// Package remote describes the multi-device document store records are synced to.
package remote

import (
	"context"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"

	"example.com/trainingsync/internal/domain"
)

// Store is the remote document store, addressed per collection.
//
// Create upserts at key and returns the id the store assigned, which may differ from key.
// Update and Delete return domain.ErrNotFound for a missing document. List returns
// every document, or only those modified after since when it is present.
type Store interface {
	Create(ctx context.Context, collection, key string, doc Document) (string, error)
	Update(ctx context.Context, collection, id string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, since optional.Value[time.Time]) ([]domain.Record, error)
}
