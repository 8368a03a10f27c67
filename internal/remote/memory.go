package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"

	"example.com/trainingsync/internal/domain"
)

// Op names a remote store operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Call is one operation observed by MemoryStore.
type Call struct {
	Op         Op
	Collection string
	ID         string
}

type storedDocument struct {
	doc       Document
	createdAt time.Time
	updatedAt time.Time
}

type failure struct {
	op  Op
	id  string
	err error
}

// MemoryStore is an in-process Store for local development and tests. It records
// every call and can be told to fail specific operations.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string]storedDocument
	calls    []Call
	failures []failure
	assignID func(collection, key string) string
	now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]storedDocument),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for document timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AssignIDs makes Create store documents under fn(collection, key) instead of key,
// the way a store with server-generated ids behaves.
func (m *MemoryStore) AssignIDs(fn func(collection, key string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignID = fn
}

// FailOn makes op return err for id. An empty id matches every id.
func (m *MemoryStore) FailOn(op Op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{op: op, id: id, err: err})
}

// ClearFailures removes every injected failure.
func (m *MemoryStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// Calls returns every call observed so far.
func (m *MemoryStore) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// Seed stores doc under id without recording a call.
func (m *MemoryStore) Seed(collection, id string, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.collection(collection)[id] = storedDocument{doc: doc.Merge(nil), createdAt: now, updatedAt: now}
}

// Document returns the document stored under id.
func (m *MemoryStore) Document(collection, id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.docs[collection][id]
	if !ok {
		return nil, false
	}
	return stored.doc.Merge(nil), true
}

// IDs returns the sorted document ids of a collection.
func (m *MemoryStore) IDs(collection string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs[collection]))
	for id := range m.docs[collection] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, collection, key string, doc Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpCreate, Collection: collection, ID: key})
	if err := m.failure(OpCreate, key); err != nil {
		return "", err
	}

	id := key
	if m.assignID != nil {
		id = m.assignID(collection, key)
	}

	now := m.now()
	docs := m.collection(collection)
	stored, exists := docs[id]
	if !exists {
		stored = storedDocument{doc: Document{}, createdAt: now}
	}
	stored.doc = stored.doc.Merge(doc)
	stored.updatedAt = now
	docs[id] = stored
	return id, nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, collection, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpUpdate, Collection: collection, ID: id})
	if err := m.failure(OpUpdate, id); err != nil {
		return err
	}

	docs := m.collection(collection)
	stored, ok := docs[id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
	}
	stored.doc = stored.doc.Merge(doc)
	stored.updatedAt = m.now()
	docs[id] = stored
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpDelete, Collection: collection, ID: id})
	if err := m.failure(OpDelete, id); err != nil {
		return err
	}

	docs := m.collection(collection)
	if _, ok := docs[id]; !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
	}
	delete(docs, id)
	return nil
}

// List implements Store. Full listings are ordered by date descending; delta listings by modification time.
func (m *MemoryStore) List(_ context.Context, collection string, since optional.Value[time.Time]) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpList, Collection: collection})
	if err := m.failure(OpList, ""); err != nil {
		return nil, err
	}

	out := make([]domain.Record, 0, len(m.docs[collection]))
	for id, stored := range m.docs[collection] {
		if since.IsPresent() && !stored.updatedAt.After(since.MustGet()) {
			continue
		}
		r, err := RecordFromDocument(id, stored.doc, stored.createdAt, stored.updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if since.IsPresent() {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.Before(out[j].UpdatedAt)
			}
			return out[i].ID < out[j].ID
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Date != out[j].Date {
				return out[i].Date > out[j].Date
			}
			return out[i].ID < out[j].ID
		})
	}
	return out, nil
}

func (m *MemoryStore) collection(name string) map[string]storedDocument {
	docs, ok := m.docs[name]
	if !ok {
		docs = make(map[string]storedDocument)
		m.docs[name] = docs
	}
	return docs
}

func (m *MemoryStore) failure(op Op, id string) error {
	for _, f := range m.failures {
		if f.op == op && (f.id == "" || f.id == id) {
			return f.err
		}
	}
	return nil
}
