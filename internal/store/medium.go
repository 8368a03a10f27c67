package store

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by a Medium when nothing is stored under a key.
var ErrKeyNotFound = errors.New("storage key not found")

// Entry is one key/value pair written to a Medium.
type Entry struct {
	Key   string
	Value []byte
}

// Medium is the persistence backend behind a Store. Write must apply all entries atomically.
type Medium interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, entries ...Entry) error
}

// MemoryMedium keeps blobs in process memory. Failures can be injected for tests.
type MemoryMedium struct {
	mu       sync.Mutex
	data     map[string][]byte
	readErr  error
	writeErr error
	writes   int
}

// NewMemoryMedium constructs an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{data: make(map[string][]byte)}
}

// Read returns a copy of the blob stored under key.
func (m *MemoryMedium) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	value, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Write stores every entry or none of them.
func (m *MemoryMedium) Write(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	for _, entry := range entries {
		m.data[entry.Key] = append([]byte(nil), entry.Value...)
	}
	m.writes++
	return nil
}

// Seed stores value under key without counting it as a write.
func (m *MemoryMedium) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Raw returns the blob under key, or nil.
func (m *MemoryMedium) Raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data[key]...)
}

// FailReads makes every subsequent Read return err. A nil err clears the failure.
func (m *MemoryMedium) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every subsequent Write return err. A nil err clears the failure.
func (m *MemoryMedium) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes reports how many successful writes have been applied.
func (m *MemoryMedium) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
