package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"

	"example.com/trainingsync/internal/domain"
)

// Document is the JSON object stored remotely for one record.
type Document map[string]json.RawMessage

// DocumentFor serializes r for the remote store. Null payload values and absent
// optionals are dropped, and local bookkeeping never leaves the device.
func DocumentFor(r domain.Record) (Document, error) {
	doc := make(Document, len(r.Fields)+3)
	for key, raw := range r.Fields {
		if domain.IsReservedKey(key) || isNull(raw) {
			continue
		}
		doc[key] = append(json.RawMessage(nil), raw...)
	}

	if err := doc.set(domain.KeyActivityType, r.ActivityType); err != nil {
		return nil, err
	}
	if err := doc.set(domain.KeyDate, r.Date); err != nil {
		return nil, err
	}
	if r.Time.IsPresent() {
		if err := doc.set(domain.KeyTime, r.Time.MustGet()); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// RecordFromDocument rebuilds a record from a stored document.
func RecordFromDocument(id string, doc Document, createdAt, updatedAt time.Time) (domain.Record, error) {
	r := domain.Record{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Fields:    make(domain.Fields, len(doc)),
	}

	if err := doc.get(domain.KeyActivityType, &r.ActivityType); err != nil {
		return domain.Record{}, err
	}
	if err := doc.get(domain.KeyDate, &r.Date); err != nil {
		return domain.Record{}, err
	}
	var clock string
	if err := doc.get(domain.KeyTime, &clock); err != nil {
		return domain.Record{}, err
	}
	if clock != "" {
		r.Time = optional.Some(clock)
	}

	for key, raw := range doc {
		if domain.IsReservedKey(key) || isNull(raw) {
			continue
		}
		r.Fields[key] = append(json.RawMessage(nil), raw...)
	}
	return r, nil
}

// Merge returns doc with patch applied on top, the way an upsert merges into an existing document.
func (doc Document) Merge(patch Document) Document {
	out := make(Document, len(doc)+len(patch))
	for key, raw := range doc {
		out[key] = raw
	}
	for key, raw := range patch {
		out[key] = raw
	}
	return out
}

func (doc Document) set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	doc[key] = raw
	return nil
}

func (doc Document) get(key string, dst any) error {
	raw, ok := doc[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
