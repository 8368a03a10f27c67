package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
)

// Keys owned by the record envelope. Payload fields never shadow them.
const (
	KeyID           = "id"
	KeyActivityType = "activityType"
	KeyDate         = "date"
	KeyTime         = "time"
	KeyCreatedAt    = "createdAt"
	KeyUpdatedAt    = "updatedAt"
	KeySyncStatus   = "syncStatus"
	KeySyncedAt     = "syncedAt"
)

var reservedKeys = map[string]struct{}{
	KeyID:           {},
	KeyActivityType: {},
	KeyDate:         {},
	KeyTime:         {},
	KeyCreatedAt:    {},
	KeyUpdatedAt:    {},
	KeySyncStatus:   {},
	KeySyncedAt:     {},
}

// IsReservedKey reports whether key belongs to the record envelope rather than the payload.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// MarshalJSON writes the record as a flat object: payload fields sit beside the
// envelope keys, and absent optionals are omitted rather than written as null.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Fields)+len(reservedKeys))
	for key, raw := range r.Fields {
		if IsReservedKey(key) || isNull(raw) {
			continue
		}
		out[key] = raw
	}

	put := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}

	if err := put(KeyID, r.ID); err != nil {
		return nil, err
	}
	if err := put(KeyActivityType, r.ActivityType); err != nil {
		return nil, err
	}
	if err := put(KeyDate, r.Date); err != nil {
		return nil, err
	}
	if r.Time.IsPresent() {
		if err := put(KeyTime, r.Time.MustGet()); err != nil {
			return nil, err
		}
	}
	if err := put(KeyCreatedAt, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := put(KeyUpdatedAt, r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := put(KeySyncStatus, r.SyncStatus); err != nil {
		return nil, err
	}
	if r.SyncedAt.IsPresent() {
		if err := put(KeySyncedAt, r.SyncedAt.MustGet()); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat object written by MarshalJSON. Unknown keys become payload fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Record
	if err := decodeKey(raw, KeyID, &decoded.ID); err != nil {
		return err
	}
	if err := decodeKey(raw, KeyActivityType, &decoded.ActivityType); err != nil {
		return err
	}
	if err := decodeKey(raw, KeyDate, &decoded.Date); err != nil {
		return err
	}
	if err := decodeKey(raw, KeyCreatedAt, &decoded.CreatedAt); err != nil {
		return err
	}
	if err := decodeKey(raw, KeyUpdatedAt, &decoded.UpdatedAt); err != nil {
		return err
	}
	if err := decodeKey(raw, KeySyncStatus, &decoded.SyncStatus); err != nil {
		return err
	}

	var clock string
	if err := decodeKey(raw, KeyTime, &clock); err != nil {
		return err
	}
	if clock != "" {
		decoded.Time = optional.Some(clock)
	}

	var syncedAt time.Time
	if err := decodeKey(raw, KeySyncedAt, &syncedAt); err != nil {
		return err
	}
	if !syncedAt.IsZero() {
		decoded.SyncedAt = optional.Some(syncedAt)
	}

	for key, value := range raw {
		if IsReservedKey(key) || isNull(value) {
			continue
		}
		if decoded.Fields == nil {
			decoded.Fields = make(Fields)
		}
		decoded.Fields[key] = append(json.RawMessage(nil), value...)
	}

	*r = decoded
	return nil
}

func decodeKey(raw map[string]json.RawMessage, key string, dst any) error {
	value, ok := raw[key]
	if !ok || isNull(value) {
		return nil
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
