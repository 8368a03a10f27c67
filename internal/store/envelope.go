package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"

	"example.com/trainingsync/internal/domain"
)

// SchemaVersion tags every blob the store writes. Blobs without a tag are
// treated as version 0 and upgraded on the next write.
const SchemaVersion = 1

type recordsEnvelope struct {
	Version int             `json:"version"`
	Records []domain.Record `json:"records"`
}

type deletesEnvelope struct {
	Version int             `json:"version"`
	Deletes []PendingDelete `json:"deletes"`
}

type cursorEnvelope struct {
	Version  int       `json:"version"`
	LastPull time.Time `json:"lastPull"`
}

// PendingDelete is a record removed locally that may still exist remotely.
// ActivityType is empty for entries written before the category was recorded.
type PendingDelete struct {
	ID           string
	ActivityType optional.Value[domain.ActivityType]
}

type pendingDeleteJSON struct {
	ID           string              `json:"id"`
	ActivityType domain.ActivityType `json:"activityType,omitempty"`
}

// MarshalJSON omits the activity type when it is unknown.
func (d PendingDelete) MarshalJSON() ([]byte, error) {
	return json.Marshal(pendingDeleteJSON{ID: d.ID, ActivityType: d.ActivityType.OrZeroValue()})
}

// UnmarshalJSON accepts both the object form and a bare id string.
func (d *PendingDelete) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*d = PendingDelete{ID: id}
		return nil
	}

	var decoded pendingDeleteJSON
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*d = PendingDelete{ID: decoded.ID}
	if decoded.ActivityType != "" {
		d.ActivityType = optional.Some(decoded.ActivityType)
	}
	return nil
}

func decodeRecords(data []byte) ([]domain.Record, error) {
	if isLegacyArray(data) {
		var records []domain.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode legacy records: %w", err)
		}
		return records, nil
	}

	var env recordsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if err := checkVersion(env.Version); err != nil {
		return nil, err
	}
	return env.Records, nil
}

func encodeRecords(records []domain.Record) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	return json.Marshal(recordsEnvelope{Version: SchemaVersion, Records: records})
}

func decodeDeletes(data []byte) ([]PendingDelete, error) {
	if isLegacyArray(data) {
		var deletes []PendingDelete
		if err := json.Unmarshal(data, &deletes); err != nil {
			return nil, fmt.Errorf("decode legacy pending deletes: %w", err)
		}
		return deletes, nil
	}

	var env deletesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode pending deletes: %w", err)
	}
	if err := checkVersion(env.Version); err != nil {
		return nil, err
	}
	return env.Deletes, nil
}

func encodeDeletes(deletes []PendingDelete) ([]byte, error) {
	if deletes == nil {
		deletes = []PendingDelete{}
	}
	return json.Marshal(deletesEnvelope{Version: SchemaVersion, Deletes: deletes})
}

func decodeCursor(data []byte) (optional.Value[time.Time], error) {
	var env cursorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return optional.Empty[time.Time](), fmt.Errorf("decode pull cursor: %w", err)
	}
	if err := checkVersion(env.Version); err != nil {
		return optional.Empty[time.Time](), err
	}
	if env.LastPull.IsZero() {
		return optional.Empty[time.Time](), nil
	}
	return optional.Some(env.LastPull), nil
}

func encodeCursor(lastPull time.Time) ([]byte, error) {
	return json.Marshal(cursorEnvelope{Version: SchemaVersion, LastPull: lastPull.UTC()})
}

type deviceEnvelope struct {
	Version  int    `json:"version"`
	DeviceID string `json:"deviceId"`
}

func decodeDeviceID(data []byte) (string, error) {
	var env deviceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode device id: %w", err)
	}
	if err := checkVersion(env.Version); err != nil {
		return "", err
	}
	if env.DeviceID == "" {
		return "", fmt.Errorf("decode device id: empty id")
	}
	return env.DeviceID, nil
}

func encodeDeviceID(id string) ([]byte, error) {
	return json.Marshal(deviceEnvelope{Version: SchemaVersion, DeviceID: id})
}

func isLegacyArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func checkVersion(version int) error {
	if version > SchemaVersion {
		return fmt.Errorf("blob schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	return nil
}
