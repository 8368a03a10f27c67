package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields holds the type-specific payload of a record. Values are kept as raw JSON
// so the sync engine copies them verbatim without interpreting their shape.
type Fields map[string]json.RawMessage

// String returns the string stored under key. Absent, null, empty and non-string values report false.
func (f Fields) String(key string) (string, bool) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil || value == "" {
		return "", false
	}
	return value, true
}

// Len returns the length of the JSON array stored under key.
func (f Fields) Len(key string) (int, bool) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, false
	}
	return len(items), true
}

// Set marshals value and stores it under key.
func (f Fields) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field %q: %w", key, err)
	}
	f[key] = raw
	return nil
}

// Clone deep-copies the payload.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for key, raw := range f {
		out[key] = append(json.RawMessage(nil), raw...)
	}
	return out
}

// Merge applies patch on top of f. A JSON null in patch removes the key.
func (f Fields) Merge(patch Fields) Fields {
	out := f.Clone()
	if out == nil {
		out = make(Fields, len(patch))
	}
	for key, raw := range patch {
		if isNull(raw) {
			delete(out, key)
			continue
		}
		out[key] = append(json.RawMessage(nil), raw...)
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
