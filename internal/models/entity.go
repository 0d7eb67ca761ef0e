package models

import (
	"fmt"
	"time"
)

// EntityKind names a remote collection the console edits
type EntityKind string

const (
	KindVisitor EntityKind = "visitor"
	KindEvent   EntityKind = "event"
)

const (
	FieldID        = "id"
	FieldUpdatedAt = "updated_at"
)

// Entity is a remote record as decoded from the backend's JSON
type Entity map[string]any

// ID returns the entity id as a string, accepting numeric ids
func (e Entity) ID() string {
	switch v := e[FieldID].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// UpdatedAt parses the version stamp. ok is false when absent or malformed.
func (e Entity) UpdatedAt() (time.Time, bool) {
	switch v := e[FieldUpdatedAt].(type) {
	case string:
		t, err := ParseTimestamp(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// Clone makes a shallow copy
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// FormatTimestamp renders t the way the backend stamps updated_at
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts RFC3339 with or without fractional seconds
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
