package schema

import (
	"errors"
	"fmt"
	"time"
)

// SyncStatus is the local-only sync state of a record.
type SyncStatus string

const (
	// StatusSynced means the server has accepted the current local version.
	StatusSynced SyncStatus = "synced"
	// StatusPending means the record changed locally and awaits a sync cycle.
	StatusPending SyncStatus = "pending"
	// StatusFailed means the server rejected the record. It is not retried
	// until a local edit marks it pending again.
	StatusFailed SyncStatus = "failed"
)

// IsValid reports whether s is one of the known statuses.
func (s SyncStatus) IsValid() bool {
	switch s {
	case StatusSynced, StatusPending, StatusFailed:
		return true
	}
	return false
}

// Statuses lists every status in display order.
var Statuses = []SyncStatus{StatusSynced, StatusPending, StatusFailed}

// TimestampLayout is the ISO-8601 form used for createdAt, updatedAt and
// deletedAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DateLayout is the calendar date form used by logs, goals and tasks.
const DateLayout = "2006-01-02"

// Timestamp formats t as an ISO-8601 UTC string.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Meta holds the fields shared by every synchronized record.
type Meta struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
	DeletedAt *string `json:"deletedAt"`
}

// RecordID returns the record id.
func (m Meta) RecordID() string { return m.ID }

// IsDeleted reports whether the record has been soft-deleted.
func (m Meta) IsDeleted() bool { return m.DeletedAt != nil }

// Base gives mutable access to the shared fields.
func (m *Meta) Base() *Meta { return m }

// Touch stamps UpdatedAt.
func (m *Meta) Touch(now time.Time) {
	m.UpdatedAt = Timestamp(now)
}

// MarkDeleted sets DeletedAt and UpdatedAt to now.
func (m *Meta) MarkDeleted(now time.Time) {
	ts := Timestamp(now)
	m.DeletedAt = &ts
	m.UpdatedAt = ts
}

// Record is satisfied by every synchronized record value.
type Record interface {
	RecordID() string
}

// Entity is satisfied by pointers to synchronized records. The local store
// uses it to read and stamp the shared fields and to maintain its indexes.
type Entity[T any] interface {
	*T
	Base() *Meta
	// ParentID returns the owning activity id, or "" for top-level records.
	ParentID() string
	// SortKey orders GetAll results.
	SortKey() string
	Validate() error
}

// ErrLocalOnly is returned when a Syncable is encoded to JSON. Send
// Payloads(rows) instead.
var ErrLocalOnly = errors.New("schema: Syncable is local state and cannot be encoded; send Payloads(rows)")

// Syncable pairs a record with its local sync status. Encoding it to JSON
// fails, so the status cannot reach the wire; see Payloads.
type Syncable[T any] struct {
	Record     T          `json:"-"`
	SyncStatus SyncStatus `json:"-"`
}

// MarshalJSON always fails with ErrLocalOnly.
func (s Syncable[T]) MarshalJSON() ([]byte, error) {
	return nil, ErrLocalOnly
}

// Payloads projects syncable rows onto the bare records sent to the server.
func Payloads[T any](rows []Syncable[T]) []T {
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = row.Record
	}
	return out
}

// IDs returns the record ids of rows, in order.
func IDs[T Record](rows []Syncable[T]) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.Record.RecordID()
	}
	return out
}
