// Package models defines the client-side data model for Trace: journal
// entries, their attachments, and the in-memory drafts edited by the UI.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies an entry kind.
type EntryType string

const (
	EntryTypeNote  EntryType = "note"
	EntryTypeTask  EntryType = "task"
	EntryTypeEvent EntryType = "event"
)

// EntryStatus is the workflow state of an entry (mostly used by tasks).
type EntryStatus string

const (
	EntryStatusNone      EntryStatus = ""
	EntryStatusOpen      EntryStatus = "open"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// SyncAction is the pending operation the sync channel must deliver remotely.
type SyncAction string

const (
	SyncActionNone   SyncAction = ""
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
	SyncActionDelete SyncAction = "delete"
)

// GeocodeStatus describes how an entry's location was resolved.
type GeocodeStatus string

const (
	GeocodeStatusNone    GeocodeStatus = ""
	GeocodeStatusSnapped GeocodeStatus = "snapped"
	GeocodeStatusSuccess GeocodeStatus = "success"
	GeocodeStatusNoData  GeocodeStatus = "no_data"
	GeocodeStatusError   GeocodeStatus = "error"
)

// Location is the flat set of optional location fields attached to an entry.
type Location struct {
	Latitude  *float64
	Longitude *float64
	PlaceName string
	Street    string
	City      string
	Region    string
	Country   string
	Geocode   GeocodeStatus
}

// IsSet reports whether any location information was captured.
func (l Location) IsSet() bool {
	return (l.Latitude != nil && l.Longitude != nil) || l.PlaceName != ""
}

// Entry is the primary unit of content, persisted locally and synced across
// devices. Version is a monotonic counter incremented by exactly one on every
// successful write, local or remote; it never regresses within a session.
type Entry struct {
	Id string

	// Content.
	Title    string
	Body     string
	Tags     []string // derived from Body on every save, not independently editable
	Mentions []string // derived from Body on every save

	// Classification.
	StreamID   *string
	Status     EntryStatus
	Type       EntryType
	DueDate    *time.Time
	Rating     int
	Priority   int
	IsPinned   bool
	IsArchived bool

	// Temporal.
	EntryDate        time.Time
	EntryDateHasTime bool
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Location Location

	// Sync bookkeeping.
	Version          int64
	Synced           bool
	SyncAction       SyncAction
	LastEditedBy     string
	LastEditedDevice string

	// Reserved for a deferred pre-save conflict UI; never written by the
	// resolved last-write-wins flow.
	ConflictStatus string
	ConflictBackup []byte

	// Attachments are loaded alongside the entry; not a column.
	Attachments []*Attachment
}

// TempIDPrefix marks locally-generated placeholder identifiers. An id with
// this prefix must never be sent remotely or reach a durable attachment row.
const TempIDPrefix = "tmp-"

// NewTempID returns a fresh temporary placeholder identifier for a draft.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// NewEntryID returns a permanent entry identifier, assigned on first save.
func NewEntryID() string {
	return uuid.NewString()
}

// IsTempID reports whether id is a temporary placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// IsDeleted reports whether the entry is a tombstone awaiting remote deletion.
func (e *Entry) IsDeleted() bool {
	return e.SyncAction == SyncActionDelete
}
