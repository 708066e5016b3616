package models

import (
	"strings"
	"time"
)

// Draft is the in-memory, possibly-unsaved representation of an entry being
// edited. A draft starts life with a temporary identifier; the permanent one
// is assigned by the mutation service on first successful save.
type Draft struct {
	EntryID string

	Title string
	Body  string

	StreamID   *string
	Status     EntryStatus
	Type       EntryType
	DueDate    *time.Time
	Rating     int
	Priority   int
	IsPinned   bool
	IsArchived bool

	EntryDate        time.Time
	EntryDateHasTime bool

	Location Location

	// Attachments captured for this draft. While EntryID is temporary these
	// are staged under temporary paths.
	Attachments []*Attachment
}

// NewDraft creates a fresh draft with a temporary identifier. seed, when
// non-nil, pre-populates editable fields (e.g. a calendar slot's date).
func NewDraft(seed *Draft) *Draft {
	d := &Draft{}
	if seed != nil {
		*d = *seed
	}
	d.EntryID = NewTempID()
	if d.Type == "" {
		d.Type = EntryTypeNote
	}
	if d.EntryDate.IsZero() {
		d.EntryDate = time.Now()
	}
	return d
}

// DraftFromEntry builds a draft mirroring a durable entry's editable fields.
// Used when loading an entry into an editing session and as the dirty-check
// baseline.
func DraftFromEntry(e *Entry) *Draft {
	d := &Draft{
		EntryID:          e.Id,
		Title:            e.Title,
		Body:             e.Body,
		StreamID:         e.StreamID,
		Status:           e.Status,
		Type:             e.Type,
		DueDate:          e.DueDate,
		Rating:           e.Rating,
		Priority:         e.Priority,
		IsPinned:         e.IsPinned,
		IsArchived:       e.IsArchived,
		EntryDate:        e.EntryDate,
		EntryDateHasTime: e.EntryDateHasTime,
		Location:         e.Location,
	}
	d.Attachments = append(d.Attachments, e.Attachments...)
	return d
}

// Clone returns a copy of the draft that shares no mutable state with the
// original except the attachment records themselves.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Attachments = append([]*Attachment(nil), d.Attachments...)
	if d.StreamID != nil {
		v := *d.StreamID
		c.StreamID = &v
	}
	if d.DueDate != nil {
		v := *d.DueDate
		c.DueDate = &v
	}
	if d.Location.Latitude != nil {
		v := *d.Location.Latitude
		c.Location.Latitude = &v
	}
	if d.Location.Longitude != nil {
		v := *d.Location.Longitude
		c.Location.Longitude = &v
	}
	return &c
}

// EqualEditable reports whether two drafts agree on every user-editable
// field. The session uses this against its baseline to decide dirtiness.
func (d *Draft) EqualEditable(o *Draft) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Title != o.Title || d.Body != o.Body {
		return false
	}
	if !equalStringPtr(d.StreamID, o.StreamID) {
		return false
	}
	if d.Status != o.Status || d.Type != o.Type {
		return false
	}
	if !equalTimePtr(d.DueDate, o.DueDate) {
		return false
	}
	if d.Rating != o.Rating || d.Priority != o.Priority {
		return false
	}
	if d.IsPinned != o.IsPinned || d.IsArchived != o.IsArchived {
		return false
	}
	if !d.EntryDate.Equal(o.EntryDate) || d.EntryDateHasTime != o.EntryDateHasTime {
		return false
	}
	if !equalLocation(d.Location, o.Location) {
		return false
	}
	if len(d.Attachments) != len(o.Attachments) {
		return false
	}
	for i := range d.Attachments {
		if d.Attachments[i].Id != o.Attachments[i].Id {
			return false
		}
	}
	return true
}

// HasContent reports whether the draft carries anything worth persisting:
// a title, a non-empty body after stripping markup, at least one attachment,
// or a captured location. Blank drafts produced by autosave are discarded.
func (d *Draft) HasContent() bool {
	if strings.TrimSpace(d.Title) != "" {
		return true
	}
	if StripMarkup(d.Body) != "" {
		return true
	}
	if len(d.Attachments) > 0 {
		return true
	}
	return d.Location.IsSet()
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalLocation(a, b Location) bool {
	return equalFloatPtr(a.Latitude, b.Latitude) &&
		equalFloatPtr(a.Longitude, b.Longitude) &&
		a.PlaceName == b.PlaceName &&
		a.Street == b.Street &&
		a.City == b.City &&
		a.Region == b.Region &&
		a.Country == b.Country &&
		a.Geocode == b.Geocode
}
