// Package remote implements the device-side client of the journal sync
// backend: a JSON-over-HTTP API plus direct uploads of attachment bytes to
// presigned storage URLs.
package remote

import (
	"context"
	"time"

	"github.com/mindjig/trace-core/internal/models"
)

// Change is one remotely-originated entry state pulled from the backend.
// Deleted rows arrive as explicit tombstones so devices can cascade local
// cleanup.
type Change struct {
	Entry       *models.Entry
	Attachments []*models.Attachment
	Deleted     bool
}

// PullResult is a page of remote changes plus the cursor to resume from.
type PullResult struct {
	Changes []Change
	Cursor  string
}

// Client is the sync channel's view of the backend. Implementations map
// transport failures to common.ErrUnavailable and auth failures to
// common.ErrUnauthorized so the channel can decide between backing off and
// re-authenticating.
type Client interface {
	// Ping checks connectivity; used by the online-status watcher.
	Ping(ctx context.Context) error

	// PushEntry delivers a created or updated entry with its attachment
	// records. The backend treats re-delivery of an already-seen version as
	// a no-op.
	PushEntry(ctx context.Context, e *models.Entry, attachments []*models.Attachment) error

	// PushDelete delivers a tombstone. Deleting an id the backend has never
	// seen succeeds.
	PushDelete(ctx context.Context, entryID string, version int64) error

	// PullSince returns remote changes after cursor (empty cursor = from the
	// beginning) and the cursor for the next pull.
	PullSince(ctx context.Context, cursor string) (*PullResult, error)

	// GetUploadURL presigns an upload for a remote-relative attachment path.
	GetUploadURL(ctx context.Context, filePath string) (string, error)

	// UploadAttachment PUTs attachment bytes to a presigned URL.
	UploadAttachment(ctx context.Context, url string, data []byte) error
}

// wire shapes of the JSON API.

type wireLocation struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	PlaceName string   `json:"place_name,omitempty"`
	Street    string   `json:"street,omitempty"`
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Geocode   string   `json:"geocode_status,omitempty"`
}

type wireAttachment struct {
	ID       string `json:"id"`
	EntryID  string `json:"entry_id"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Position int    `json:"position"`
}

type wireEntry struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Body             string           `json:"body"`
	Tags             []string         `json:"tags"`
	Mentions         []string         `json:"mentions"`
	StreamID         *string          `json:"stream_id,omitempty"`
	Status           string           `json:"status,omitempty"`
	Type             string           `json:"type"`
	DueDate          *time.Time       `json:"due_date,omitempty"`
	Rating           int              `json:"rating,omitempty"`
	Priority         int              `json:"priority,omitempty"`
	IsPinned         bool             `json:"is_pinned,omitempty"`
	IsArchived       bool             `json:"is_archived,omitempty"`
	EntryDate        time.Time        `json:"entry_date"`
	EntryDateHasTime bool             `json:"entry_date_has_time"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Location         wireLocation     `json:"location"`
	Version          int64            `json:"version"`
	DeviceID         string           `json:"device_id"`
	EditedBy         string           `json:"edited_by"`
	Attachments      []wireAttachment `json:"attachments,omitempty"`
	Deleted          bool             `json:"deleted,omitempty"`
}

func toWireEntry(e *models.Entry, attachments []*models.Attachment) wireEntry {
	w := wireEntry{
		ID:               e.Id,
		Title:            e.Title,
		Body:             e.Body,
		Tags:             e.Tags,
		Mentions:         e.Mentions,
		StreamID:         e.StreamID,
		Status:           string(e.Status),
		Type:             string(e.Type),
		DueDate:          e.DueDate,
		Rating:           e.Rating,
		Priority:         e.Priority,
		IsPinned:         e.IsPinned,
		IsArchived:       e.IsArchived,
		EntryDate:        e.EntryDate,
		EntryDateHasTime: e.EntryDateHasTime,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		Location: wireLocation{
			Latitude:  e.Location.Latitude,
			Longitude: e.Location.Longitude,
			PlaceName: e.Location.PlaceName,
			Street:    e.Location.Street,
			City:      e.Location.City,
			Region:    e.Location.Region,
			Country:   e.Location.Country,
			Geocode:   string(e.Location.Geocode),
		},
		Version:  e.Version,
		DeviceID: e.LastEditedDevice,
		EditedBy: e.LastEditedBy,
	}
	for _, a := range attachments {
		w.Attachments = append(w.Attachments, wireAttachment{
			ID:       a.Id,
			EntryID:  a.EntryID,
			FilePath: a.FilePath,
			MimeType: a.MimeType,
			FileSize: a.FileSize,
			Width:    a.Width,
			Height:   a.Height,
			Position: a.Position,
		})
	}
	return w
}

func fromWireEntry(w wireEntry) Change {
	c := Change{
		Entry: &models.Entry{
			Id:               w.ID,
			Title:            w.Title,
			Body:             w.Body,
			Tags:             w.Tags,
			Mentions:         w.Mentions,
			StreamID:         w.StreamID,
			Status:           models.EntryStatus(w.Status),
			Type:             models.EntryType(w.Type),
			DueDate:          w.DueDate,
			Rating:           w.Rating,
			Priority:         w.Priority,
			IsPinned:         w.IsPinned,
			IsArchived:       w.IsArchived,
			EntryDate:        w.EntryDate,
			EntryDateHasTime: w.EntryDateHasTime,
			CreatedAt:        w.CreatedAt,
			UpdatedAt:        w.UpdatedAt,
			Location: models.Location{
				Latitude:  w.Location.Latitude,
				Longitude: w.Location.Longitude,
				PlaceName: w.Location.PlaceName,
				Street:    w.Location.Street,
				City:      w.Location.City,
				Region:    w.Location.Region,
				Country:   w.Location.Country,
				Geocode:   models.GeocodeStatus(w.Location.Geocode),
			},
			Version:          w.Version,
			LastEditedDevice: w.DeviceID,
			LastEditedBy:     w.EditedBy,
		},
		Deleted: w.Deleted,
	}
	for _, a := range w.Attachments {
		c.Attachments = append(c.Attachments, &models.Attachment{
			Id:       a.ID,
			EntryID:  a.EntryID,
			FilePath: a.FilePath,
			MimeType: a.MimeType,
			FileSize: a.FileSize,
			Width:    a.Width,
			Height:   a.Height,
			Position: a.Position,
		})
	}
	return c
}
