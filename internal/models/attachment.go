package models

import (
	"path"
	"path/filepath"
	"time"
)

// UploadStatus tracks whether an attachment's bytes have reached remote
// storage.
type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusCompleted UploadStatus = "completed"
)

// Attachment is a photo or file bound to exactly one entry.
//
// The attachment id is generated client-side at capture time and does not
// change when the owning entry's identifier is migrated from temporary to
// permanent; only the paths are rewritten.
type Attachment struct {
	Id      string
	EntryID string

	// FilePath is the remote-relative storage path; LocalPath is the
	// on-device cache path. Both contain the owning entry's identifier as
	// a path segment and are rebuilt from the path template on migration.
	FilePath  string
	LocalPath string

	MimeType string
	FileSize int64
	Width    int
	Height   int

	// Position is the zero-based capture order within the entry. It is
	// assigned once and never renumbered on deletion; gaps are permitted.
	Position int

	UploadStatus UploadStatus
	CreatedAt    time.Time
}

// NewAttachmentID returns a permanent attachment identifier.
func NewAttachmentID() string {
	return NewEntryID()
}

// RemoteAttachmentPath builds the remote-relative storage path from the
// explicit {owner}/{attachment}.{ext} template. Paths are always constructed
// from the template, never derived by substring replacement, so owner-id
// migration is a structured field update.
func RemoteAttachmentPath(ownerID, attachmentID, ext string) string {
	return path.Join("entries", ownerID, "attachments", attachmentID+ext)
}

// LocalAttachmentPath builds the on-device cache path for an attachment.
func LocalAttachmentPath(cacheDir, ownerID, attachmentID, ext string) string {
	return filepath.Join(cacheDir, ownerID, attachmentID+ext)
}

// Ext returns the attachment's file extension (with leading dot), derived
// from its current local path.
func (a *Attachment) Ext() string {
	return filepath.Ext(a.LocalPath)
}
