// Package attachments implements local persistence of entry attachments.
package attachments

import (
	"context"

	"github.com/mindjig/trace-core/internal/models"
)

// Repository describes CRUD operations for durable attachment rows.
//
// Staged attachments (owned by a draft with a temporary identifier) never
// appear here; a row only becomes durable after path migration has rewritten
// it to the permanent owner identifier.
type Repository interface {
	// Insert writes a durable attachment row.
	Insert(ctx context.Context, a *models.Attachment) error

	// ListByEntry returns all attachments of an entry in position order.
	ListByEntry(ctx context.Context, entryID string) ([]*models.Attachment, error)

	// ListPendingUpload returns attachments whose bytes have not yet reached
	// remote storage, oldest first. Attachments of tombstoned entries are
	// excluded (the remote deletion cascades them).
	ListPendingUpload(ctx context.Context) ([]*models.Attachment, error)

	// MarkUploaded flags an attachment's bytes as delivered.
	MarkUploaded(ctx context.Context, id string) error

	// DeleteByEntry removes all attachment rows of an entry and returns the
	// local cache paths of the removed rows so the caller can delete the
	// files as well.
	DeleteByEntry(ctx context.Context, entryID string) ([]string, error)

	// Delete removes a single attachment row.
	Delete(ctx context.Context, id string) error
}
