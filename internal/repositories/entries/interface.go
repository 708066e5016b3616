// Package entries implements the local persistence of journal entries.
package entries

import (
	"context"

	"github.com/mindjig/trace-core/internal/models"
)

// Repository describes CRUD and query operations for Entry rows in the
// local store. Implementations are backed by the on-device SQLite database.
//
// Every write an implementation performs must preserve the version
// discipline: the caller supplies the row exactly as it must be persisted,
// version included, and the repository never invents or regresses versions.
type Repository interface {
	// Upsert inserts a new entry or replaces an existing one by Id.
	Upsert(ctx context.Context, entry *models.Entry) error

	// GetByID returns an entry by its identifier, tombstones included.
	// Returns common.ErrNotFound when no row exists.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// List returns all live (non-tombstoned) entries ordered by entry date,
	// newest first.
	List(ctx context.Context) ([]*models.Entry, error)

	// ListDirty returns entries with local changes not yet pushed remotely
	// (synced = 0), tombstones included.
	ListDirty(ctx context.Context) ([]*models.Entry, error)

	// MarkSynced flags a row as pushed: synced = 1 and no pending action.
	MarkSynced(ctx context.Context, id string, version int64) error

	// Delete physically removes the row (used after a remote deletion is
	// confirmed; local deletes are tombstones written via Upsert).
	Delete(ctx context.Context, id string) error
}
