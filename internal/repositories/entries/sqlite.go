package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/dbx"
	"github.com/mindjig/trace-core/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx), so the mutation service can run it inside a transaction.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, title, body, tags, mentions, stream_id, status, type,
	due_date, rating, priority, is_pinned, is_archived,
	entry_date, entry_date_has_time, created_at, updated_at,
	latitude, longitude, place_name, street, city, region, country, geocode_status,
	version, synced, sync_action, last_edited_by, last_edited_device,
	conflict_status, conflict_backup`

// Upsert inserts or fully replaces an entry row by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.Entry) error {
	tags, err := json.Marshal(stringsOrEmpty(e.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	mentions, err := json.Marshal(stringsOrEmpty(e.Mentions))
	if err != nil {
		return fmt.Errorf("failed to marshal mentions: %w", err)
	}

	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			tags = excluded.tags,
			mentions = excluded.mentions,
			stream_id = excluded.stream_id,
			status = excluded.status,
			type = excluded.type,
			due_date = excluded.due_date,
			rating = excluded.rating,
			priority = excluded.priority,
			is_pinned = excluded.is_pinned,
			is_archived = excluded.is_archived,
			entry_date = excluded.entry_date,
			entry_date_has_time = excluded.entry_date_has_time,
			updated_at = excluded.updated_at,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			place_name = excluded.place_name,
			street = excluded.street,
			city = excluded.city,
			region = excluded.region,
			country = excluded.country,
			geocode_status = excluded.geocode_status,
			version = excluded.version,
			synced = excluded.synced,
			sync_action = excluded.sync_action,
			last_edited_by = excluded.last_edited_by,
			last_edited_device = excluded.last_edited_device,
			conflict_status = excluded.conflict_status,
			conflict_backup = excluded.conflict_backup
	`

	_, err = r.db.ExecContext(ctx, query,
		e.Id, e.Title, e.Body, string(tags), string(mentions),
		e.StreamID, string(e.Status), string(e.Type),
		timeToNullString(e.DueDate), e.Rating, e.Priority, e.IsPinned, e.IsArchived,
		e.EntryDate.UTC().Format(time.RFC3339Nano), e.EntryDateHasTime,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		e.Location.Latitude, e.Location.Longitude,
		e.Location.PlaceName, e.Location.Street, e.Location.City, e.Location.Region, e.Location.Country,
		string(e.Location.Geocode),
		e.Version, e.Synced, string(e.SyncAction), e.LastEditedBy, e.LastEditedDevice,
		e.ConflictStatus, e.ConflictBackup,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// GetByID returns a single entry, tombstones included.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// List returns all live entries ordered by entry date, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE sync_action != 'delete'
		ORDER BY entry_date DESC, created_at DESC`
	return r.queryEntries(ctx, query)
}

// ListDirty returns entries awaiting push (synced = 0).
func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE synced = 0
		ORDER BY updated_at ASC`
	return r.queryEntries(ctx, query)
}

// MarkSynced flags a row as pushed if no newer local edit has raced in.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	query := `UPDATE entries SET synced = 1, sync_action = '' WHERE id = ? AND version = ?`
	if _, err := r.db.ExecContext(ctx, query, id, version); err != nil {
		return fmt.Errorf("failed to mark entry synced: %w", err)
	}
	return nil
}

// Delete physically removes a row; attachment rows cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// scanEntry reads one row through the provided Scan function, so it works
// for both *sql.Row and *sql.Rows.
func scanEntry(scan func(dest ...any) error) (*models.Entry, error) {
	var (
		e                                models.Entry
		tagsJSON, mentionsJSON           string
		status, typ, syncAction, geocode string
		dueDate                          sql.NullString
		entryDate, createdAt, updatedAt  string
	)

	err := scan(
		&e.Id, &e.Title, &e.Body, &tagsJSON, &mentionsJSON, &e.StreamID, &status, &typ,
		&dueDate, &e.Rating, &e.Priority, &e.IsPinned, &e.IsArchived,
		&entryDate, &e.EntryDateHasTime, &createdAt, &updatedAt,
		&e.Location.Latitude, &e.Location.Longitude,
		&e.Location.PlaceName, &e.Location.Street, &e.Location.City, &e.Location.Region, &e.Location.Country,
		&geocode,
		&e.Version, &e.Synced, &syncAction, &e.LastEditedBy, &e.LastEditedDevice,
		&e.ConflictStatus, &e.ConflictBackup,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(mentionsJSON), &e.Mentions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mentions: %w", err)
	}

	e.Status = models.EntryStatus(status)
	e.Type = models.EntryType(typ)
	e.SyncAction = models.SyncAction(syncAction)
	e.Location.Geocode = models.GeocodeStatus(geocode)

	e.DueDate = nullStringToTime(dueDate)
	if e.EntryDate, err = time.Parse(time.RFC3339Nano, entryDate); err != nil {
		return nil, fmt.Errorf("failed to parse entry_date: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &e, nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
