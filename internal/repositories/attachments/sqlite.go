package attachments

import (
	"context"
	"fmt"
	"time"

	"github.com/mindjig/trace-core/internal/dbx"
	"github.com/mindjig/trace-core/internal/models"
)

const attachmentColumns = `id, entry_id, file_path, local_path, mime_type, file_size, width, height, position, upload_status, created_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, a *models.Attachment) error {
	status := a.UploadStatus
	if status == "" {
		status = models.UploadStatusPending
	}

	query := `INSERT INTO attachments (` + attachmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.Id, a.EntryID, a.FilePath, a.LocalPath, a.MimeType,
		a.FileSize, a.Width, a.Height, a.Position, string(status),
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByEntry(ctx context.Context, entryID string) ([]*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		FROM attachments WHERE entry_id = ? ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// ListPendingUpload returns attachments whose bytes have not yet been pushed
// to remote storage, skipping those of tombstoned entries.
func (r *SQLiteRepository) ListPendingUpload(ctx context.Context) ([]*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE upload_status = ?
		  AND entry_id NOT IN (SELECT id FROM entries WHERE sync_action = 'delete')
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, string(models.UploadStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending uploads: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

// MarkUploaded records that the attachment's bytes reached remote storage.
func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE attachments SET upload_status = ? WHERE id = ?`,
		string(models.UploadStatusCompleted), id)
	if err != nil {
		return fmt.Errorf("failed to mark attachment uploaded: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEntry(ctx context.Context, entryID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT local_path FROM attachments WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachment paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM attachments WHERE entry_id = ?`, entryID); err != nil {
		return nil, fmt.Errorf("failed to delete attachments: %w", err)
	}
	return paths, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAttachments(rows rowsScanner) ([]*models.Attachment, error) {
	var result []*models.Attachment
	for rows.Next() {
		var (
			a         models.Attachment
			status    string
			createdAt string
		)
		if err := rows.Scan(&a.Id, &a.EntryID, &a.FilePath, &a.LocalPath, &a.MimeType,
			&a.FileSize, &a.Width, &a.Height, &a.Position, &status, &createdAt); err != nil {
			return nil, err
		}
		a.UploadStatus = models.UploadStatus(status)
		var err error
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
