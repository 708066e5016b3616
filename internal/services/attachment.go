package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mindjig/trace-core/internal/filex"
	"github.com/mindjig/trace-core/internal/imagex"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
)

// Photo is a captured image handed to the staging step by the UI layer.
type Photo struct {
	Data     []byte
	MimeType string
}

// AttachmentService stages captured photos in the on-device cache and
// migrates staged files to their permanent location once the owning entry
// has a permanent identifier.
//
// While an entry's identifier is temporary, every path it hands out contains
// that temporary identifier; Migrate rewrites paths from the template, so an
// attachment can never reach the durable store referencing a temporary id.
type AttachmentService struct {
	cacheDir string
	quality  int
	log      logging.Logger
}

// NewAttachmentService creates the staging service. cacheDir is the root of
// the on-device attachment cache; quality is the JPEG quality applied to
// captured photos.
func NewAttachmentService(cacheDir string, quality int, log logging.Logger) *AttachmentService {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &AttachmentService{cacheDir: cacheDir, quality: quality, log: log}
}

// Stage compresses photo and writes it to the cache under ownerID, which may
// be temporary (draft not yet saved) or permanent. It returns the attachment
// record with a permanent attachment id; the record is not persisted here —
// it becomes durable on the next save of the owning entry.
func (s *AttachmentService) Stage(ctx context.Context, photo Photo, ownerID string, position int) (*models.Attachment, error) {
	data, width, height, err := imagex.Recompress(photo.Data, s.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to compress photo: %w", err)
	}

	id := models.NewAttachmentID()
	localPath := models.LocalAttachmentPath(s.cacheDir, ownerID, id, ".jpg")

	if err := filex.EnsureDir(filepath.Dir(localPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(localPath, data, 0o660); err != nil {
		return nil, fmt.Errorf("failed to write staged attachment: %w", err)
	}

	a := &models.Attachment{
		Id:           id,
		EntryID:      ownerID,
		FilePath:     models.RemoteAttachmentPath(ownerID, id, ".jpg"),
		LocalPath:    localPath,
		MimeType:     "image/jpeg",
		FileSize:     int64(len(data)),
		Width:        width,
		Height:       height,
		Position:     position,
		UploadStatus: models.UploadStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	s.log.Debug(ctx, "staged attachment",
		"attachment_id", a.Id, "owner_id", ownerID, "bytes", a.FileSize)
	return a, nil
}

// Migrate rewrites every staged attachment to reference permanentID: it
// rebuilds FilePath and LocalPath from the path template and physically
// moves the cached file. Attachments are processed in position order.
//
// Migration is not atomic across attachments: a failure partway leaves the
// already-migrated ones intact and the rest untouched in temporary storage
// (harmless orphans). The returned slice holds the successfully migrated
// attachments; the returned error, when non-nil, joins the per-attachment
// failures so the caller can log a partial-success warning.
func (s *AttachmentService) Migrate(ctx context.Context, staged []*models.Attachment, permanentID string) ([]*models.Attachment, error) {
	if len(staged) == 0 {
		return nil, nil
	}

	ordered := append([]*models.Attachment(nil), staged...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	var (
		migrated []*models.Attachment
		errs     []error
	)
	for _, a := range ordered {
		if err := s.migrateOne(a, permanentID); err != nil {
			s.log.Warn(ctx, "attachment migration failed",
				"attachment_id", a.Id, "owner_id", permanentID, "error", err)
			errs = append(errs, fmt.Errorf("attachment %s: %w", a.Id, err))
			continue
		}
		migrated = append(migrated, a)
	}
	return migrated, errors.Join(errs...)
}

func (s *AttachmentService) migrateOne(a *models.Attachment, permanentID string) error {
	ext := a.Ext()
	newLocal := models.LocalAttachmentPath(s.cacheDir, permanentID, a.Id, ext)

	// Already at the permanent location (e.g. a retried save).
	if a.LocalPath != newLocal {
		if err := filex.MoveFile(a.LocalPath, newLocal); err != nil {
			return err
		}
	}

	a.LocalPath = newLocal
	a.FilePath = models.RemoteAttachmentPath(permanentID, a.Id, ext)
	a.EntryID = permanentID
	return nil
}

// RemoveFiles deletes cached attachment files, logging (not failing) any
// paths that cannot be removed.
func (s *AttachmentService) RemoveFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.Warn(ctx, "failed to remove cached attachment", "path", p, "error", err)
		}
	}
}
