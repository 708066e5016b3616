package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/dbx"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/repositories/attachments"
	"github.com/mindjig/trace-core/internal/repositories/entries"
	"github.com/mindjig/trace-core/internal/store"
)

// SaveStatus classifies the outcome of a create/update call.
type SaveStatus int

const (
	// SaveStatusSaved means the entry is durable in the local store.
	SaveStatusSaved SaveStatus = iota
	// SaveStatusEmpty means the draft had no persistable content and
	// nothing was written. Not an error: autosave discards it silently,
	// a manual save shows a brief notice.
	SaveStatusEmpty
	// SaveStatusInProgress means a save for the same entry is already in
	// flight; the call was rejected synchronously, never queued.
	SaveStatusInProgress
	// SaveStatusFailed means local storage I/O failed; Err holds the cause.
	SaveStatusFailed
)

// SaveResult is the typed outcome of a save. Errors never cross the
// autosave/UI boundary as panics or bare returns; they ride here.
type SaveResult struct {
	Status SaveStatus
	Entry  *models.Entry
	// Err is set when Status is SaveStatusFailed.
	Err error
	// MigrationPartial is set when the entry saved but some staged
	// attachments could not be moved to their permanent location.
	MigrationPartial bool
}

// Saved reports whether the entry reached the durable store.
func (r SaveResult) Saved() bool { return r.Status == SaveStatusSaved }

// Identity names the writer for sync attribution.
type Identity struct {
	UserID   string
	DeviceID string
}

// EntryService is the single authority for creating, updating and deleting
// entries in the local store.
type EntryService interface {
	// Create persists a draft for the first time, assigning the permanent
	// identifier and migrating any staged attachments to it.
	Create(ctx context.Context, draft *models.Draft) SaveResult

	// Update applies the draft's editable fields to an existing durable
	// entry, incrementing its version by exactly one.
	Update(ctx context.Context, entryID string, draft *models.Draft) SaveResult

	// Delete tombstones an entry for remote deletion and cascades its
	// attachments (rows and cached files) locally.
	Delete(ctx context.Context, entryID string) error

	// Get loads a durable entry with its attachments.
	Get(ctx context.Context, entryID string) (*models.Entry, error)

	// List returns all live entries with their attachments, newest first.
	List(ctx context.Context) ([]*models.Entry, error)
}

type entryService struct {
	st          *store.Store
	attachments *AttachmentService
	identity    Identity
	log         logging.Logger

	// inFlight guards at-most-one save per entry. It is checked and set
	// synchronously, before any asynchronous work begins.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEntryService wires the mutation service to the local store.
func NewEntryService(st *store.Store, att *AttachmentService, identity Identity, log logging.Logger) EntryService {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &entryService{
		st:          st,
		attachments: att,
		identity:    identity,
		log:         log,
		inFlight:    make(map[string]struct{}),
	}
}

func (s *entryService) beginSave(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *entryService) endSave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *entryService) Create(ctx context.Context, draft *models.Draft) SaveResult {
	if !draft.HasContent() {
		return SaveResult{Status: SaveStatusEmpty}
	}
	if !s.beginSave(draft.EntryID) {
		return SaveResult{Status: SaveStatusInProgress}
	}
	defer s.endSave(draft.EntryID)

	now := time.Now().UTC()
	e := entryFromDraft(draft, now)
	e.Id = models.NewEntryID()
	e.Version = 1
	e.Synced = false
	e.SyncAction = models.SyncActionCreate
	e.CreatedAt = now
	e.LastEditedBy = s.identity.UserID
	e.LastEditedDevice = s.identity.DeviceID

	// Move staged files to their permanent location first; a row must never
	// become durable with a temporary path.
	migrated, migErr := s.attachments.Migrate(ctx, draft.Attachments, e.Id)

	err := dbx.WithTx(ctx, s.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entries.NewSQLiteRepository(tx).Upsert(ctx, e); err != nil {
			return err
		}
		ar := attachments.NewSQLiteRepository(tx)
		for _, a := range migrated {
			if models.IsTempID(a.EntryID) {
				return fmt.Errorf("attachment %s: %w", a.Id, common.ErrTemporaryID)
			}
			if err := ar.Insert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SaveResult{Status: SaveStatusFailed, Err: fmt.Errorf("create entry: %w", err)}
	}

	if migErr != nil {
		s.log.Warn(ctx, "entry saved with partial attachment migration",
			"entry_id", e.Id, "error", migErr)
	}

	e.Attachments = migrated
	s.st.Changes.Publish(store.EntryChange{
		EntryID: e.Id, Version: e.Version, Device: s.identity.DeviceID, Source: store.SourceLocal,
	})

	s.log.Info(ctx, "entry created", "entry_id", e.Id, "attachments", len(migrated))
	return SaveResult{Status: SaveStatusSaved, Entry: e, MigrationPartial: migErr != nil}
}

func (s *entryService) Update(ctx context.Context, entryID string, draft *models.Draft) SaveResult {
	if models.IsTempID(entryID) {
		return SaveResult{Status: SaveStatusFailed,
			Err: fmt.Errorf("update %s: %w", entryID, common.ErrTemporaryID)}
	}
	if !s.beginSave(entryID) {
		return SaveResult{Status: SaveStatusInProgress}
	}
	defer s.endSave(entryID)

	existing, err := s.st.Entries.GetByID(ctx, entryID)
	if err != nil {
		return SaveResult{Status: SaveStatusFailed, Err: fmt.Errorf("update entry: %w", err)}
	}
	if existing.IsDeleted() {
		return SaveResult{Status: SaveStatusFailed,
			Err: fmt.Errorf("update entry %s: %w", entryID, common.ErrNotFound)}
	}

	now := time.Now().UTC()
	bodyChanged := existing.Body != draft.Body

	applyDraft(existing, draft)
	if bodyChanged {
		existing.Tags = models.ExtractTags(existing.Body)
		existing.Mentions = models.ExtractMentions(existing.Body)
	}

	existing.Version++
	existing.Synced = false
	// An entry the remote has never seen is still a creation from its
	// perspective: a pending create stays a create.
	if existing.SyncAction != models.SyncActionCreate {
		existing.SyncAction = models.SyncActionUpdate
	}
	existing.UpdatedAt = now
	existing.LastEditedBy = s.identity.UserID
	existing.LastEditedDevice = s.identity.DeviceID

	current, err := s.st.Attachments.ListByEntry(ctx, entryID)
	if err != nil {
		return SaveResult{Status: SaveStatusFailed, Err: fmt.Errorf("update entry: %w", err)}
	}
	added, removed := diffAttachments(current, draft.Attachments)

	var removedPaths []string
	err = dbx.WithTx(ctx, s.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entries.NewSQLiteRepository(tx).Upsert(ctx, existing); err != nil {
			return err
		}
		ar := attachments.NewSQLiteRepository(tx)
		for _, a := range added {
			if models.IsTempID(a.EntryID) {
				return fmt.Errorf("attachment %s: %w", a.Id, common.ErrTemporaryID)
			}
			if err := ar.Insert(ctx, a); err != nil {
				return err
			}
		}
		for _, a := range removed {
			if err := ar.Delete(ctx, a.Id); err != nil {
				return err
			}
			removedPaths = append(removedPaths, a.LocalPath)
		}
		return nil
	})
	if err != nil {
		return SaveResult{Status: SaveStatusFailed, Err: fmt.Errorf("update entry: %w", err)}
	}

	s.attachments.RemoveFiles(ctx, removedPaths)

	existing.Attachments = draft.Attachments
	s.st.Changes.Publish(store.EntryChange{
		EntryID: existing.Id, Version: existing.Version,
		Device: s.identity.DeviceID, Source: store.SourceLocal,
	})

	s.log.Info(ctx, "entry updated", "entry_id", existing.Id, "version", existing.Version)
	return SaveResult{Status: SaveStatusSaved, Entry: existing}
}

func (s *entryService) Delete(ctx context.Context, entryID string) error {
	if models.IsTempID(entryID) {
		// Never persisted; nothing to tombstone.
		return nil
	}

	e, err := s.st.Entries.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	// An unsynced create was never seen remotely: remove it outright
	// instead of shipping a tombstone for an id the server doesn't know.
	hardDelete := e.SyncAction == models.SyncActionCreate && !e.Synced

	var removedPaths []string
	err = dbx.WithTx(ctx, s.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ar := attachments.NewSQLiteRepository(tx)
		paths, err := ar.DeleteByEntry(ctx, entryID)
		if err != nil {
			return err
		}
		removedPaths = paths

		er := entries.NewSQLiteRepository(tx)
		if hardDelete {
			return er.Delete(ctx, entryID)
		}

		e.Version++
		e.Synced = false
		e.SyncAction = models.SyncActionDelete
		e.UpdatedAt = time.Now().UTC()
		e.LastEditedBy = s.identity.UserID
		e.LastEditedDevice = s.identity.DeviceID
		return er.Upsert(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	s.attachments.RemoveFiles(ctx, removedPaths)

	s.st.Changes.Publish(store.EntryChange{
		EntryID: entryID, Version: e.Version,
		Device: s.identity.DeviceID, Source: store.SourceLocal, Deleted: true,
	})

	s.log.Info(ctx, "entry deleted", "entry_id", entryID, "tombstone", !hardDelete)
	return nil
}

func (s *entryService) Get(ctx context.Context, entryID string) (*models.Entry, error) {
	e, err := s.st.Entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	atts, err := s.st.Attachments.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	e.Attachments = atts
	return e, nil
}

func (s *entryService) List(ctx context.Context) ([]*models.Entry, error) {
	list, err := s.st.Entries.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		atts, err := s.st.Attachments.ListByEntry(ctx, e.Id)
		if err != nil {
			return nil, err
		}
		e.Attachments = atts
	}
	return list, nil
}

// entryFromDraft builds a new entry from a draft's editable fields, deriving
// tags, mentions and the assembled location.
func entryFromDraft(d *models.Draft, now time.Time) *models.Entry {
	e := &models.Entry{
		Title:            d.Title,
		Body:             d.Body,
		Tags:             models.ExtractTags(d.Body),
		Mentions:         models.ExtractMentions(d.Body),
		StreamID:         d.StreamID,
		Status:           d.Status,
		Type:             d.Type,
		DueDate:          d.DueDate,
		Rating:           d.Rating,
		Priority:         d.Priority,
		IsPinned:         d.IsPinned,
		IsArchived:       d.IsArchived,
		EntryDate:        d.EntryDate,
		EntryDateHasTime: d.EntryDateHasTime,
		Location:         d.Location,
		UpdatedAt:        now,
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = now
	}
	return e
}

// applyDraft copies a draft's editable fields onto an existing entry,
// leaving identity, temporal bookkeeping and sync fields to the caller.
func applyDraft(e *models.Entry, d *models.Draft) {
	e.Title = d.Title
	e.Body = d.Body
	e.StreamID = d.StreamID
	e.Status = d.Status
	e.Type = d.Type
	e.DueDate = d.DueDate
	e.Rating = d.Rating
	e.Priority = d.Priority
	e.IsPinned = d.IsPinned
	e.IsArchived = d.IsArchived
	e.EntryDate = d.EntryDate
	e.EntryDateHasTime = d.EntryDateHasTime
	e.Location = d.Location
}

// diffAttachments splits the draft's attachment set against the durable
// rows: records to insert and rows to remove.
func diffAttachments(current, want []*models.Attachment) (added, removed []*models.Attachment) {
	inWant := make(map[string]struct{}, len(want))
	for _, a := range want {
		inWant[a.Id] = struct{}{}
	}
	inCurrent := make(map[string]struct{}, len(current))
	for _, a := range current {
		inCurrent[a.Id] = struct{}{}
		if _, ok := inWant[a.Id]; !ok {
			removed = append(removed, a)
		}
	}
	for _, a := range want {
		if _, ok := inCurrent[a.Id]; !ok {
			added = append(added, a)
		}
	}
	return added, removed
}
