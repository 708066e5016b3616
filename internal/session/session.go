// Package session hosts the editing surface exposed to the UI: it owns the
// in-memory draft and its last-saved baseline, schedules autosave flushes,
// and reacts to versions of the open entry pulled in by the sync channel.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mindjig/trace-core/internal/autosave"
	"github.com/mindjig/trace-core/internal/conflict"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/services"
	"github.com/mindjig/trace-core/internal/store"
)

// Notices is the sink for user-facing notifications raised by a session.
type Notices interface {
	// Info shows a brief transient notice.
	Info(msg string)
	// Warn shows a transient warning.
	Warn(msg string)
	// Alert shows a blocking, user-acknowledged message.
	Alert(msg string)
}

// NopNotices discards all notifications.
type NopNotices struct{}

func (NopNotices) Info(string)  {}
func (NopNotices) Warn(string)  {}
func (NopNotices) Alert(string) {}

// Options tunes session behavior. Zero values select the defaults.
type Options struct {
	Debounce    time.Duration // autosave quiet period, default 2s
	MaxWait     time.Duration // autosave cap under continuous typing, default 30s
	GraceWindow time.Duration // own-save overwrite alert window, default 30s

	// Clock and Now are injected by tests.
	Clock autosave.Clock
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Debounce == 0 {
		o.Debounce = 2 * time.Second
	}
	if o.MaxWait == 0 {
		o.MaxWait = 30 * time.Second
	}
	if o.GraceWindow == 0 {
		o.GraceWindow = 30 * time.Second
	}
	return o
}

// Manager creates editing sessions. One session edits one entry at a time.
type Manager struct {
	entries     services.EntryService
	attachments *services.AttachmentService
	st          *store.Store
	deviceID    string
	notices     Notices
	log         logging.Logger
	opts        Options
}

func NewManager(entries services.EntryService, attachments *services.AttachmentService,
	st *store.Store, deviceID string, notices Notices, log logging.Logger, opts Options) *Manager {
	if notices == nil {
		notices = NopNotices{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Manager{
		entries:     entries,
		attachments: attachments,
		st:          st,
		deviceID:    deviceID,
		notices:     notices,
		log:         log,
		opts:        opts.withDefaults(),
	}
}

// CreateDraft opens a session over a fresh draft with a temporary identifier.
// seed, when non-nil, pre-populates editable fields.
func (m *Manager) CreateDraft(seed *models.Draft) *Session {
	s := m.newSession()
	s.draft = models.NewDraft(seed)
	s.baseline = s.draft.Clone()
	return s
}

// LoadEntry opens a session over an existing durable entry, seeding version
// tracking from the stored row and subscribing to its changes.
func (m *Manager) LoadEntry(ctx context.Context, entryID string) (*Session, error) {
	e, err := m.entries.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}

	s := m.newSession()
	s.entryID = e.Id
	s.draft = models.DraftFromEntry(e)
	s.baseline = s.draft.Clone()
	s.detector.Init(e.Version)
	s.subscribe(e.Id)
	return s, nil
}

func (m *Manager) newSession() *Session {
	s := &Session{
		mgr:      m,
		detector: conflict.New(m.deviceID, m.opts.GraceWindow, m.opts.Now),
		done:     make(chan struct{}),
	}
	s.sched = autosave.New(m.opts.Debounce, m.opts.MaxWait, m.opts.Clock, s.autoFlush, m.log)
	return s
}

// Session is one live editing session. The draft is owned exclusively by the
// session; the stored row is shared with the sync channel and reconciled via
// the conflict detector.
type Session struct {
	mgr      *Manager
	sched    *autosave.Scheduler
	detector *conflict.Detector
	done     chan struct{}

	mu       sync.Mutex
	entryID  string // set after the first successful save
	draft    *models.Draft
	baseline *models.Draft
	editing  bool
	closed   bool
	unsub    func()
}

// Draft returns a snapshot of the current draft for rendering.
func (s *Session) Draft() *models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Dirty reports whether the draft differs from the last-saved baseline.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyLocked()
}

func (s *Session) dirtyLocked() bool {
	return !s.draft.EqualEditable(s.baseline)
}

// EnterEdit marks the session as actively editing; an externally adopted
// update exits this mode.
func (s *Session) EnterEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = true
}

// Editing reports whether the session is in active edit mode.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// PatchDraft applies fn to the draft. It marks the session dirty (arming the
// autosave timers) but does not save.
func (s *Session) PatchDraft(fn func(*models.Draft)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(s.draft)
	dirty := s.dirtyLocked()
	s.mu.Unlock()

	if dirty {
		s.sched.NoteChange()
	}
}

// AttachPhoto stages a captured photo under the draft's current owner
// identifier and adds it to the draft. The attachment row becomes durable on
// the next save.
func (s *Session) AttachPhoto(ctx context.Context, photo services.Photo) (*models.Attachment, error) {
	s.mu.Lock()
	ownerID := s.draft.EntryID
	// Positions are assigned in capture order and never reused: after a
	// deletion len() would collide with a surviving attachment.
	position := 0
	for _, a := range s.draft.Attachments {
		if a.Position >= position {
			position = a.Position + 1
		}
	}
	s.mu.Unlock()

	a, err := s.mgr.attachments.Stage(ctx, photo, ownerID, position)
	if err != nil {
		return nil, err
	}

	s.PatchDraft(func(d *models.Draft) {
		d.Attachments = append(d.Attachments, a)
	})
	return a, nil
}

// Save is the manual, user-facing save. Outcomes are surfaced through the
// notices sink; the result is also returned for callers that render it.
func (s *Session) Save(ctx context.Context) services.SaveResult {
	res := s.flush(ctx)
	switch res.Status {
	case services.SaveStatusEmpty:
		s.mgr.notices.Info("Nothing to save")
	case services.SaveStatusInProgress:
		s.mgr.notices.Warn("A save is already in progress")
	case services.SaveStatusFailed:
		s.mgr.notices.Alert(fmt.Sprintf("Save failed: %v", res.Err))
	case services.SaveStatusSaved:
		// a manual save supersedes any pending autosave
		s.sched.Cancel()
	}
	return res
}

// autoFlush is the scheduler callback. Autosave failures never interrupt
// typing: they are logged, not shown.
func (s *Session) autoFlush(ctx context.Context, reason autosave.Reason) {
	s.mu.Lock()
	dirty := s.dirtyLocked()
	hasContent := s.draft.HasContent()
	s.mu.Unlock()

	// Same empty guard as a first save: an autosave must never blank a
	// durable entry whose draft the user has emptied mid-edit.
	if !dirty || !hasContent {
		return
	}

	res := s.flush(ctx)
	switch res.Status {
	case services.SaveStatusFailed:
		s.mu.Lock()
		id := s.draft.EntryID
		s.mu.Unlock()
		s.mgr.log.Error(ctx, "autosave failed",
			"entry_id", id, "reason", string(reason), "error", res.Err)
	case services.SaveStatusInProgress:
		// The in-flight save snapshotted an older draft and the timers are
		// already disarmed; schedule another attempt for the leftover edits.
		if s.Dirty() {
			s.sched.NoteChange()
		}
	}
}

// flush routes the draft through the mutation service: create on first save,
// update afterwards. On success the baseline is reset and version tracking
// updated.
func (s *Session) flush(ctx context.Context) services.SaveResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return services.SaveResult{Status: services.SaveStatusEmpty}
	}
	entryID := s.entryID
	draft := s.draft.Clone()
	s.mu.Unlock()

	var res services.SaveResult
	if entryID == "" {
		res = s.mgr.entries.Create(ctx, draft)
	} else {
		res = s.mgr.entries.Update(ctx, entryID, draft)
	}
	if res.Status != services.SaveStatusSaved {
		return res
	}

	s.mu.Lock()
	if s.entryID == "" {
		s.entryID = res.Entry.Id
		s.draft.EntryID = res.Entry.Id
		// staged attachment records were migrated in place; adopt the list so
		// later saves see permanent paths
		s.draft.Attachments = res.Entry.Attachments
		s.subscribe(res.Entry.Id)
	}
	// the baseline is what was saved, not the live draft: edits made while
	// the save was in flight must stay dirty
	draft.EntryID = s.entryID
	s.baseline = draft
	s.mu.Unlock()

	s.detector.NoteSaved(res.Entry.Version)
	if res.MigrationPartial {
		s.mgr.notices.Warn("Some photos could not be moved; they will be retried")
	}
	return res
}

// ExitSession triggers a final flush when the draft is dirty (fire and
// forget; the UI transition does not wait for it) and tears the session down.
func (s *Session) ExitSession() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dirty := !s.draft.EqualEditable(s.baseline)
	entryID := s.entryID
	draft := s.draft.Clone()
	unsub := s.unsub
	s.mu.Unlock()

	s.sched.Cancel()
	if unsub != nil {
		unsub()
	}
	close(s.done)

	if !dirty || !draft.HasContent() {
		return
	}
	go func() {
		ctx := context.Background()
		var res services.SaveResult
		if entryID == "" {
			res = s.mgr.entries.Create(ctx, draft)
		} else {
			res = s.mgr.entries.Update(ctx, entryID, draft)
		}
		if res.Status == services.SaveStatusFailed {
			s.mgr.log.Error(ctx, "final flush failed", "entry_id", draft.EntryID, "error", res.Err)
		}
	}()
}

// subscribe starts watching stored changes to the entry. Caller holds s.mu
// or the session is not yet shared.
func (s *Session) subscribe(entryID string) {
	ch, cancel := s.mgr.st.Changes.Subscribe(entryID)
	s.unsub = cancel
	go s.watch(ch)
}

func (s *Session) watch(ch <-chan store.EntryChange) {
	for {
		select {
		case <-s.done:
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			s.observe(c)
		}
	}
}

// observe runs the conflict protocol for one stored change and applies the
// verdict to the draft.
func (s *Session) observe(c store.EntryChange) {
	obs := s.detector.Observe(c.Version, c.Device, s.Dirty())

	switch obs.Outcome {
	case conflict.OutcomeNone:
		return

	case conflict.OutcomeKeepDirty:
		// local edits win for now; the next save supersedes the external
		// write
		s.mgr.notices.Warn(fmt.Sprintf("This entry was changed on %s; your unsaved edits are kept", obs.OtherDevice))

	case conflict.OutcomeAdoptExternal, conflict.OutcomeAdoptExternalAlert:
		if c.Deleted {
			s.mgr.notices.Alert(fmt.Sprintf("This entry was deleted on %s", obs.OtherDevice))
			s.ExitSession()
			return
		}
		if err := s.adoptStored(context.Background()); err != nil {
			s.mgr.log.Error(context.Background(), "failed to adopt external update",
				"entry_id", c.EntryID, "error", err)
			return
		}
		if obs.Outcome == conflict.OutcomeAdoptExternalAlert {
			s.mgr.notices.Alert(fmt.Sprintf("Your recent save was overwritten by %s; consider undoing", obs.OtherDevice))
		} else {
			s.mgr.notices.Info(fmt.Sprintf("Updated from %s", obs.OtherDevice))
		}
	}
}

// adoptStored replaces the draft and its baseline with the stored values and
// exits edit mode.
func (s *Session) adoptStored(ctx context.Context) error {
	s.mu.Lock()
	entryID := s.entryID
	s.mu.Unlock()

	e, err := s.mgr.entries.Get(ctx, entryID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.draft = models.DraftFromEntry(e)
	s.baseline = s.draft.Clone()
	s.editing = false
	s.mu.Unlock()

	s.sched.Cancel()
	return nil
}
