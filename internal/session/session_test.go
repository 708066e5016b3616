package session

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/repositories/attachments"
	"github.com/mindjig/trace-core/internal/repositories/entries"
	"github.com/mindjig/trace-core/internal/repositories/metadata"
	"github.com/mindjig/trace-core/internal/services"
	"github.com/mindjig/trace-core/internal/store"

	_ "modernc.org/sqlite"
)

type noticeRecorder struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	alerts []string
}

func (n *noticeRecorder) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}
func (n *noticeRecorder) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, msg)
}
func (n *noticeRecorder) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

func (n *noticeRecorder) warnCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warns)
}
func (n *noticeRecorder) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
func (n *noticeRecorder) lastWarn() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.warns) == 0 {
		return ""
	}
	return n.warns[len(n.warns)-1]
}

func setupManager(t *testing.T, opts Options) (*Manager, *store.Store, *noticeRecorder) {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(context.Background(), db))

	st := &store.Store{
		DB:          db,
		Entries:     entries.NewSQLiteRepository(db),
		Attachments: attachments.NewSQLiteRepository(db),
		Metadata:    metadata.NewSQLiteRepository(db),
		Changes:     store.NewNotifier(),
	}

	att := services.NewAttachmentService(t.TempDir(), 80, logging.NewNopLogger())
	svc := services.NewEntryService(st, att, services.Identity{UserID: "u-1", DeviceID: "dev-a"}, logging.NewNopLogger())

	rec := &noticeRecorder{}
	m := NewManager(svc, att, st, "dev-a", rec, logging.NewNopLogger(), opts)
	return m, st, rec
}

// quietOpts keeps autosave out of the way so tests drive saves explicitly.
var quietOpts = Options{Debounce: time.Hour, MaxWait: time.Hour}

// simulateRemotePull writes an externally-edited copy of the entry the way
// the sync channel would, then publishes the change.
func simulateRemotePull(t *testing.T, st *store.Store, entryID, device, title string) int64 {
	t.Helper()
	ctx := context.Background()

	e, err := st.Entries.GetByID(ctx, entryID)
	require.NoError(t, err)
	e.Title = title
	e.Version++
	e.Synced = true
	e.SyncAction = models.SyncActionNone
	e.LastEditedDevice = device
	require.NoError(t, st.Entries.Upsert(ctx, e))

	st.Changes.Publish(store.EntryChange{
		EntryID: entryID,
		Version: e.Version,
		Device:  device,
		Source:  store.SourceRemote,
	})
	return e.Version
}

func TestSession_CreateDraftSaveAssignsPermanentID(t *testing.T) {
	m, _, _ := setupManager(t, quietOpts)
	ctx := context.Background()

	s := m.CreateDraft(nil)
	assert.False(t, s.Dirty())

	s.PatchDraft(func(d *models.Draft) { d.Title = "Trip" })
	assert.True(t, s.Dirty())

	res := s.Save(ctx)
	require.True(t, res.Saved())
	assert.False(t, models.IsTempID(res.Entry.Id))
	assert.Equal(t, int64(1), res.Entry.Version)
	assert.False(t, s.Dirty())

	// second save goes through update, not create
	s.PatchDraft(func(d *models.Draft) { d.Body = "first day" })
	res = s.Save(ctx)
	require.True(t, res.Saved())
	assert.Equal(t, int64(2), res.Entry.Version)
	t.Cleanup(s.ExitSession)
}

func TestSession_ManualSaveOfEmptyDraftShowsNotice(t *testing.T) {
	m, _, rec := setupManager(t, quietOpts)

	s := m.CreateDraft(nil)
	res := s.Save(context.Background())
	assert.Equal(t, services.SaveStatusEmpty, res.Status)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"Nothing to save"}, rec.infos)
}

func TestSession_DirtySessionKeepsDraftOnExternalUpdate(t *testing.T) {
	m, st, rec := setupManager(t, quietOpts)
	ctx := context.Background()

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "mine" })
	res := s.Save(ctx)
	require.True(t, res.Saved())
	t.Cleanup(s.ExitSession)

	// local unsaved edits, then an external write lands
	s.PatchDraft(func(d *models.Draft) { d.Body = "unsaved local edit" })
	simulateRemotePull(t, st, res.Entry.Id, "dev-b", "theirs")

	require.Eventually(t, func() bool { return rec.warnCount() > 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.lastWarn(), "dev-b")

	d := s.Draft()
	assert.Equal(t, "mine", d.Title)
	assert.Equal(t, "unsaved local edit", d.Body)
	assert.True(t, s.Dirty())
}

func TestSession_CleanSessionAdoptsExternalUpdate(t *testing.T) {
	m, st, rec := setupManager(t, Options{
		Debounce: time.Hour, MaxWait: time.Hour,
		// zero grace so the session's own save cannot escalate to an alert
		GraceWindow: time.Nanosecond,
	})
	ctx := context.Background()

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "mine" })
	require.True(t, s.Save(ctx).Saved())
	t.Cleanup(s.ExitSession)

	s.EnterEdit()
	time.Sleep(5 * time.Millisecond) // step past the nanosecond grace window
	simulateRemotePull(t, st, s.Draft().EntryID, "dev-b", "theirs")

	require.Eventually(t, func() bool { return s.Draft().Title == "theirs" },
		2*time.Second, 10*time.Millisecond)
	assert.False(t, s.Dirty())
	assert.False(t, s.Editing())
	assert.Equal(t, 0, rec.alertCount())
}

func TestSession_RecentOwnSaveOverwrittenRaisesAlert(t *testing.T) {
	m, st, rec := setupManager(t, quietOpts) // default 30s grace
	ctx := context.Background()

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "mine" })
	require.True(t, s.Save(ctx).Saved())
	t.Cleanup(s.ExitSession)

	// external overwrite right after our save
	simulateRemotePull(t, st, s.Draft().EntryID, "dev-b", "theirs")

	require.Eventually(t, func() bool { return rec.alertCount() > 0 },
		2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	alert := rec.alerts[0]
	rec.mu.Unlock()
	assert.Contains(t, alert, "dev-b")
	assert.Equal(t, "theirs", s.Draft().Title)
}

func TestSession_OwnWriteEchoIsSilent(t *testing.T) {
	m, st, rec := setupManager(t, quietOpts)
	ctx := context.Background()

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "mine" })
	res := s.Save(ctx)
	require.True(t, res.Saved())
	t.Cleanup(s.ExitSession)

	// the sync channel republishing this device's own version bump
	st.Changes.Publish(store.EntryChange{
		EntryID: res.Entry.Id, Version: res.Entry.Version,
		Device: "dev-a", Source: store.SourceRemote,
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.warnCount())
	assert.Equal(t, 0, rec.alertCount())
	assert.Equal(t, "mine", s.Draft().Title)
}

func TestSession_ExitWithDirtyDraftFlushes(t *testing.T) {
	m, st, _ := setupManager(t, quietOpts)

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "written on the way out" })
	s.ExitSession()

	require.Eventually(t, func() bool {
		list, err := st.Entries.List(context.Background())
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)

	list, err := st.Entries.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "written on the way out", list[0].Title)
}

func TestSession_ExitWithEmptyDraftWritesNothing(t *testing.T) {
	m, st, _ := setupManager(t, quietOpts)

	s := m.CreateDraft(nil)
	s.ExitSession()

	time.Sleep(50 * time.Millisecond)
	list, err := st.Entries.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSession_PatchAfterExitIsIgnored(t *testing.T) {
	m, _, _ := setupManager(t, quietOpts)

	s := m.CreateDraft(nil)
	s.ExitSession()
	s.PatchDraft(func(d *models.Draft) { d.Title = "too late" })
	assert.NotEqual(t, "too late", s.Draft().Title)
}

func TestSession_AutosaveFlushesAfterQuietPeriod(t *testing.T) {
	m, st, _ := setupManager(t, Options{Debounce: 20 * time.Millisecond, MaxWait: time.Hour})

	s := m.CreateDraft(nil)
	t.Cleanup(s.ExitSession)
	s.PatchDraft(func(d *models.Draft) { d.Title = "typed and paused" })

	require.Eventually(t, func() bool {
		list, err := st.Entries.List(context.Background())
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.Dirty())
}

func TestSession_LoadEntrySeedsVersionTracking(t *testing.T) {
	m, st, rec := setupManager(t, quietOpts)
	ctx := context.Background()

	s := m.CreateDraft(nil)
	s.PatchDraft(func(d *models.Draft) { d.Title = "original" })
	res := s.Save(ctx)
	require.True(t, res.Saved())
	s.ExitSession()

	loaded, err := m.LoadEntry(ctx, res.Entry.Id)
	require.NoError(t, err)
	t.Cleanup(loaded.ExitSession)
	assert.Equal(t, "original", loaded.Draft().Title)
	assert.False(t, loaded.Dirty())

	// a stale republish of the loaded version stays silent
	st.Changes.Publish(store.EntryChange{
		EntryID: res.Entry.Id, Version: res.Entry.Version,
		Device: "dev-b", Source: store.SourceRemote,
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.warnCount())
}

func TestSession_LoadMissingEntry(t *testing.T) {
	m, _, _ := setupManager(t, quietOpts)
	_, err := m.LoadEntry(context.Background(), models.NewEntryID())
	require.Error(t, err)
}

func TestSession_AutosaveNeverBlanksDurableEntry(t *testing.T) {
	m, st, _ := setupManager(t, Options{Debounce: 20 * time.Millisecond, MaxWait: time.Hour})
	ctx := context.Background()

	s := m.CreateDraft(nil)
	t.Cleanup(s.ExitSession)
	s.PatchDraft(func(d *models.Draft) {
		d.Title = "Trip"
		d.Body = "day one"
	})
	res := s.Save(ctx)
	require.True(t, res.Saved())

	// The user selects everything and deletes it. The draft is dirty but
	// empty; the debounce firing must not write the blank state.
	s.PatchDraft(func(d *models.Draft) {
		d.Title = ""
		d.Body = ""
	})
	require.True(t, s.Dirty())

	time.Sleep(250 * time.Millisecond)

	got, err := st.Entries.GetByID(ctx, res.Entry.Id)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Title)
	assert.Equal(t, "day one", got.Body)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, s.Dirty())
}

// stubEntryService rejects the first reject update calls as in flight, then
// accepts.
type stubEntryService struct {
	mu      sync.Mutex
	entry   *models.Entry
	updates int
	reject  int
}

func (f *stubEntryService) Create(ctx context.Context, draft *models.Draft) services.SaveResult {
	return services.SaveResult{Status: services.SaveStatusFailed, Err: errors.New("unexpected create")}
}

func (f *stubEntryService) Update(ctx context.Context, entryID string, draft *models.Draft) services.SaveResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updates <= f.reject {
		return services.SaveResult{Status: services.SaveStatusInProgress}
	}
	e := *f.entry
	e.Title = draft.Title
	e.Body = draft.Body
	e.Version++
	f.entry = &e
	return services.SaveResult{Status: services.SaveStatusSaved, Entry: &e}
}

func (f *stubEntryService) Delete(ctx context.Context, entryID string) error { return nil }

func (f *stubEntryService) Get(ctx context.Context, entryID string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *f.entry
	return &e, nil
}

func (f *stubEntryService) List(ctx context.Context) ([]*models.Entry, error) { return nil, nil }

func (f *stubEntryService) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func TestSession_AutosaveRetriesWhenSaveInFlight(t *testing.T) {
	_, st, _ := setupManager(t, quietOpts)
	stub := &stubEntryService{
		entry:  &models.Entry{Id: "e-1", Title: "Trip", Body: "day one", Version: 1, Type: models.EntryTypeNote},
		reject: 1,
	}
	att := services.NewAttachmentService(t.TempDir(), 80, logging.NewNopLogger())
	m := NewManager(stub, att, st, "dev-a", &noticeRecorder{}, logging.NewNopLogger(),
		Options{Debounce: 20 * time.Millisecond, MaxWait: time.Hour})

	s, err := m.LoadEntry(context.Background(), "e-1")
	require.NoError(t, err)
	t.Cleanup(s.ExitSession)

	s.PatchDraft(func(d *models.Draft) { d.Body = "day one, continued" })

	// First debounce fire is rejected as in flight; the session re-arms and
	// the retry lands.
	require.Eventually(t, func() bool { return stub.updateCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Dirty() }, 2*time.Second, 10*time.Millisecond)

	got, err := stub.Get(context.Background(), "e-1")
	require.NoError(t, err)
	assert.Equal(t, "day one, continued", got.Body)
}

func sessionPhoto(t *testing.T) services.Photo {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(40 * y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return services.Photo{Data: buf.Bytes(), MimeType: "image/png"}
}

func TestSession_AttachPhotoNeverReusesPositions(t *testing.T) {
	m, st, _ := setupManager(t, quietOpts)
	ctx := context.Background()

	s := m.CreateDraft(nil)
	t.Cleanup(func() {
		s.ExitSession()
		// the exit flush is fire and forget; wait for it to land before
		// TempDir cleanup deletes the attachment directory underneath it
		require.Eventually(t, func() bool {
			list, err := st.Entries.List(context.Background())
			return err == nil && len(list) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	for i := 0; i < 3; i++ {
		a, err := s.AttachPhoto(ctx, sessionPhoto(t))
		require.NoError(t, err)
		assert.Equal(t, i, a.Position)
	}

	// Drop the middle photo; its position stays a permanent gap.
	s.PatchDraft(func(d *models.Draft) {
		d.Attachments = append(d.Attachments[:1], d.Attachments[2:]...)
	})

	a, err := s.AttachPhoto(ctx, sessionPhoto(t))
	require.NoError(t, err)
	assert.Equal(t, 3, a.Position)
}
