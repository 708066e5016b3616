package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	thisDevice  = "dev-a"
	otherDevice = "dev-b"
	graceWindow = 30 * time.Second
)

type stubClock struct{ t time.Time }

func newStubClock() *stubClock {
	return &stubClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}
func (c *stubClock) now() time.Time          { return c.t }
func (c *stubClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestObserve_FirstObservationInitializesSilently(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)

	got := d.Observe(7, otherDevice, false)
	assert.Equal(t, OutcomeNone, got.Outcome)

	v, ok := d.KnownVersion()
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
}

func TestObserve_StaleVersionIsNoop(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(5)

	assert.Equal(t, OutcomeNone, d.Observe(5, otherDevice, true).Outcome)
	assert.Equal(t, OutcomeNone, d.Observe(3, otherDevice, false).Outcome)

	v, _ := d.KnownVersion()
	assert.Equal(t, int64(5), v)
}

func TestObserve_DuplicateDeliveryTriggersOnce(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(1)

	first := d.Observe(2, otherDevice, true)
	assert.Equal(t, OutcomeKeepDirty, first.Outcome)

	second := d.Observe(2, otherDevice, true)
	assert.Equal(t, OutcomeNone, second.Outcome)
}

func TestObserve_OwnWriteAdoptedSilently(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(1)

	got := d.Observe(2, thisDevice, true)
	assert.Equal(t, OutcomeNone, got.Outcome)

	v, _ := d.KnownVersion()
	assert.Equal(t, int64(2), v)
}

func TestObserve_ExternalWriteWithDirtySessionWarns(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(1)

	got := d.Observe(2, otherDevice, true)
	assert.Equal(t, OutcomeKeepDirty, got.Outcome)
	assert.Equal(t, otherDevice, got.OtherDevice)
}

func TestObserve_ExternalWriteWithCleanSessionAdopts(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(1)

	got := d.Observe(2, otherDevice, false)
	assert.Equal(t, OutcomeAdoptExternal, got.Outcome)
	assert.Equal(t, otherDevice, got.OtherDevice)

	v, _ := d.KnownVersion()
	assert.Equal(t, int64(2), v)
}

func TestObserve_RecentOwnSaveEscalatesToAlert(t *testing.T) {
	clock := newStubClock()
	d := New(thisDevice, graceWindow, clock.now)
	d.Init(1)

	d.NoteSaved(2)
	clock.advance(10 * time.Second)

	got := d.Observe(3, otherDevice, false)
	assert.Equal(t, OutcomeAdoptExternalAlert, got.Outcome)
	assert.Equal(t, otherDevice, got.OtherDevice)
}

func TestObserve_AlertFiresOncePerSave(t *testing.T) {
	clock := newStubClock()
	d := New(thisDevice, graceWindow, clock.now)
	d.Init(1)
	d.NoteSaved(2)

	assert.Equal(t, OutcomeAdoptExternalAlert, d.Observe(3, otherDevice, false).Outcome)
	// grace window consumed; the next external write is an ordinary adoption
	assert.Equal(t, OutcomeAdoptExternal, d.Observe(4, otherDevice, false).Outcome)
}

func TestObserve_SaveOutsideGraceWindowDoesNotAlert(t *testing.T) {
	clock := newStubClock()
	d := New(thisDevice, graceWindow, clock.now)
	d.Init(1)

	d.NoteSaved(2)
	clock.advance(graceWindow + time.Second)

	got := d.Observe(3, otherDevice, false)
	assert.Equal(t, OutcomeAdoptExternal, got.Outcome)
}

func TestObserve_DirtyWarningWinsOverGraceWindow(t *testing.T) {
	clock := newStubClock()
	d := New(thisDevice, graceWindow, clock.now)
	d.Init(1)
	d.NoteSaved(2)

	got := d.Observe(3, otherDevice, true)
	assert.Equal(t, OutcomeKeepDirty, got.Outcome)
}

func TestNoteSaved_NeverRegressesKnownVersion(t *testing.T) {
	d := New(thisDevice, graceWindow, nil)
	d.Init(9)

	d.NoteSaved(4)
	v, _ := d.KnownVersion()
	assert.Equal(t, int64(9), v)
}
