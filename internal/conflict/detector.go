// Package conflict implements the per-session version tracking that decides
// how an editing session reacts when the background sync channel writes a new
// version of the entry it has open: adopt silently, warn, or raise a conflict
// alert.
package conflict

import (
	"sync"
	"time"
)

// Outcome classifies one observed version change for the hosting session.
type Outcome int

const (
	// OutcomeNone: nothing to do (initial load, stale version, or this
	// session's own save echoing back).
	OutcomeNone Outcome = iota

	// OutcomeKeepDirty: an external write arrived while the session has
	// unsaved edits. The draft must be kept as-is and a transient warning
	// shown naming the other device; the session's next save supersedes the
	// external write (last-write-wins).
	OutcomeKeepDirty

	// OutcomeAdoptExternal: an external write arrived and the session is
	// clean. The draft and its baseline must be overwritten with the stored
	// values and any active edit mode exited.
	OutcomeAdoptExternal

	// OutcomeAdoptExternalAlert: as OutcomeAdoptExternal, but this session
	// saved moments ago, so its own recent save was likely just overwritten.
	// The session must raise a user-acknowledged conflict alert instead of a
	// transient notice.
	OutcomeAdoptExternalAlert
)

// Observation is a detector verdict: what the session should do, and which
// device caused it when the outcome is user-visible.
type Observation struct {
	Outcome     Outcome
	OtherDevice string
}

// Detector tracks the last entry version known to one editing session.
// Device identity is injected so tests can simulate arbitrary writers, and
// the clock so the save grace window needs no real waiting.
type Detector struct {
	deviceID string
	grace    time.Duration
	now      func() time.Time

	mu           sync.Mutex
	knownVersion int64
	initialized  bool
	lastSave     time.Time
	saved        bool
}

// New creates a detector for one editing session. deviceID is this device's
// identity; grace is the window after an own save during which an external
// overwrite escalates to an alert. A nil now selects time.Now.
func New(deviceID string, grace time.Duration, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{deviceID: deviceID, grace: grace, now: now}
}

// Init seeds the known version from the initial load of an existing entry.
func (d *Detector) Init(version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.knownVersion = version
	d.initialized = true
}

// NoteSaved records a successful save by this session: the session now knows
// the written version, and the grace window for conflict escalation opens.
func (d *Detector) NoteSaved(version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if version > d.knownVersion || !d.initialized {
		d.knownVersion = version
	}
	d.initialized = true
	d.lastSave = d.now()
	d.saved = true
}

// KnownVersion returns the last version this session observed, and whether
// any version has been observed at all.
func (d *Detector) KnownVersion() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.knownVersion, d.initialized
}

// Observe runs the protocol for one version change delivered by the sync
// channel: version and editedDevice come from the stored row, dirty is
// whether the session currently has unsaved edits.
//
// Duplicate deliveries are harmless: once a version has been observed it is
// never greater than the known version, so the second observation is a no-op.
func (d *Detector) Observe(version int64, editedDevice string, dirty bool) Observation {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Initial load: adopt without noise.
	if !d.initialized {
		d.knownVersion = version
		d.initialized = true
		return Observation{Outcome: OutcomeNone}
	}

	// Stale or already known; never regress.
	if version <= d.knownVersion {
		return Observation{Outcome: OutcomeNone}
	}

	// This device's own write echoing back through the store.
	if editedDevice == d.deviceID {
		d.knownVersion = version
		return Observation{Outcome: OutcomeNone}
	}

	d.knownVersion = version

	if dirty {
		return Observation{Outcome: OutcomeKeepDirty, OtherDevice: editedDevice}
	}

	if d.saved && d.now().Sub(d.lastSave) <= d.grace {
		// The alert fires once per overwritten save.
		d.saved = false
		return Observation{Outcome: OutcomeAdoptExternalAlert, OtherDevice: editedDevice}
	}
	return Observation{Outcome: OutcomeAdoptExternal, OtherDevice: editedDevice}
}
