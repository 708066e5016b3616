// Package autosave implements the dual-timer scheduler that decides when an
// editing session's draft is flushed to the local store.
//
// Two clocks race while the user types: a debounce timer that restarts on
// every change (flush after a pause), and a max-wait timer that starts on the
// first change of a burst and is never restarted (flush at least this often
// under continuous typing). Whichever fires first triggers the flush and
// disarms the other.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/mindjig/trace-core/internal/logging"
)

// Reason says which timer triggered a flush.
type Reason string

const (
	// ReasonDebounce means typing paused long enough.
	ReasonDebounce Reason = "debounce"
	// ReasonMaxWait means continuous typing exhausted the max-wait window.
	ReasonMaxWait Reason = "max_wait"
)

// Timer is the controllable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts timer creation so tests can drive the scheduler without
// sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewRealClock returns a Clock backed by the runtime timers.
func NewRealClock() Clock { return realClock{} }

// FlushFunc performs the actual save. It runs on a timer goroutine; the
// implementation is responsible for its own synchronization and for dealing
// with empty or unchanged drafts.
type FlushFunc func(ctx context.Context, reason Reason)

// Scheduler is the per-session autosave state machine. All methods are safe
// for concurrent use.
type Scheduler struct {
	debounce time.Duration
	maxWait  time.Duration
	clock    Clock
	flush    FlushFunc
	log      logging.Logger

	mu       sync.Mutex
	gen      int
	burstGen int
	pending  bool
	debTimer Timer
	maxTimer Timer
}

// New creates a scheduler. debounce is the quiet period after the last
// change; maxWait caps how long a burst of continuous changes can defer the
// flush. A nil clock selects the real one.
func New(debounce, maxWait time.Duration, clock Clock, flush FlushFunc, log logging.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Scheduler{
		debounce: debounce,
		maxWait:  maxWait,
		clock:    clock,
		flush:    flush,
		log:      log,
	}
}

// NoteChange records one draft change. The first change of a burst arms both
// timers; later changes restart only the debounce timer. The max-wait timer
// keeps its original deadline for the whole burst.
func (s *Scheduler) NoteChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		s.pending = true
		s.gen++
		s.burstGen = s.gen
		s.debTimer = s.armLocked(s.debounce, ReasonDebounce)
		s.maxTimer = s.armLocked(s.maxWait, ReasonMaxWait)
		return
	}

	if s.debTimer != nil {
		s.debTimer.Stop()
	}
	s.gen++
	s.debTimer = s.armLocked(s.debounce, ReasonDebounce)
}

// armLocked creates a timer whose callback is a no-op unless the burst it was
// armed for is still the current one. The generation check makes a late
// firing of a stopped timer harmless.
func (s *Scheduler) armLocked(d time.Duration, reason Reason) Timer {
	gen := s.gen
	return s.clock.AfterFunc(d, func() { s.fire(gen, reason) })
}

func (s *Scheduler) fire(gen int, reason Reason) {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	// The debounce timer is re-armed with a fresh generation on every change,
	// so only the latest one may fire; the max-wait timer keeps the
	// generation of the burst's first change, valid across debounce restarts.
	valid := s.gen
	if reason == ReasonMaxWait {
		valid = s.burstGen
	}
	if gen != valid {
		s.mu.Unlock()
		return
	}
	s.disarmLocked()
	s.mu.Unlock()

	s.log.Debug(context.Background(), "autosave flush", "reason", string(reason))
	s.flush(context.Background(), reason)
}

// Pending reports whether a flush is currently scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Cancel disarms both timers without flushing. Used after a manual save (the
// draft is clean, nothing left to flush) and on session teardown.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	s.pending = false
	s.gen++
	if s.debTimer != nil {
		s.debTimer.Stop()
		s.debTimer = nil
	}
	if s.maxTimer != nil {
		s.maxTimer.Stop()
		s.maxTimer = nil
	}
}
