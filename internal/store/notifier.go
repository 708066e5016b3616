package store

import "sync"

// ChangeSource says which side of the system wrote a row.
type ChangeSource int

const (
	// SourceLocal marks writes made by this process's mutation service.
	SourceLocal ChangeSource = iota
	// SourceRemote marks rows pulled in by the background sync channel.
	SourceRemote
)

// EntryChange describes one observed write to an entry row. It carries just
// enough for the conflict detector to run its protocol; subscribers re-read
// the row if they need field values.
type EntryChange struct {
	EntryID string
	Version int64
	Device  string
	Source  ChangeSource
	Deleted bool
}

// Notifier is a small in-process pub/sub over entry row changes, keyed by
// entry id. It stands in for a reactive cache subscription: the editing
// session subscribes to the entry it has open, the sync channel publishes
// whatever it pulls.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan EntryChange
	all    map[int]chan EntryChange
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[int]chan EntryChange),
		all:  make(map[int]chan EntryChange),
	}
}

// Subscribe registers interest in changes to one entry. The returned channel
// is buffered; a subscriber that falls far behind loses the oldest
// notifications rather than blocking the publisher. Call the returned
// function to unsubscribe.
func (n *Notifier) Subscribe(entryID string) (<-chan EntryChange, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID

	ch := make(chan EntryChange, 16)
	if n.subs[entryID] == nil {
		n.subs[entryID] = make(map[int]chan EntryChange)
	}
	n.subs[entryID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if m, ok := n.subs[entryID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(n.subs, entryID)
			}
		}
	}
	return ch, cancel
}

// SubscribeAll registers interest in changes to every entry. List views use
// this to refresh on any write, local or pulled. Same delivery rules as
// Subscribe.
func (n *Notifier) SubscribeAll() (<-chan EntryChange, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID

	ch := make(chan EntryChange, 16)
	n.all[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.all[id]; ok {
			delete(n.all, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers a change to every subscriber of its entry and to every
// wildcard subscriber. Publishing never blocks: if a subscriber's buffer is
// full the oldest queued change is dropped in favour of the new one (only the
// latest version matters to the conflict protocol).
func (n *Notifier) Publish(c EntryChange) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[c.EntryID] {
		offer(ch, c)
	}
	for _, ch := range n.all {
		offer(ch, c)
	}
}

func offer(ch chan EntryChange, c EntryChange) {
	select {
	case ch <- c:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}
