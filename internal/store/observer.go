package store

import "sync"

// EventKind classifies a store change event.
type EventKind string

const (
	// EventItemsChanged fires after a committed item write in a folder.
	EventItemsChanged EventKind = "items-changed"

	// EventFoldersChanged fires after the folder hierarchy changes.
	EventFoldersChanged EventKind = "folders-changed"

	// EventAccountChanged fires after account-level state changes
	// (policy key, removal).
	EventAccountChanged EventKind = "account-changed"

	// EventCacheDropped fires when a folder's cached items were
	// discarded by a cursor-invalid bootstrap. The UI should treat this
	// as a full reload, not an incremental change.
	EventCacheDropped EventKind = "cache-dropped"
)

// Event describes one committed change to the store.
type Event struct {
	Kind      EventKind
	AccountID string
	FolderID  string
}

// observers fans store events out to subscribers. Sends never block: a
// subscriber that falls behind loses events, matching the "UI reloads on
// demand" contract.
type observers struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newObservers() *observers {
	return &observers{subs: make(map[int]chan Event)}
}

func (o *observers) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = ch
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

func (o *observers) publish(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
