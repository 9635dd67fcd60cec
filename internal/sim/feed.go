package sim

import (
	"sync"
	"time"
)

// EventKind tags entries in a run's live feed.
type EventKind string

const (
	EventLog      EventKind = "log"
	EventState    EventKind = "state"
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventUsage    EventKind = "usage"
	EventResult   EventKind = "result"
)

// Event is one entry in a run's live feed.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Feed is a bounded ring of run events with live subscribers. Slow
// subscribers lose events rather than stalling the run.
type Feed struct {
	mu          sync.RWMutex
	entries     []Event
	maxEntries  int
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewFeed creates a feed retaining up to maxEntries events.
func NewFeed(maxEntries int) *Feed {
	return &Feed{
		entries:     make([]Event, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish appends an event and broadcasts it to all subscribers.
func (f *Feed) Publish(kind EventKind, data any) {
	evt := Event{Kind: kind, Timestamp: time.Now().UTC(), Data: data}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if len(f.entries) >= f.maxEntries {
		f.entries = f.entries[1:]
	}
	f.entries = append(f.entries, evt)

	for ch := range f.subscribers {
		select {
		case ch <- evt:
		default:
			// subscriber is too slow, drop this event for them
		}
	}
	f.mu.Unlock()
}

// Recent returns the last n events, or all of them when n <= 0.
func (f *Feed) Recent(n int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := len(f.entries)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Event, n)
	copy(out, f.entries[total-n:])
	return out
}

// Subscribe returns a channel receiving new events. Call Unsubscribe
// when done.
func (f *Feed) Subscribe() chan Event {
	ch := make(chan Event, 64)
	f.mu.Lock()
	if f.closed {
		close(ch)
	} else {
		f.subscribers[ch] = struct{}{}
	}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (f *Feed) Unsubscribe(ch chan Event) {
	f.mu.Lock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()
}

// Close marks the run finished and closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		for ch := range f.subscribers {
			delete(f.subscribers, ch)
			close(ch)
		}
	}
	f.mu.Unlock()
}
