// Package events fans out folder-change notifications to SSE clients.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sdisaacson/desktop/internal/metrics"
)

// EventChanged is published after a mutation succeeds in a folder.
const EventChanged = "changed"

// Event is a change in one user's files.
type Event struct {
	Type      string `json:"type"`
	UID       string `json:"-"`
	WidgetID  string `json:"widgetId,omitempty"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription receives the events of one user.
type Subscription struct {
	C   chan Event
	uid string
}

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for uid's events.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(uid string) *Subscription {
	sub := &Subscription{C: make(chan Event, 64), uid: uid}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(n)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Calling it twice
// is harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.C)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(n)
}

// Publish delivers event to the subscribers of event.UID. Slow consumers
// miss events instead of blocking the publisher.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if sub.uid != event.UID {
			continue
		}
		select {
		case sub.C <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Notifier returns a callback publishing "changed" events for one widget.
func (b *Broadcaster) Notifier(uid, widgetID string) func(folder string) {
	return func(folder string) {
		b.Publish(Event{Type: EventChanged, UID: uid, WidgetID: widgetID, Path: folder})
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
