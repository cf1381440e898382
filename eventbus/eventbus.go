// Package eventbus implements the event fan-out (component C8): it turns
// adapter events and internal state transitions into a single ordered
// stream of notifications for the UI transport.
//
// Grounded on rpc/dapserver/server.go's single-writer send queue. Sessions
// publish from their event handler and from the goroutines that call Run
// and Stop; Publish holds the bus mutex while it fills every subscriber's
// channel, so each subscriber sees notifications in the order Publish was
// called.
package eventbus

import (
	"sync"
	"time"
)

// Kind names the notification types emitted to the UI, as enumerated in
// the Event Fan-out component's responsibility list.
type Kind string

const (
	SessionCreated     Kind = "session-created"
	SessionStateChange Kind = "session-state-changed"
	SessionTerminated  Kind = "session-terminated"
	Stopped            Kind = "stopped"
	Continued          Kind = "continued"
	Output             Kind = "output"
	BreakpointValidated Kind = "breakpoint-validated"
	ThreadsUpdated     Kind = "threads-updated"
	Console            Kind = "console-message"
)

// Notification is one entry in the UI-facing event stream. Body carries
// kind-specific data; callers type-assert it or, for the jrpc2 binding,
// marshal it verbatim as JSON.
type Notification struct {
	Kind      Kind
	SessionID string
	Time      time.Time
	Body      interface{}
}

// Bus fans a single inbound stream of notifications out to any number of
// independent subscribers (e.g. the rpc/uiserver binding and a test
// harness watching at once).
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int

	// subscriberBuffer bounds how many notifications a slow subscriber
	// may lag behind before it starts dropping. A UI subscriber is
	// expected to drain promptly; a full buffer indicates the UI side
	// has stalled, not a producer bug.
	subscriberBuffer int
}

// New builds a Bus. bufferSize is the per-subscriber channel capacity;
// callers with no particular preference should pass 64.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subs:             make(map[int]chan Notification),
		subscriberBuffer: bufferSize,
	}
}

// Subscription is a handle returned by Subscribe. Callers must call
// Unsubscribe when done to stop receiving and free the channel.
type Subscription struct {
	id int
	ch chan Notification
	b  *Bus
}

// C returns the channel to receive notifications on.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Unsubscribe removes this subscription from the bus and closes its
// channel.
func (s *Subscription) Unsubscribe() {
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()
	close(s.ch)
}

// Subscribe registers a new subscriber and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Notification, b.subscriberBuffer)
	b.subs[id] = ch
	return &Subscription{id: id, ch: ch, b: b}
}

// Publish delivers n to every current subscriber. A subscriber whose
// buffer is full has the notification dropped for it rather than
// blocking the publisher, so a slow UI never stalls a session's event
// handling.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
