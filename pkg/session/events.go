package session

import "context"

// Event is a session lifecycle notification.
//
// The Record carried by Deleted and Expired events may be nil when the
// record was already gone by the time the event source looked it up; the
// session id is always present.
type Event interface {
	// SessionID returns the id of the session the event refers to.
	SessionID() string
}

// CreatedEvent is published after the first successful persist of a new session.
type CreatedEvent struct {
	Record *Record
	ID     string
}

func (e CreatedEvent) SessionID() string { return e.ID }

// DeletedEvent is published after an explicit delete.
type DeletedEvent struct {
	Record *Record
	ID     string
}

func (e DeletedEvent) SessionID() string { return e.ID }

// ExpiredEvent is published when an expired session is removed, whether the
// expiry was discovered lazily on lookup or proactively by the sweeper.
// Exactly one ExpiredEvent is published per expired session.
type ExpiredEvent struct {
	Record *Record
	ID     string
}

func (e ExpiredEvent) SessionID() string { return e.ID }

// Publisher is a fire-and-forget sink for lifecycle events. Implementations
// must not assume ordering across session ids. A panicking publisher is
// recovered and logged by the repository; it never fails the caller's
// operation.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) { f(ctx, event) }

// NopPublisher discards all events. Used when no publisher is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

var (
	_ Publisher = PublisherFunc(nil)
	_ Publisher = NopPublisher{}
)
