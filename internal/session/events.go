package session

import "time"

// EventKind classifies session lifecycle events.
type EventKind string

const (
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventReconnectPending EventKind = "reconnect_pending"
	EventRetriesExhausted EventKind = "retries_exhausted"
	EventStaleConnection  EventKind = "stale_connection"
)

// Event is one lifecycle observation, fanned out to registered sinks.
type Event struct {
	SessionID string
	Kind      EventKind
	Link      string // "uplink" or "downlink"
	Attempt   int    // reconnect attempt number, when applicable
	Delay     time.Duration
	At        time.Time
}

// EventSink receives session events. Delivery is best-effort and
// synchronous on the session's goroutines: sinks must not block and must
// swallow their own failures.
type EventSink interface {
	Record(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Record(e Event) { f(e) }
