package types

import "fmt"

// EventKind is the channel of a query stream event
type EventKind string

const (
	EventThinking EventKind = "thinking"
	EventMessage  EventKind = "message"
	EventError    EventKind = "error"
	EventDone     EventKind = "done"
)

// AllEventKinds returns all valid event kinds
func AllEventKinds() []EventKind {
	return []EventKind{
		EventThinking,
		EventMessage,
		EventError,
		EventDone,
	}
}

// IsValid checks if the event kind is valid
func (k EventKind) IsValid() bool {
	switch k {
	case EventThinking, EventMessage, EventError, EventDone:
		return true
	default:
		return false
	}
}

func (k EventKind) String() string {
	return string(k)
}

// ParseEventKind parses a string into an EventKind
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid event kind: %s", s)
	}
	return kind, nil
}
