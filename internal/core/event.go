package core

import (
	"encoding/json"

	"github.com/casthub/streamdash/internal/store"
)

// EventKind is a notification the core emits to dashboard sessions.
type EventKind int

const (
	// EventAuthResult reports the outcome of an in-band auth attempt.
	EventAuthResult EventKind = iota
	// EventChatMessage delivers a stored chat message to the account's sessions.
	EventChatMessage
	// EventStreamEvent relays a platform event (follow, cheer, raid, ...).
	EventStreamEvent
	// EventStreamStarted announces a newly opened stream session.
	EventStreamStarted
	// EventStreamEnded announces a closed stream session.
	EventStreamEnded
	// EventStreamStatsUpdated announces updated stats on the open stream.
	EventStreamStatsUpdated
	// EventError reports a recoverable protocol error to one session.
	EventError
)

// Event is sent to sessions to describe what happened. Exactly one of the
// payload fields is set, matching Kind.
type Event struct {
	Kind        EventKind
	Auth        *AuthResult
	Chat        *store.ChatMessage
	StreamEvent *StreamEventPayload
	Stream      *store.StreamSession
	Error       *CoreError
}

// AuthResult is the payload for EventAuthResult.
type AuthResult struct {
	Success bool
	UserID  int64
	Reason  string
}

// StreamEventPayload is the payload for EventStreamEvent. Data is the
// untouched client payload, relayed verbatim.
type StreamEventPayload struct {
	EventType string
	Platform  string
	Data      json.RawMessage
}
