package model

import (
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// Session is one live capture-to-query interaction. It carries the capture
// identifier explicitly instead of relying on a process-wide "current" id.
type Session struct {
	ID      CaptureID `json:"id"`
	OCRText string    `json:"ocr_text"`
}

// StreamEvent is one tagged item of a query stream. Exactly one event of kind
// done terminates every stream and it is always the last event.
type StreamEvent struct {
	Kind types.EventKind `json:"kind"`
	Text string          `json:"text,omitempty"`

	// Error is set on error events
	Error string `json:"error,omitempty"`

	// Answer and Matches are set on the done event of a search stream
	Answer  string   `json:"answer,omitempty"`
	Matches []*Match `json:"matches,omitempty"`
}

// Match is one ranked search hit
type Match struct {
	Capture *Capture `json:"capture"`
	Score   float64  `json:"score"`
}

// ThinkingEvent builds a reasoning-channel event
func ThinkingEvent(text string) StreamEvent {
	return StreamEvent{Kind: types.EventThinking, Text: text}
}

// MessageEvent builds an answer-channel event
func MessageEvent(text string) StreamEvent {
	return StreamEvent{Kind: types.EventMessage, Text: text}
}

// ErrorEvent builds a user-visible error event. It is not terminal.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Kind: types.EventError, Error: err.Error()}
}

// DoneEvent builds the terminal event
func DoneEvent() StreamEvent {
	return StreamEvent{Kind: types.EventDone}
}

// Chunk is one piece of a generation stream as returned by a backend. A
// backend may fill Message, Thinking or both. Err is only set on the last chunk.
type Chunk struct {
	Message  string
	Thinking string
	Err      error
}
