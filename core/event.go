package core

import "time"

// EventType identifies what an Event asks the controller to do.
type EventType string

const (
	// EventUpdateContent replaces the known document text (user typing).
	EventUpdateContent EventType = "UPDATE_CONTENT"
	// EventContinueWriting starts a generation session from the current content.
	EventContinueWriting EventType = "CONTINUE_WRITING"
	// EventChunk appends one streamed fragment to the suggestion.
	EventChunk EventType = "CHUNK"
	// EventDone carries the full generated text of a naturally completed session.
	EventDone EventType = "DONE"
	// EventError reports a generation failure.
	EventError EventType = "ERROR"
	// EventCancel stops the active session and keeps the partial suggestion.
	EventCancel EventType = "CANCEL"
	// EventAccept applies the suggestion to the content.
	EventAccept EventType = "ACCEPT"
	// EventReject discards the suggestion.
	EventReject EventType = "REJECT"
	// EventRegenerate discards the suggestion and starts over from the base content.
	EventRegenerate EventType = "REGENERATE"
	// EventRetry restarts generation after a failure.
	EventRetry EventType = "RETRY"
	// EventDismissError clears a failure and returns to idle.
	EventDismissError EventType = "DISMISS_ERROR"
)

// IsStream reports whether events of this type originate from a generation
// session rather than from the user.
func (t EventType) IsStream() bool {
	return t == EventChunk || t == EventDone || t == EventError
}

// Event is the unit of input consumed by the workflow controller. After
// creation it should be treated as immutable.
//
// Text carries the payload of UPDATE_CONTENT (new content), CHUNK (fragment),
// DONE (full text) and ERROR (failure message). SessionID is set only on
// stream events and names the session that produced them.
type Event struct {
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates a bare event of the given type.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// UpdateContent creates an UPDATE_CONTENT event.
func UpdateContent(text string) Event {
	e := NewEvent(EventUpdateContent)
	e.Text = text
	return e
}

// ContinueWriting creates a CONTINUE_WRITING event.
func ContinueWriting() Event { return NewEvent(EventContinueWriting) }

// Cancel creates a CANCEL event.
func Cancel() Event { return NewEvent(EventCancel) }

// Accept creates an ACCEPT event.
func Accept() Event { return NewEvent(EventAccept) }

// Reject creates a REJECT event.
func Reject() Event { return NewEvent(EventReject) }

// Regenerate creates a REGENERATE event.
func Regenerate() Event { return NewEvent(EventRegenerate) }

// Retry creates a RETRY event.
func Retry() Event { return NewEvent(EventRetry) }

// DismissError creates a DISMISS_ERROR event.
func DismissError() Event { return NewEvent(EventDismissError) }

// Chunk creates a CHUNK event attributed to a session.
func Chunk(sessionID, piece string) Event {
	e := NewEvent(EventChunk)
	e.Text = piece
	e.SessionID = sessionID
	return e
}

// Done creates a DONE event attributed to a session.
func Done(sessionID, fullText string) Event {
	e := NewEvent(EventDone)
	e.Text = fullText
	e.SessionID = sessionID
	return e
}

// Failed creates an ERROR event attributed to a session.
func Failed(sessionID, message string) Event {
	e := NewEvent(EventError)
	e.Text = message
	e.SessionID = sessionID
	return e
}
