package core

import "strings"

// Context is the generation context mutated by controller transition
// actions. A single instance lives for the lifetime of a controller and is
// never handed out by reference; observers get a Snapshot.
type Context struct {
	// Content is the authoritative document text as last known to the controller.
	Content string
	// BaseContent is the frozen copy of Content taken when a session starts.
	BaseContent string
	// SuggestedContent accumulates streamed fragments of the pending suggestion.
	SuggestedContent string
	// Error is the last failure description; nil when there is none.
	Error *string
	// IsPartialSuggestion marks a suggestion that was kept after a cancellation.
	IsPartialSuggestion bool
}

// HasContent reports whether Content holds anything besides whitespace.
func (c *Context) HasContent() bool { return strings.TrimSpace(c.Content) != "" }

// SetError records msg as the current failure.
func (c *Context) SetError(msg string) { c.Error = &msg }

// ClearError removes the current failure.
func (c *Context) ClearError() { c.Error = nil }

// ErrorMessage returns the failure description or "" when there is none.
func (c *Context) ErrorMessage() string {
	if c.Error == nil {
		return ""
	}
	return *c.Error
}

// Snapshot is a point-in-time value copy of the controller state and context.
type Snapshot struct {
	State               State  `json:"state"`
	Content             string `json:"content"`
	BaseContent         string `json:"base_content"`
	SuggestedContent    string `json:"suggested_content"`
	Error               string `json:"error,omitempty"`
	HasError            bool   `json:"has_error"`
	IsPartialSuggestion bool   `json:"is_partial_suggestion"`
	// SessionID names the session feeding the suggestion, if any.
	SessionID string `json:"session_id,omitempty"`
}

// Snapshot copies the context into a Snapshot for the given state.
func (c *Context) Snapshot(state State, sessionID string) Snapshot {
	return Snapshot{
		State:               state,
		Content:             c.Content,
		BaseContent:         c.BaseContent,
		SuggestedContent:    c.SuggestedContent,
		Error:               c.ErrorMessage(),
		HasError:            c.Error != nil,
		IsPartialSuggestion: c.IsPartialSuggestion,
		SessionID:           sessionID,
	}
}

// Preview returns the text a live preview should render: the base content
// followed by the suggestion while one is pending, else the content.
func (s Snapshot) Preview() string {
	switch s.State {
	case StateGenerating, StateReviewingSuggestion:
		return s.BaseContent + s.SuggestedContent
	default:
		return s.Content
	}
}
