package workflow

import (
	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/notify"
)

// guardFunc decides whether a transition may fire.
type guardFunc func(c *Controller, ev core.Event) bool

// actionFunc mutates the generation context of the controller.
type actionFunc func(c *Controller, ev core.Event)

// transition is one row of the transition table.
type transition struct {
	To     core.State
	Guard  guardFunc
	Action actionFunc
}

// transitionKey uniquely identifies a transition.
type transitionKey struct {
	From  core.State
	Event core.EventType
}

// transitionTable maps (state, event) pairs to transitions.
//
//	idle -> generating -> reviewing_suggestion -> idle
//	             |   \-> (cancel) reviewing_suggestion (partial)
//	             \-> error -> idle | generating
var transitionTable = map[transitionKey]transition{
	// === Idle ===
	{core.StateIdle, core.EventUpdateContent}: {
		To: core.StateIdle, Action: updateContent,
	},
	{core.StateIdle, core.EventContinueWriting}: {
		To: core.StateGenerating, Guard: hasContent, Action: startGeneration,
	},

	// === Generating ===
	{core.StateGenerating, core.EventChunk}: {
		To: core.StateGenerating, Action: appendChunk,
	},
	{core.StateGenerating, core.EventDone}: {
		To: core.StateReviewingSuggestion, Action: completeSuggestion,
	},
	{core.StateGenerating, core.EventError}: {
		To: core.StateError, Action: failGeneration,
	},
	{core.StateGenerating, core.EventCancel}: {
		To: core.StateReviewingSuggestion, Action: cancelGeneration,
	},

	// === Reviewing ===
	{core.StateReviewingSuggestion, core.EventAccept}: {
		To: core.StateIdle, Action: acceptSuggestion,
	},
	{core.StateReviewingSuggestion, core.EventReject}: {
		To: core.StateIdle, Action: rejectSuggestion,
	},
	{core.StateReviewingSuggestion, core.EventRegenerate}: {
		To: core.StateGenerating, Guard: canRegenerate, Action: regenerate,
	},

	// === Error recovery ===
	{core.StateError, core.EventRetry}: {
		To: core.StateGenerating, Guard: hasContent, Action: startGeneration,
	},
	{core.StateError, core.EventDismissError}: {
		To: core.StateIdle, Action: dismissError,
	},
	{core.StateError, core.EventUpdateContent}: {
		To: core.StateIdle, Action: updateContentClearingError,
	},
	{core.StateError, core.EventContinueWriting}: {
		To: core.StateGenerating, Guard: hasContent, Action: startGeneration,
	},
}

// lookup returns the transition for a state/event pair.
func lookup(from core.State, event core.EventType) (transition, bool) {
	t, ok := transitionTable[transitionKey{From: from, Event: event}]
	return t, ok
}

// CanTransition reports whether the table has an entry for the pair,
// ignoring guards. Presentation layers use it to enable controls.
func CanTransition(from core.State, event core.EventType) bool {
	_, ok := lookup(from, event)
	return ok
}

// Guards

func hasContent(c *Controller, _ core.Event) bool { return c.gctx.HasContent() }

func canRegenerate(c *Controller, _ core.Event) bool {
	return c.opts.RegeneratePartial || !c.gctx.IsPartialSuggestion
}

// Actions

func updateContent(c *Controller, ev core.Event) {
	c.gctx.Content = ev.Text
}

func updateContentClearingError(c *Controller, ev core.Event) {
	c.gctx.Content = ev.Text
	c.gctx.ClearError()
}

func startGeneration(c *Controller, _ core.Event) {
	c.gctx.BaseContent = c.gctx.Content
	c.gctx.SuggestedContent = ""
	c.gctx.ClearError()
	c.gctx.IsPartialSuggestion = false
	c.startSession()
}

func appendChunk(c *Controller, ev core.Event) {
	c.gctx.SuggestedContent += ev.Text
}

func completeSuggestion(c *Controller, ev core.Event) {
	c.gctx.SuggestedContent = ev.Text
	c.gctx.IsPartialSuggestion = false
}

func failGeneration(c *Controller, ev core.Event) {
	c.gctx.SetError(ev.Text)
	c.gctx.SuggestedContent = ""

	n := notify.New(notify.OutcomeFailed, ev.SessionID)
	n.Message = ev.Text
	c.notify(n)
}

func cancelGeneration(c *Controller, _ core.Event) {
	c.adapter.Cancel()
	c.gctx.IsPartialSuggestion = true

	c.notify(notify.New(notify.OutcomeCancelled, c.sessionID))
}

func acceptSuggestion(c *Controller, _ core.Event) {
	partial := c.gctx.IsPartialSuggestion

	c.gctx.Content = c.gctx.BaseContent + c.gctx.SuggestedContent
	c.gctx.SuggestedContent = ""
	c.gctx.BaseContent = ""
	c.gctx.IsPartialSuggestion = false
	c.pendingSync = true

	n := notify.New(notify.OutcomeApplied, c.sessionID)
	n.Partial = partial
	c.notify(n)
}

func rejectSuggestion(c *Controller, _ core.Event) {
	c.gctx.Content = c.gctx.BaseContent
	c.gctx.SuggestedContent = ""
	c.gctx.BaseContent = ""
	c.gctx.IsPartialSuggestion = false
}

func regenerate(c *Controller, _ core.Event) {
	c.gctx.SuggestedContent = ""
	c.gctx.ClearError()
	c.gctx.IsPartialSuggestion = false
	c.startSession()
}

func dismissError(c *Controller, _ core.Event) {
	c.gctx.ClearError()
	c.gctx.SuggestedContent = ""
	c.gctx.IsPartialSuggestion = false
}
