// Package notify delivers semantic workflow outcomes (generation cancelled,
// suggestion applied, generation failed) to fire-and-forget sinks: logs,
// Prometheus counters, or anything implementing Notifier.
package notify

import (
	"time"

	"github.com/hupe1980/quill/logging"
)

// Outcome is a semantic workflow outcome.
type Outcome string

const (
	// OutcomeCancelled is sent when the user cancels a running generation.
	OutcomeCancelled Outcome = "generation-cancelled"
	// OutcomeApplied is sent when a suggestion is accepted into the content.
	OutcomeApplied Outcome = "suggestion-applied"
	// OutcomeFailed is sent when a generation session fails.
	OutcomeFailed Outcome = "generation-failed"
)

// Outcomes lists every Outcome.
var Outcomes = []Outcome{OutcomeCancelled, OutcomeApplied, OutcomeFailed}

// Notification describes one outcome.
type Notification struct {
	Outcome   Outcome
	SessionID string
	// Message is the failure description for OutcomeFailed.
	Message string
	// Partial is set when an applied suggestion came from a cancelled session.
	Partial   bool
	Timestamp time.Time
}

// New creates a Notification stamped with the current time.
func New(o Outcome, sessionID string) Notification {
	return Notification{Outcome: o, SessionID: sessionID, Timestamp: time.Now().UTC()}
}

// Notifier receives notifications. Implementations must not block for long:
// the controller calls Notify from its event loop. Wrap slow sinks with Async.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(n Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// NoOp discards notifications.
type NoOp struct{}

// Notify implements Notifier.
func (NoOp) Notify(Notification) {}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(n)
		}
	}
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger logging.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(n Notification) {
	if l.Logger == nil {
		return
	}
	switch n.Outcome {
	case OutcomeFailed:
		l.Logger.Warn("Generation failed", "session_id", n.SessionID, "error", n.Message)
	case OutcomeApplied:
		l.Logger.Info("Suggestion applied", "session_id", n.SessionID, "partial", n.Partial)
	default:
		l.Logger.Info("Generation cancelled", "session_id", n.SessionID)
	}
}
