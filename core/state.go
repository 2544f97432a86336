package core

// State is a workflow controller state.
type State string

const (
	// StateIdle is the initial state. No session is active and no suggestion is pending.
	StateIdle State = "idle"
	// StateGenerating means a generation session is streaming into SuggestedContent.
	StateGenerating State = "generating"
	// StateReviewingSuggestion waits for the user to accept, reject or regenerate.
	StateReviewingSuggestion State = "reviewing_suggestion"
	// StateError holds the last generation failure until retried or dismissed.
	StateError State = "error"
)

// States lists every controller state. There is no terminal state.
var States = []State{
	StateIdle,
	StateGenerating,
	StateReviewingSuggestion,
	StateError,
}

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }
