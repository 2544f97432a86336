// Package core provides the foundational domain types shared by the Quill
// generation workflow. It defines:
//
//   - State (the four workflow states of the controller)
//   - EventType / Event (user, system and stream events fed into the controller)
//   - Context (the mutable generation context owned by the controller)
//   - Snapshot (an immutable value copy of Context handed to observers)
//
// The package intentionally keeps behavior (transition table, session
// handling, transports) out of scope so that every other package can depend
// on it without import cycles.
package core
