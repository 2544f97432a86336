// Package generation defines the contract of a text generation service as
// seen by the session adapter, and provides ModelService, an implementation
// that continues text through any model.Model.
//
// A Service delivers an ordered, finite sequence of fragments through
// Callbacks.OnChunk followed by exactly one of OnComplete or OnError. After
// Handle.Cancel the service may deliver nothing at all, so callers must not
// wait for a terminal callback once they cancelled.
package generation
