package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/quill/generation"
)

// ScriptedService is a generation.Service whose requests are driven manually.
//
//	svc := testutil.NewScriptedService()
//	... controller starts a session ...
//	svc.Last().Chunk("a")
//	svc.Last().Complete("a")
type ScriptedService struct {
	mu    sync.Mutex
	calls []*ScriptedCall

	// StartErr makes ContinueWriting fail synchronously.
	StartErr error
	// IgnoreCancel simulates a misbehaving service that keeps invoking
	// callbacks after it was cancelled.
	IgnoreCancel bool
}

// NewScriptedService creates an empty ScriptedService.
func NewScriptedService() *ScriptedService { return &ScriptedService{} }

// ContinueWriting implements generation.Service.
func (s *ScriptedService) ContinueWriting(prompt string, cb generation.Callbacks) (generation.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := &ScriptedCall{Prompt: prompt, cb: cb, ignoreCancel: s.IgnoreCancel}
	s.calls = append(s.calls, call)
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return call, nil
}

// Calls returns all requests in start order.
func (s *ScriptedService) Calls() []*ScriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ScriptedCall(nil), s.calls...)
}

// Last returns the most recent request or nil.
func (s *ScriptedService) Last() *ScriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

// ScriptedCall is one request made against a ScriptedService.
type ScriptedCall struct {
	Prompt string

	cb           generation.Callbacks
	ignoreCancel bool
	cancels      atomic.Int32
}

// Cancel implements generation.Handle.
func (c *ScriptedCall) Cancel() { c.cancels.Add(1) }

// Cancelled reports whether Cancel was called at least once.
func (c *ScriptedCall) Cancelled() bool { return c.cancels.Load() > 0 }

// CancelCount reports how often Cancel was called.
func (c *ScriptedCall) CancelCount() int { return int(c.cancels.Load()) }

func (c *ScriptedCall) silenced() bool { return c.Cancelled() && !c.ignoreCancel }

// Chunk delivers one fragment.
func (c *ScriptedCall) Chunk(pieces ...string) {
	for _, p := range pieces {
		if c.silenced() {
			return
		}
		c.cb.OnChunk(p)
	}
}

// Complete delivers the completion event.
func (c *ScriptedCall) Complete(full string) {
	if !c.silenced() {
		c.cb.OnComplete(full)
	}
}

// Fail delivers the error event.
func (c *ScriptedCall) Fail(msg string) {
	if !c.silenced() {
		c.cb.OnError(msg)
	}
}
