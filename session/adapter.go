package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/generation"
	"github.com/hupe1980/quill/logging"
)

// EmitFunc receives the events of a session. The controller passes a
// function that enqueues onto its event queue.
type EmitFunc func(core.Event)

// Options configures an Adapter.
type Options struct {
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
	// NewID generates session identifiers. Defaults to uuid.NewString.
	NewID func() string
}

// Adapter manages the lifecycle of generation sessions against one Service.
// It is safe for concurrent use; the controller drives Start and Cancel from
// its event loop while service callbacks arrive on other goroutines.
type Adapter struct {
	service generation.Service
	logger  logging.Logger
	newID   func() string

	mu      sync.Mutex
	current *run
}

// NewAdapter creates an Adapter over service.
func NewAdapter(service generation.Service, optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Logger: logging.NoOpLogger{},
		NewID:  uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Adapter{service: service, logger: opts.Logger, newID: opts.NewID}
}

// run is one session: a single request/stream cycle against the service.
type run struct {
	id     string
	emit   EmitFunc
	logger logging.Logger

	cancelled atomic.Bool
	finished  atomic.Bool

	mu     sync.Mutex
	handle generation.Handle
}

// cancel sets the guard flag first, then stops the underlying request.
func (s *run) cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (s *run) setHandle(h generation.Handle) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	// Cancelled while the service was starting.
	if h != nil && s.cancelled.Load() {
		h.Cancel()
	}
}

func (s *run) forward(ev core.Event) {
	if s.cancelled.Load() {
		s.logger.Debug("Dropped event of cancelled session", "event", ev.Type, "session_id", s.id)
		return
	}
	if s.finished.Load() {
		s.logger.Warn("Dropped event after terminal event", "event", ev.Type, "session_id", s.id)
		return
	}
	s.emit(ev)
}

func (s *run) finish(ev core.Event) {
	if s.cancelled.Load() {
		s.logger.Debug("Dropped event of cancelled session", "event", ev.Type, "session_id", s.id)
		return
	}
	if !s.finished.CompareAndSwap(false, true) {
		s.logger.Warn("Dropped duplicate terminal event", "event", ev.Type, "session_id", s.id)
		return
	}
	s.emit(ev)
}

func (s *run) callbacks() generation.Callbacks {
	return generation.Callbacks{
		OnChunk:    func(piece string) { s.forward(core.Chunk(s.id, piece)) },
		OnComplete: func(full string) { s.finish(core.Done(s.id, full)) },
		OnError:    func(msg string) { s.finish(core.Failed(s.id, msg)) },
	}
}

// Start cancels any existing session and starts a new one for prompt. Events
// of the new session are passed to emit. It returns the new session id.
//
// Start never fails: a service that cannot start the request, or panics
// while doing so, is reported as an ERROR event of the new session.
func (a *Adapter) Start(prompt string, emit EmitFunc) string {
	s := &run{id: a.newID(), emit: emit, logger: a.logger}

	a.mu.Lock()
	prev := a.current
	a.current = s
	a.mu.Unlock()

	if prev != nil {
		a.logger.Debug("Cancelling previous session", "session_id", prev.id)
		prev.cancel()
	}

	a.logger.Debug("Starting session", "session_id", s.id, "prompt_length", len(prompt))

	h, err := a.startService(prompt, s.callbacks())
	if err != nil {
		failure := generation.Classify(err)
		a.logger.Error("Failed to start session", "session_id", s.id, "error", failure)
		s.finish(core.Failed(s.id, failure.Error()))
		return s.id
	}
	s.setHandle(h)
	return s.id
}

func (a *Adapter) startService(prompt string, cb generation.Callbacks) (h generation.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = &generation.Failure{Kind: generation.FailureInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.service.ContinueWriting(prompt, cb)
}

// Cancel cancels the current session, if any. It is idempotent and safe to
// call after the session finished naturally.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	s := a.current
	a.current = nil
	a.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	a.logger.Debug("Session released", "session_id", s.id)
}

// Live reports whether id names the current, non-cancelled session. Events
// of any other session must be ignored.
func (a *Adapter) Live(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil && a.current.id == id && !a.current.cancelled.Load()
}

// active returns the id of the current session.
func (a *Adapter) active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return "", false
	}
	return a.current.id, true
}
