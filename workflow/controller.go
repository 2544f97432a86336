package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/document"
	"github.com/hupe1980/quill/logging"
	"github.com/hupe1980/quill/notify"
	"github.com/hupe1980/quill/session"
)

var (
	// ErrStopped is returned when the controller's event loop has stopped.
	ErrStopped = errors.New("workflow controller stopped")
	// ErrAlreadyRunning is returned by Run when the event loop is already running.
	ErrAlreadyRunning = errors.New("workflow controller already running")
	// ErrNoDocument is returned by Refresh when no document is configured.
	ErrNoDocument = errors.New("workflow controller has no document")
)

// SessionAdapter starts and cancels generation sessions. *session.Adapter
// implements it.
type SessionAdapter interface {
	// Start cancels any active session and starts a new one for prompt.
	// emit may be called before Start returns.
	Start(prompt string, emit session.EmitFunc) string
	// Cancel cancels the active session; idempotent.
	Cancel()
	// Live reports whether id names the active, non-cancelled session.
	Live(id string) bool
}

// Options configures a Controller.
type Options struct {
	// RegeneratePartial allows REGENERATE for suggestions that were kept
	// after a cancellation. When false the transition is guarded.
	RegeneratePartial bool

	// EventBufferSize sets the buffer of the event queue shared by user
	// and session events.
	EventBufferSize int

	// Document receives accepted text. Optional.
	Document document.Document

	// Notifier receives workflow outcomes. Defaults to notify.NoOp.
	Notifier notify.Notifier

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// IgnoreReason explains why an event did not cause a transition.
type IgnoreReason string

const (
	// IgnoreNone means the event caused a transition.
	IgnoreNone IgnoreReason = ""
	// IgnoreUnhandled means the current state has no transition for the event.
	IgnoreUnhandled IgnoreReason = "unhandled"
	// IgnoreGuard means the transition exists but its guard failed.
	IgnoreGuard IgnoreReason = "guard"
	// IgnoreStaleSession means a stream event came from a session that is
	// no longer live (cancelled, replaced or finished).
	IgnoreStaleSession IgnoreReason = "stale_session"
)

// Result is the outcome of processing one event.
type Result struct {
	Event        core.EventType
	From         core.State
	To           core.State
	Transitioned bool
	Reason       IgnoreReason
}

type envelope struct {
	ev    core.Event
	reply chan Result
}

// Controller is the generation workflow state machine.
//
// The generation context is mutated only on the event loop goroutine. All
// exported methods are safe for concurrent use.
type Controller struct {
	adapter SessionAdapter
	opts    Options
	logger  logging.Logger

	queue   chan envelope
	done    chan struct{}
	running atomic.Bool

	// Owned by the event loop.
	state       core.State
	gctx        core.Context
	sessionID   string
	pendingSync bool
	// Events emitted while a session was starting on the loop goroutine.
	pending []core.Event

	snapMu   sync.RWMutex
	snapshot core.Snapshot

	subsMu  sync.Mutex
	subs    map[int]chan core.Snapshot
	nextSub int
}

// New creates a Controller in the idle state with an empty context.
func New(adapter SessionAdapter, optFns ...func(o *Options)) *Controller {
	opts := Options{
		RegeneratePartial: true,
		EventBufferSize:   100,
		Notifier:          notify.NoOp{},
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoOp{}
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 100
	}

	c := &Controller{
		adapter: adapter,
		opts:    opts,
		logger:  opts.Logger,
		queue:   make(chan envelope, opts.EventBufferSize),
		done:    make(chan struct{}),
		state:   core.StateIdle,
		subs:    make(map[int]chan core.Snapshot),
	}
	c.snapshot = c.gctx.Snapshot(c.state, "")
	return c
}

// Run processes events until ctx is done. It can be called only once; after
// it returns the controller is stopped, the active session is cancelled and
// all subscriptions are closed.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	c.logger.Info("Workflow controller started", "state", c.state)
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.queue:
			res := c.handle(env.ev)
			c.drainPending()
			if env.reply != nil {
				env.reply <- res
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.adapter.Cancel()
	close(c.done)

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.logger.Info("Workflow controller stopped", "state", c.state)
}

// Send enqueues a user event and waits until the event loop has processed it.
func (c *Controller) Send(ctx context.Context, ev core.Event) (Result, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	reply := make(chan Result, 1)

	select {
	case c.queue <- envelope{ev: ev, reply: reply}:
	case <-c.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-c.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Refresh reads the document and sends its text as UPDATE_CONTENT.
func (c *Controller) Refresh(ctx context.Context) (Result, error) {
	if c.opts.Document == nil {
		return Result{}, ErrNoDocument
	}
	return c.Send(ctx, core.UpdateContent(c.opts.Document.Content()))
}

// post enqueues a session event without waiting. Events posted after the
// controller stopped are dropped.
func (c *Controller) post(ev core.Event) {
	select {
	case c.queue <- envelope{ev: ev}:
	case <-c.done:
	}
}

// Snapshot returns a copy of the current state and context.
func (c *Controller) Snapshot() core.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// State returns the current state.
func (c *Controller) State() core.State { return c.Snapshot().State }

// Subscribe returns a channel receiving a snapshot after every transition,
// starting with the current one, and a function that ends the subscription.
// Slow subscribers only miss intermediate snapshots: the most recent one is
// always delivered.
func (c *Controller) Subscribe() (<-chan core.Snapshot, func()) {
	ch := make(chan core.Snapshot, 16)
	ch <- c.Snapshot()

	c.subsMu.Lock()
	select {
	case <-c.done:
		c.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

// handle runs one event through the transition table.
func (c *Controller) handle(ev core.Event) Result {
	from := c.state
	res := Result{Event: ev.Type, From: from, To: from}

	if ev.Type.IsStream() && !c.adapter.Live(ev.SessionID) {
		c.logger.Debug("Ignored event of stale session", "event", ev.Type, "session_id", ev.SessionID, "state", from)
		res.Reason = IgnoreStaleSession
		return res
	}

	t, ok := lookup(from, ev.Type)
	if !ok {
		c.logger.Debug("Ignored unhandled event", "event", ev.Type, "state", from)
		res.Reason = IgnoreUnhandled
		return res
	}
	if t.Guard != nil && !t.Guard(c, ev) {
		c.logger.Debug("Transition guard rejected event", "event", ev.Type, "state", from)
		res.Reason = IgnoreGuard
		return res
	}

	t.Action(c, ev)
	c.state = t.To

	// Leaving generating always releases the session.
	if from == core.StateGenerating && t.To != core.StateGenerating {
		c.adapter.Cancel()
	}
	if t.To == core.StateIdle {
		c.enterIdle()
	}

	if ev.Type != core.EventChunk {
		c.logger.Debug("Transition", "from", from, "event", ev.Type, "to", t.To, "session_id", c.sessionID)
	}

	res.To = t.To
	res.Transitioned = true
	c.publish()
	return res
}

// drainPending handles events a session emitted while it was starting.
func (c *Controller) drainPending() {
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		c.handle(ev)
	}
	c.pending = nil
}

func (c *Controller) startSession() {
	sink := &startSink{c: c, starting: true}
	c.sessionID = c.adapter.Start(c.gctx.BaseContent, sink.emit)
	c.pending = append(c.pending, sink.started()...)
	c.logger.Info("Generation started", "session_id", c.sessionID, "base_length", len(c.gctx.BaseContent))
}

// enterIdle reconciles accepted text into the document.
func (c *Controller) enterIdle() {
	c.sessionID = ""
	if !c.pendingSync {
		return
	}
	c.pendingSync = false
	if c.opts.Document == nil {
		return
	}
	if err := c.opts.Document.SetContent(c.gctx.Content); err != nil {
		c.logger.Error("Failed to write accepted text to document", "error", err)
	}
}

// startSink routes session events. Events emitted while Start runs on the
// loop goroutine are buffered, since posting them could block on a full
// queue that only the loop drains. Afterwards events go to the queue.
type startSink struct {
	c *Controller

	mu       sync.Mutex
	starting bool
	buffered []core.Event
}

func (s *startSink) emit(ev core.Event) {
	s.mu.Lock()
	if s.starting {
		s.buffered = append(s.buffered, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.c.post(ev)
}

// started switches to queue delivery and returns the buffered events.
func (s *startSink) started() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	out := s.buffered
	s.buffered = nil
	return out
}

func (c *Controller) notify(n notify.Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Notifier panicked", "outcome", n.Outcome, "panic", r)
		}
	}()
	c.opts.Notifier.Notify(n)
}

func (c *Controller) publish() {
	snap := c.gctx.Snapshot(c.state, c.sessionID)

	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: drop the oldest snapshot to make room for the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
