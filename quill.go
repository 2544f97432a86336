// Package quill provides a high-level façade over the generation workflow:
// a model-backed generation service, the session adapter enforcing
// post-cancel silence, and the workflow controller holding the reviewable
// suggestion. Most applications interact with this package by:
//  1. Creating a Quill via New() (optionally overriding the model, document or notifier)
//  2. Running its event loop with Run
//  3. Sending user events (ContinueWriting, Cancel, Accept, ...) and rendering
//     snapshots from Subscribe
//
// All defaults are safe for local development and testing: a mock model and an
// in-memory document.
package quill

import (
	"context"

	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/document"
	"github.com/hupe1980/quill/generation"
	"github.com/hupe1980/quill/logging"
	"github.com/hupe1980/quill/model"
	"github.com/hupe1980/quill/notify"
	"github.com/hupe1980/quill/session"
	"github.com/hupe1980/quill/workflow"
)

// Options configures the Quill instance.
type Options struct {
	// Service performs generation requests. When nil a ModelService over
	// Model is used.
	Service generation.Service

	// Model backs the default service (defaults to a mock model).
	Model model.Model

	// Instruction is the system instruction template of the default service.
	Instruction string

	// Stream requests incremental fragments from Model.
	Stream bool

	// Document receives accepted text (defaults to an in-memory document).
	Document document.Document

	// Notifier receives workflow outcomes (defaults to NoOp).
	Notifier notify.Notifier

	// RegeneratePartial allows regenerating suggestions kept after a cancel.
	RegeneratePartial bool

	// EventBufferSize sets the buffer of the controller's event queue.
	EventBufferSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Quill is the high-level façade aggregating service, adapter and controller.
type Quill struct {
	opts       Options
	adapter    *session.Adapter
	controller *workflow.Controller
}

// New creates a new Quill instance with optional overrides.
func New(optFns ...func(o *Options)) *Quill {
	opts := Options{
		Instruction:       generation.DefaultInstruction,
		Stream:            true,
		Document:          document.NewMemory(""),
		Notifier:          notify.NoOp{},
		RegeneratePartial: true,
		EventBufferSize:   100,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Service == nil {
		if opts.Model == nil {
			opts.Model = model.NewMockModel("mock")
		}
		opts.Service = generation.NewModelService(opts.Model, func(o *generation.ModelServiceOptions) {
			o.Instruction = generation.NewInstructionFromText(opts.Instruction)
			o.Stream = opts.Stream
			o.Logger = withComponent(opts.Logger, "generation")
		})
	}

	adapter := session.NewAdapter(opts.Service, func(o *session.Options) {
		o.Logger = withComponent(opts.Logger, "session")
	})

	controller := workflow.New(adapter, func(o *workflow.Options) {
		o.RegeneratePartial = opts.RegeneratePartial
		o.EventBufferSize = opts.EventBufferSize
		o.Document = opts.Document
		o.Notifier = opts.Notifier
		o.Logger = withComponent(opts.Logger, "workflow")
	})

	return &Quill{opts: opts, adapter: adapter, controller: controller}
}

func withComponent(l logging.Logger, component string) logging.Logger {
	if ql, ok := l.(*logging.QuillLogger); ok {
		return ql.WithComponent(component)
	}
	return l
}

// Controller exposes the underlying workflow controller.
func (q *Quill) Controller() *workflow.Controller { return q.controller }

// Document returns the document accepted text is written to.
func (q *Quill) Document() document.Document { return q.opts.Document }

// Run processes events until ctx is done.
func (q *Quill) Run(ctx context.Context) error { return q.controller.Run(ctx) }

// Send delivers a user event and waits until it was processed.
func (q *Quill) Send(ctx context.Context, ev core.Event) (workflow.Result, error) {
	return q.controller.Send(ctx, ev)
}

// Refresh loads the document text into the workflow.
func (q *Quill) Refresh(ctx context.Context) (workflow.Result, error) {
	return q.controller.Refresh(ctx)
}

// SetContent replaces the text the next generation continues from.
func (q *Quill) SetContent(ctx context.Context, text string) (workflow.Result, error) {
	return q.Send(ctx, core.UpdateContent(text))
}

// ContinueWriting starts a generation from the current content.
func (q *Quill) ContinueWriting(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.ContinueWriting())
}

// Cancel stops the running generation and keeps its partial text for review.
func (q *Quill) Cancel(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.Cancel())
}

// Accept applies the reviewed suggestion to the document.
func (q *Quill) Accept(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.Accept())
}

// Reject discards the reviewed suggestion.
func (q *Quill) Reject(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.Reject())
}

// Regenerate discards the reviewed suggestion and generates a new one.
func (q *Quill) Regenerate(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.Regenerate())
}

// Retry restarts generation after a failure.
func (q *Quill) Retry(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.Retry())
}

// DismissError clears a failure and returns to idle.
func (q *Quill) DismissError(ctx context.Context) (workflow.Result, error) {
	return q.Send(ctx, core.DismissError())
}

// Snapshot returns a copy of the current workflow state.
func (q *Quill) Snapshot() core.Snapshot { return q.controller.Snapshot() }

// Subscribe streams workflow snapshots.
func (q *Quill) Subscribe() (<-chan core.Snapshot, func()) { return q.controller.Subscribe() }

// Await blocks until the workflow leaves the generating state and returns the
// resulting snapshot.
func (q *Quill) Await(ctx context.Context) (core.Snapshot, error) {
	snaps, unsubscribe := q.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return q.Snapshot(), ctx.Err()
		case s, ok := <-snaps:
			if !ok {
				return q.Snapshot(), workflow.ErrStopped
			}
			if s.State != core.StateGenerating {
				return s, nil
			}
		}
	}
}
