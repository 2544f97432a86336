// Package workflow implements the generation workflow controller: an
// explicit state machine that owns the generation context, consumes user and
// session events from one queue, and decides when generated text becomes
// part of the document.
//
// The machine has four states (idle, generating, reviewing_suggestion,
// error) and no terminal state. Transitions are declared in a table mapping
// (state, event) to (guard, action, next state) and executed by a single
// writer goroutine started with Controller.Run; every event is processed to
// completion before the next one is dequeued.
//
// Typical usage:
//
//	adapter := session.NewAdapter(service)
//	ctrl := workflow.New(adapter, func(o *workflow.Options) {
//	    o.Document = doc
//	    o.Notifier = notifier
//	})
//	go ctrl.Run(ctx)
//
//	ctrl.Send(ctx, core.UpdateContent("Once upon a time"))
//	ctrl.Send(ctx, core.ContinueWriting())
//	// ... watch ctrl.Subscribe() for the streamed preview ...
//	ctrl.Send(ctx, core.Accept())
package workflow
