package notify

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/quill/logging"
)

// AsyncOptions configures an Async notifier.
type AsyncOptions struct {
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Async delivers notifications to an inner Notifier on a dedicated goroutine
// so that slow sinks never stall the caller. When the buffer is full new
// notifications are dropped and counted.
type Async struct {
	inner   Notifier
	logger  logging.Logger
	ch      chan Notification
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync starts the delivery goroutine. Call Close to stop it.
func NewAsync(inner Notifier, buffer int, optFns ...func(o *AsyncOptions)) *Async {
	opts := AsyncOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		inner:  inner,
		logger: opts.Logger,
		ch:     make(chan Notification, buffer),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for n := range a.ch {
		a.deliver(n)
	}
}

// deliver counts a panicking sink as a drop.
func (a *Async) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			a.dropped.Add(1)
			a.logger.Error("Notifier panicked", "outcome", n.Outcome, "session_id", n.SessionID, "panic", r)
		}
	}()
	a.inner.Notify(n)
}

// Notify implements Notifier. It never blocks.
func (a *Async) Notify(n Notification) {
	defer func() {
		// send on closed channel after Close
		if recover() != nil {
			a.dropped.Add(1)
		}
	}()
	select {
	case a.ch <- n:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many notifications were discarded or lost to a
// panicking sink.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting notifications and waits until queued ones are delivered.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.ch) })
	<-a.done
}
