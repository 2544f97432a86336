package testutil

import (
	"sync"

	"github.com/hupe1980/quill/notify"
)

// RecordingNotifier records every notification it receives.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

// Notify implements notify.Notifier.
func (r *RecordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *RecordingNotifier) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

// Outcomes returns the recorded outcomes in order.
func (r *RecordingNotifier) Outcomes() []notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Outcome, len(r.items))
	for i, n := range r.items {
		out[i] = n.Outcome
	}
	return out
}
