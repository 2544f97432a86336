package notify

import (
	"sync"
)

// History is a process-local Notifier keeping the most recent notifications.
//
// Concurrency: protected by RWMutex. Nothing survives a restart.
type History struct {
	mu    sync.RWMutex
	limit int
	items []Notification
}

// NewHistory creates a History retaining at most limit notifications.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

// Notify implements Notifier.
func (h *History) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, n)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

// Recent returns up to n notifications, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.items) {
		n = len(h.items)
	}
	out := make([]Notification, 0, n)
	for i := len(h.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.items[i])
	}
	return out
}

// Session returns the notifications of one generation session in order.
func (h *History) Session(sessionID string) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Notification
	for _, n := range h.items {
		if n.SessionID == sessionID {
			out = append(out, n)
		}
	}
	return out
}

// Counts returns how often each outcome was recorded.
func (h *History) Counts() map[Outcome]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := make(map[Outcome]int, len(Outcomes))
	for _, n := range h.items {
		counts[n.Outcome]++
	}
	return counts
}
