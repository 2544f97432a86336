// Package document provides the authoritative text buffer the workflow
// controller reads from and writes accepted text into: an in-memory buffer
// and a plain text file that can be watched for external edits.
package document

import "sync"

// Document is the authoritative text store.
type Document interface {
	// Content returns the current text.
	Content() string
	// SetContent replaces the whole text.
	SetContent(text string) error
}

// Memory is an in-memory Document safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	text   string
	writes int
}

// NewMemory creates a Memory document holding initial.
func NewMemory(initial string) *Memory { return &Memory{text: initial} }

// Content implements Document.
func (m *Memory) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// SetContent implements Document.
func (m *Memory) SetContent(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.writes++
	return nil
}

// Writes returns how many times SetContent was called.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
