package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Request captures the normalized model input for one continuation.
type Request struct {
	Instructions string `json:"instructions"` // System level instructions
	Prompt       string `json:"prompt"`       // Text the model should continue
	Stream       bool   `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// Partial responses carry one streamed fragment in Text. The final response
// (Partial=false) carries the full generated text.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "end_turn", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required to drive generation.
//
// Generate returns immediately. Both channels are closed once the call has
// finished; at most one error is delivered. Cancelling ctx stops the call.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ProviderError wraps a failure reported by a model provider.
type ProviderError struct {
	Provider string
	// StatusCode is the HTTP status returned by the provider API, 0 if unknown.
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Rejected reports whether the provider refused the request (4xx).
func (e *ProviderError) Rejected() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// ErrEmptyPrompt is returned by models when asked to continue an empty prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error

	// Delay is slept between streamed fragments.
	Delay time.Duration
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

// AddResponse registers a deterministic canned continuation for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddFailure makes Generate fail for the given prompt.
func (m *MockModel) AddFailure(prompt string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prompt] = err
}

func (m *MockModel) lookup(prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[prompt]; ok {
		return "", err
	}
	if r, ok := m.responses[prompt]; ok {
		return r, nil
	}
	return " and then the story went on.", nil
}

// Generate implements Model; emits optional streaming word chunks then a final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if req.Prompt == "" {
			errCh <- ErrEmptyPrompt
			return
		}
		full, err := m.lookup(req.Prompt)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, piece := range splitWords(full) {
				if m.Delay > 0 {
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case <-time.After(m.Delay):
					}
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: piece}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// splitWords splits s into fragments that each end after a space, so that
// concatenating them yields s again.
func splitWords(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' && i+1 > start {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
