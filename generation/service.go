package generation

// Callbacks receive the output of one generation request.
type Callbacks struct {
	// OnChunk receives one streamed fragment.
	OnChunk func(piece string)
	// OnComplete receives the full generated text after the last fragment.
	OnComplete func(fullText string)
	// OnError receives a human readable failure description.
	OnError func(message string)
}

// Handle controls one in-flight generation request.
type Handle interface {
	// Cancel stops the request. It is idempotent and safe to call after the
	// request has finished.
	Cancel()
}

// Service performs generation requests.
type Service interface {
	// ContinueWriting starts generating a continuation of prompt. An error is
	// returned only when the request could not be started at all; failures
	// after start are reported through Callbacks.OnError.
	ContinueWriting(prompt string, cb Callbacks) (Handle, error)
}

// HandleFunc adapts a plain function to Handle.
type HandleFunc func()

// Cancel implements Handle.
func (f HandleFunc) Cancel() { f() }
