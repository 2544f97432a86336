package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/quill/model"
)

// FailureKind classifies a GenerationFailure.
type FailureKind string

const (
	// FailureTransport covers network and stream errors.
	FailureTransport FailureKind = "transport"
	// FailureRejected means the provider refused the request.
	FailureRejected FailureKind = "rejected"
	// FailureEmptyResult means the provider finished without producing text.
	FailureEmptyResult FailureKind = "empty_result"
	// FailureInternal covers faults inside the service or adapter.
	FailureInternal FailureKind = "internal"
)

// Failure is the normalized generation failure. Its Error text is what the
// workflow controller stores as the user visible error message.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureEmptyResult:
		return "generation returned no text"
	case FailureRejected:
		return fmt.Sprintf("generation rejected: %v", f.Err)
	case FailureInternal:
		return fmt.Sprintf("generation failed unexpectedly: %v", f.Err)
	default:
		return fmt.Sprintf("generation failed: %v", f.Err)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrEmptyResult is wrapped by empty result failures.
var ErrEmptyResult = errors.New("empty result")

// Classify normalizes any error into a Failure. Nil stays nil.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) && pe.Rejected() {
		return &Failure{Kind: FailureRejected, Err: err}
	}
	if errors.Is(err, ErrEmptyResult) {
		return &Failure{Kind: FailureEmptyResult, Err: err}
	}
	return &Failure{Kind: FailureTransport, Err: err}
}

// IsCancellation reports whether err only signals that the request was cancelled.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
