// Package logging provides a minimal logging interface and adapters for Quill.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the controller, the session adapter and the generation services use
// for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - QuillLogger with component / session scoped clones
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	q := quill.New(func(o *quill.Options) { o.Logger = logger })
package logging
