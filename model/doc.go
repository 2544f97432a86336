// Package model defines the provider-agnostic abstractions for text
// generation models used by Quill.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Normalize provider failures (ProviderError) so callers can classify them
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) live in sub-packages and implement Model so
// that the generation service stays decoupled from vendor SDKs.
package model
