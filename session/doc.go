// Package session houses the generation session adapter: the only bridge
// between the workflow controller and a generation.Service.
//
// The adapter owns at most one live session at a time. Starting a session
// cancels and discards its predecessor; cancelling a session flips a local
// guard flag before the service is told to stop, so fragments that race the
// cancellation are dropped here and never reach the controller.
package session
