// Package testutil contains fakes used across tests to drive the workflow
// without a real model: a ScriptedService whose sessions are fed by the test
// and a RecordingNotifier. They are not intended for production usage.
package testutil
