package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/quill/core"
	"github.com/hupe1980/quill/document"
	"github.com/hupe1980/quill/generation"
	"github.com/hupe1980/quill/internal/testutil"
	"github.com/hupe1980/quill/notify"
	"github.com/hupe1980/quill/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctrl     *Controller
	svc      *testutil.ScriptedService
	notifier *testutil.RecordingNotifier
	doc      *document.Memory
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		svc:      testutil.NewScriptedService(),
		notifier: &testutil.RecordingNotifier{},
		doc:      document.NewMemory(""),
	}
	fns := append([]func(o *Options){func(o *Options) {
		o.Document = f.doc
		o.Notifier = f.notifier
	}}, optFns...)
	f.ctrl = New(session.NewAdapter(f.svc), fns...)
	return f
}

// send processes a user event followed by everything it caused to be queued,
// without an event loop goroutine.
func (f *fixture) send(t *testing.T, ev core.Event) Result {
	t.Helper()
	res := f.ctrl.handle(ev)
	f.ctrl.drainPending()
	f.pump(t)
	return res
}

// pump processes queued session events synchronously.
func (f *fixture) pump(t *testing.T) []Result {
	t.Helper()
	var out []Result
	for {
		select {
		case env := <-f.ctrl.queue:
			out = append(out, f.ctrl.handle(env.ev))
			assertInvariants(t, f.ctrl)
		default:
			assertInvariants(t, f.ctrl)
			return out
		}
	}
}

func (f *fixture) snap() core.Snapshot { return f.ctrl.Snapshot() }

// assertInvariants checks the context invariants that must hold between events.
func assertInvariants(t *testing.T, c *Controller) {
	t.Helper()
	s := c.Snapshot()
	if s.SuggestedContent != "" {
		assert.Contains(t, []core.State{core.StateGenerating, core.StateReviewingSuggestion}, s.State, "suggestion outside generating/reviewing")
	}
	if s.IsPartialSuggestion {
		assert.Equal(t, core.StateReviewingSuggestion, s.State, "partial flag outside reviewing")
	}
	if s.HasError {
		assert.Equal(t, core.StateError, s.State, "error outside error state")
	}
	if s.State == core.StateError {
		assert.True(t, s.HasError, "error state without error")
	}
}

func (f *fixture) startGenerating(t *testing.T, content string) *testutil.ScriptedCall {
	t.Helper()
	f.send(t, core.UpdateContent(content))
	res := f.send(t, core.ContinueWriting())
	require.True(t, res.Transitioned)
	require.Equal(t, core.StateGenerating, f.snap().State)
	return f.svc.Last()
}

func TestController_InitialState(t *testing.T) {
	f := newFixture(t)
	s := f.snap()
	assert.Equal(t, core.StateIdle, s.State)
	assert.Equal(t, core.Snapshot{State: core.StateIdle}, s)
}

func TestController_ScenarioA_AcceptCompleteSuggestion(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "Once upon a time")
	assert.Equal(t, "Once upon a time", call.Prompt)
	assert.Equal(t, "Once upon a time", f.snap().BaseContent)

	call.Chunk("a", "b", "c")
	f.pump(t)
	assert.Equal(t, "abc", f.snap().SuggestedContent)
	assert.Equal(t, core.StateGenerating, f.snap().State)

	call.Complete("abc")
	f.pump(t)
	s := f.snap()
	assert.Equal(t, core.StateReviewingSuggestion, s.State)
	assert.Equal(t, "abc", s.SuggestedContent)
	assert.False(t, s.IsPartialSuggestion)
	assert.Equal(t, "Once upon a timeabc", s.Preview())

	assert.Equal(t, 0, f.doc.Writes(), "document must not change before acceptance")

	res := f.send(t, core.Accept())
	require.True(t, res.Transitioned)
	s = f.snap()
	assert.Equal(t, core.StateIdle, s.State)
	assert.Equal(t, "Once upon a timeabc", s.Content)
	assert.Empty(t, s.BaseContent)
	assert.Empty(t, s.SuggestedContent)
	assert.Equal(t, "Once upon a timeabc", f.doc.Content())
	assert.Equal(t, 1, f.doc.Writes())

	assert.Equal(t, []notify.Outcome{notify.OutcomeApplied}, f.notifier.Outcomes())
	assert.False(t, f.notifier.All()[0].Partial)
}

func TestController_ScenarioB_CancelThenReject(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "Once upon a time")

	call.Chunk("a", "b")
	f.pump(t)

	res := f.send(t, core.Cancel())
	require.True(t, res.Transitioned)
	assert.True(t, call.Cancelled())

	s := f.snap()
	assert.Equal(t, core.StateReviewingSuggestion, s.State)
	assert.Equal(t, "ab", s.SuggestedContent)
	assert.True(t, s.IsPartialSuggestion)

	f.send(t, core.Reject())
	s = f.snap()
	assert.Equal(t, core.StateIdle, s.State)
	assert.Equal(t, "Once upon a time", s.Content)
	assert.Empty(t, s.SuggestedContent)
	assert.Empty(t, s.BaseContent)
	assert.False(t, s.IsPartialSuggestion)

	assert.Equal(t, 0, f.doc.Writes(), "reject never writes the document")
	assert.Equal(t, []notify.Outcome{notify.OutcomeCancelled}, f.notifier.Outcomes())
}

func TestController_ScenarioC_WhitespaceContentIsGuarded(t *testing.T) {
	f := newFixture(t)
	f.send(t, core.UpdateContent("   "))

	res := f.send(t, core.ContinueWriting())
	assert.False(t, res.Transitioned)
	assert.Equal(t, IgnoreGuard, res.Reason)
	assert.Equal(t, core.StateIdle, f.snap().State)
	assert.Empty(t, f.svc.Calls(), "no session may be started")
}

func TestController_ScenarioD_DismissError(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "Once upon a time")
	call.Chunk("partial")
	call.Fail("network failure")
	f.pump(t)

	s := f.snap()
	require.Equal(t, core.StateError, s.State)
	assert.Equal(t, "network failure", s.Error)
	assert.Empty(t, s.SuggestedContent)

	f.send(t, core.DismissError())
	s = f.snap()
	assert.Equal(t, core.StateIdle, s.State)
	assert.False(t, s.HasError)
	assert.Empty(t, s.SuggestedContent)
	assert.False(t, s.IsPartialSuggestion)
	assert.Equal(t, "Once upon a time", s.Content)

	require.Len(t, f.notifier.All(), 1)
	assert.Equal(t, notify.OutcomeFailed, f.notifier.All()[0].Outcome)
	assert.Equal(t, "network failure", f.notifier.All()[0].Message)
}

func TestController_CancelKeepsAccumulatedChunks(t *testing.T) {
	tests := [][]string{
		nil,
		{"a"},
		{"Hello", ", ", "world"},
		{" ", "\n", "ü"},
	}
	for _, chunks := range tests {
		t.Run(strings.Join(chunks, "|"), func(t *testing.T) {
			f := newFixture(t)
			call := f.startGenerating(t, "base")
			call.Chunk(chunks...)
			f.pump(t)
			f.send(t, core.Cancel())

			s := f.snap()
			assert.Equal(t, core.StateReviewingSuggestion, s.State)
			assert.Equal(t, strings.Join(chunks, ""), s.SuggestedContent)
			assert.True(t, s.IsPartialSuggestion)
		})
	}
}

func TestController_DoneReplacesAccumulatedText(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "base")
	call.Chunk("x", "y")
	call.Complete("the full text")
	f.pump(t)

	s := f.snap()
	assert.Equal(t, "the full text", s.SuggestedContent)
	assert.False(t, s.IsPartialSuggestion)
}

func TestController_AcceptIsExact(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "Base. ")
	call.Chunk("Partial")
	f.pump(t)
	f.send(t, core.Cancel())

	before := f.snap()
	f.send(t, core.Accept())

	after := f.snap()
	assert.Equal(t, before.BaseContent+before.SuggestedContent, after.Content)
	assert.Empty(t, after.BaseContent)
	assert.Empty(t, after.SuggestedContent)

	all := f.notifier.All()
	require.Len(t, all, 2)
	assert.Equal(t, notify.OutcomeApplied, all[1].Outcome)
	assert.True(t, all[1].Partial)
}

func TestController_PostCancelSilence(t *testing.T) {
	f := newFixture(t)
	f.svc.IgnoreCancel = true
	call := f.startGenerating(t, "base")
	call.Chunk("a")
	f.pump(t)
	f.send(t, core.Cancel())

	before := f.snap()

	// A misbehaving service keeps talking after cancel.
	call.Chunk("late")
	call.Complete("a late")
	call.Fail("late failure")
	f.pump(t)

	assert.Equal(t, before, f.snap())
	assert.Equal(t, []notify.Outcome{notify.OutcomeCancelled}, f.notifier.Outcomes())
}

func TestController_StaleEventsRacingCancelAreDropped(t *testing.T) {
	f := newFixture(t)
	call := f.startGenerating(t, "base")
	call.Chunk("a")
	// "b" passed the adapter guard before the cancel was processed.
	call.Chunk("b")

	// CANCEL is handled before the queued chunks.
	res := f.ctrl.handle(core.Cancel())
	require.True(t, res.Transitioned)

	results := f.pump(t)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Transitioned)
		assert.Equal(t, IgnoreStaleSession, r.Reason)
	}
	assert.Equal(t, "", f.snap().SuggestedContent)
	assert.True(t, f.snap().IsPartialSuggestion)
}

func TestController_RegenerateIsolatesSessions(t *testing.T) {
	f := newFixture(t)
	f.svc.IgnoreCancel = true
	first := f.startGenerating(t, "base")
	first.Chunk("old")
	first.Complete("old")
	f.pump(t)

	res := f.send(t, core.Regenerate())
	require.True(t, res.Transitioned)
	require.Len(t, f.svc.Calls(), 2)
	second := f.svc.Last()
	assert.Equal(t, "base", second.Prompt, "regenerate is seeded from the base content")
	assert.Equal(t, "base", f.snap().BaseContent)
	assert.Empty(t, f.snap().SuggestedContent)

	first.Chunk("stale")
	second.Chunk("fresh")
	f.pump(t)
	assert.Equal(t, "fresh", f.snap().SuggestedContent)

	second.Complete("fresh!")
	f.pump(t)
	f.send(t, core.Accept())
	assert.Equal(t, "basefresh!", f.snap().Content)
}

func TestController_RegeneratePartialOption(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		f := newFixture(t)
		call := f.startGenerating(t, "base")
		call.Chunk("a")
		f.pump(t)
		f.send(t, core.Cancel())

		res := f.send(t, core.Regenerate())
		assert.True(t, res.Transitioned)
		assert.Equal(t, core.StateGenerating, f.snap().State)
		assert.False(t, f.snap().IsPartialSuggestion)
	})

	t.Run("guarded when disabled", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.RegeneratePartial = false })
		call := f.startGenerating(t, "base")
		call.Chunk("a")
		f.pump(t)
		f.send(t, core.Cancel())

		res := f.send(t, core.Regenerate())
		assert.False(t, res.Transitioned)
		assert.Equal(t, IgnoreGuard, res.Reason)
		assert.Equal(t, core.StateReviewingSuggestion, f.snap().State)
		assert.Len(t, f.svc.Calls(), 1)

		// Complete suggestions can still be regenerated.
		f.send(t, core.Reject())
		call = f.startGenerating(t, "base")
		call.Complete("done")
		f.pump(t)
		res = f.send(t, core.Regenerate())
		assert.True(t, res.Transitioned)
	})
}

func TestController_ExitFromGeneratingReleasesSession(t *testing.T) {
	f := newFixture(t)

	call := f.startGenerating(t, "base")
	call.Complete("x")
	f.pump(t)
	assert.Equal(t, 1, call.CancelCount(), "natural completion still releases the session")

	f.send(t, core.Reject())
	call = f.startGenerating(t, "base")
	call.Fail("boom")
	f.pump(t)
	assert.Equal(t, 1, call.CancelCount())

	f.send(t, core.DismissError())
	call = f.startGenerating(t, "base")
	f.send(t, core.Cancel())
	assert.Equal(t, 1, call.CancelCount(), "cancel is issued once per session")
}

func TestController_ErrorRecovery(t *testing.T) {
	t.Run("retry", func(t *testing.T) {
		f := newFixture(t)
		call := f.startGenerating(t, "base")
		call.Fail("boom")
		f.pump(t)

		res := f.send(t, core.Retry())
		require.True(t, res.Transitioned)
		s := f.snap()
		assert.Equal(t, core.StateGenerating, s.State)
		assert.False(t, s.HasError)
		assert.Equal(t, "base", s.BaseContent)
		assert.Len(t, f.svc.Calls(), 2)
	})

	t.Run("continue writing", func(t *testing.T) {
		f := newFixture(t)
		call := f.startGenerating(t, "base")
		call.Fail("boom")
		f.pump(t)

		res := f.send(t, core.ContinueWriting())
		require.True(t, res.Transitioned)
		assert.Equal(t, core.StateGenerating, f.snap().State)
	})

	t.Run("update content", func(t *testing.T) {
		f := newFixture(t)
		call := f.startGenerating(t, "base")
		call.Fail("boom")
		f.pump(t)

		f.send(t, core.UpdateContent("edited"))
		s := f.snap()
		assert.Equal(t, core.StateIdle, s.State)
		assert.Equal(t, "edited", s.Content)
		assert.False(t, s.HasError)
	})

	t.Run("retry guard", func(t *testing.T) {
		f := newFixture(t)
		call := f.startGenerating(t, "base")
		call.Fail("boom")
		f.pump(t)

		f.ctrl.gctx.Content = " \t"
		res := f.send(t, core.Retry())
		assert.False(t, res.Transitioned)
		assert.Equal(t, IgnoreGuard, res.Reason)
		assert.Equal(t, core.StateError, f.snap().State)
	})
}

func TestController_ServiceStartFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.StartErr = errors.New("connection refused")
	f.send(t, core.UpdateContent("base"))
	f.send(t, core.ContinueWriting())

	s := f.snap()
	assert.Equal(t, core.StateError, s.State)
	assert.Equal(t, "generation failed: connection refused", s.Error)
}

func TestController_UnhandledEvents(t *testing.T) {
	f := newFixture(t)
	for _, ev := range []core.Event{core.Accept(), core.Reject(), core.Regenerate(), core.Retry(), core.DismissError(), core.Cancel()} {
		res := f.send(t, ev)
		assert.False(t, res.Transitioned, ev.Type)
		assert.Equal(t, IgnoreUnhandled, res.Reason, ev.Type)
	}

	f.startGenerating(t, "base")
	res := f.send(t, core.UpdateContent("typing while generating"))
	assert.Equal(t, IgnoreUnhandled, res.Reason)
	assert.Equal(t, "base", f.snap().Content)

	res = f.send(t, core.Accept())
	assert.Equal(t, IgnoreUnhandled, res.Reason)
}

func TestController_StreamEventsWithoutSessionAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.startGenerating(t, "base")

	res := f.send(t, core.Chunk("", "forged"))
	assert.Equal(t, IgnoreStaleSession, res.Reason)
	res = f.send(t, core.Done("unknown", "forged"))
	assert.Equal(t, IgnoreStaleSession, res.Reason)
	assert.Empty(t, f.snap().SuggestedContent)
}

func TestController_DocumentWriteFailureKeepsContent(t *testing.T) {
	svc := testutil.NewScriptedService()
	ctrl := New(session.NewAdapter(svc), func(o *Options) { o.Document = failingDocument{} })
	f := &fixture{ctrl: ctrl, svc: svc}

	call := f.startGenerating(t, "base")
	call.Complete("+")
	f.pump(t)
	f.send(t, core.Accept())

	assert.Equal(t, core.StateIdle, f.snap().State)
	assert.Equal(t, "base+", f.snap().Content)
}

type failingDocument struct{}

func (failingDocument) Content() string { return "" }

func (failingDocument) SetContent(string) error { return errors.New("disk full") }

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(core.StateIdle, core.EventContinueWriting))
	assert.True(t, CanTransition(core.StateReviewingSuggestion, core.EventRegenerate))
	assert.False(t, CanTransition(core.StateIdle, core.EventAccept))
	assert.False(t, CanTransition(core.StateGenerating, core.EventUpdateContent))

	// Every state can get back to idle through some event.
	for _, s := range core.States {
		if s == core.StateIdle || s == core.StateGenerating {
			continue
		}
		reachesIdle := false
		for key, tr := range transitionTable {
			if key.From == s && tr.To == core.StateIdle {
				reachesIdle = true
			}
		}
		assert.True(t, reachesIdle, s)
	}
}

func TestController_NotifierPanicIsContained(t *testing.T) {
	svc := testutil.NewScriptedService()
	ctrl := New(session.NewAdapter(svc), func(o *Options) {
		o.Notifier = notify.Func(func(notify.Notification) { panic("sink bug") })
	})
	f := &fixture{ctrl: ctrl, svc: svc}

	f.startGenerating(t, "base")
	res := f.send(t, core.Cancel())
	assert.True(t, res.Transitioned)
	assert.Equal(t, core.StateReviewingSuggestion, f.snap().State)
}

func TestController_RefreshRequiresDocument(t *testing.T) {
	ctrl := New(session.NewAdapter(testutil.NewScriptedService()))
	_, err := ctrl.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)
}

// inlineService delivers its whole output from within ContinueWriting.
type inlineService struct {
	chunks   int
	startErr error
}

func (s inlineService) ContinueWriting(_ string, cb generation.Callbacks) (generation.Handle, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	var full strings.Builder
	for i := 0; i < s.chunks; i++ {
		cb.OnChunk("x")
		full.WriteString("x")
	}
	cb.OnComplete(full.String())
	return generation.HandleFunc(func() {}), nil
}

// handleWithin runs fn on its own goroutine and fails when it does not
// return in time.
func handleWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("controller blocked on its own queue")
	}
}

func TestController_StartFailureWithFullQueue(t *testing.T) {
	ctrl := New(session.NewAdapter(inlineService{startErr: errors.New("refused")}), func(o *Options) {
		o.EventBufferSize = 1
	})
	ctrl.gctx.Content = "base"
	ctrl.queue <- envelope{ev: core.UpdateContent("queued by the user")}

	var res Result
	handleWithin(t, time.Second, func() {
		res = ctrl.handle(core.ContinueWriting())
		ctrl.drainPending()
	})

	assert.True(t, res.Transitioned)
	s := ctrl.Snapshot()
	assert.Equal(t, core.StateError, s.State)
	assert.Equal(t, "generation failed: refused", s.Error)
	assert.Len(t, ctrl.queue, 1, "the user event stays queued")
}

func TestController_InlineServiceOverflowingQueue(t *testing.T) {
	ctrl := New(session.NewAdapter(inlineService{chunks: 150}), func(o *Options) {
		o.EventBufferSize = 1
	})
	ctrl.gctx.Content = "base"

	handleWithin(t, time.Second, func() {
		ctrl.handle(core.ContinueWriting())
		ctrl.drainPending()
	})

	s := ctrl.Snapshot()
	assert.Equal(t, core.StateReviewingSuggestion, s.State)
	assert.Equal(t, strings.Repeat("x", 150), s.SuggestedContent)
	assert.False(t, s.IsPartialSuggestion)
	assert.Empty(t, ctrl.pending)
}
