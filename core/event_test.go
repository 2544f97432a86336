package core

import "testing"

// Event constructor & helper method tests
func TestEvent_Constructors(t *testing.T) {
	e := UpdateContent("hello")
	if e.Type != EventUpdateContent || e.Text != "hello" || e.Timestamp.IsZero() || e.SessionID != "" {
		t.Fatalf("UpdateContent did not initialize fields correctly: %+v", e)
	}

	c := Chunk("s-1", "ab")
	if c.Type != EventChunk || c.Text != "ab" || c.SessionID != "s-1" {
		t.Fatalf("Chunk malformed: %+v", c)
	}

	d := Done("s-1", "abc")
	if d.Type != EventDone || d.Text != "abc" || d.SessionID != "s-1" {
		t.Fatalf("Done malformed: %+v", d)
	}

	f := Failed("s-2", "boom")
	if f.Type != EventError || f.Text != "boom" || f.SessionID != "s-2" {
		t.Fatalf("Failed malformed: %+v", f)
	}

	for _, ev := range []Event{ContinueWriting(), Cancel(), Accept(), Reject(), Regenerate(), Retry(), DismissError()} {
		if ev.Text != "" || ev.SessionID != "" {
			t.Fatalf("control event should carry no payload: %+v", ev)
		}
	}
}

func TestEventType_IsStream(t *testing.T) {
	stream := map[EventType]bool{
		EventChunk:           true,
		EventDone:            true,
		EventError:           true,
		EventCancel:          false,
		EventUpdateContent:   false,
		EventContinueWriting: false,
		EventAccept:          false,
	}
	for typ, want := range stream {
		if got := typ.IsStream(); got != want {
			t.Errorf("%s.IsStream() = %v, want %v", typ, got, want)
		}
	}
}
