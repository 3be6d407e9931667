package eventbus

import (
	"testing"
	"time"

	"pkt.systems/jobterm/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.OnRedraw(schema.RedrawEvent{Session: "s1"})

	select {
	case got := <-ch:
		if got.Type != EventRedraw {
			t.Fatalf("expected redraw event, got %v", got.Type)
		}
		if got.Redraw.Session != "s1" {
			t.Fatalf("unexpected payload: %+v", got.Redraw)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSubscribeIsPerSession(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	defer cancel()
	bus.OnRedraw(schema.RedrawEvent{Session: "s2"})
	select {
	case got := <-ch:
		t.Fatalf("unexpected event for other session: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAllSessionsReceivesEverything(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(AllSessions)
	defer cancel()
	bus.OnRedraw(schema.RedrawEvent{Session: "s1"})
	bus.OnSessionEvent(schema.SessionEvent{Type: schema.SessionOpened, Session: "s2"})
	for _, want := range []EventType{EventRedraw, EventSession} {
		select {
		case got := <-ch:
			if got.Type != want {
				t.Fatalf("expected %s, got %s", want, got.Type)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("s1")
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs["s1"] {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: EventRedraw}
	done := make(chan struct{})
	go func() {
		bus.OnRedraw(schema.RedrawEvent{Session: "s1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
