package eventbus

import (
	"context"
	"sync"

	"pkt.systems/jobterm/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventRedraw signals that a session's observable state changed.
	EventRedraw EventType = "redraw"
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
)

// AllSessions subscribes to events of every session.
const AllSessions schema.SessionID = ""

// Event represents a UI-facing event emitted by the engine.
type Event struct {
	Type    EventType
	Redraw  schema.RedrawEvent
	Session schema.SessionEvent
}

// Bus fans out events to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session and returns a channel + cancel.
// AllSessions receives every event.
func (b *Bus) Subscribe(sessionID schema.SessionID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[sessionID] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("session", sessionID).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[sessionID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, sessionID)
				}
			}
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.With("session", sessionID).Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnRedraw publishes a redraw event.
func (b *Bus) OnRedraw(event schema.RedrawEvent) {
	b.publish(event.Session, Event{Type: EventRedraw, Redraw: event})
}

// OnSessionEvent publishes a session lifecycle event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(event.Session, Event{Type: EventSession, Session: event})
}

func (b *Bus) publish(sessionID schema.SessionID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	var subs []chan Event
	for sub := range b.subs[sessionID] {
		subs = append(subs, sub)
	}
	if sessionID != AllSessions {
		for sub := range b.subs[AllSessions] {
			subs = append(subs, sub)
		}
	}
	// Send under the lock so a concurrent cancel cannot close a channel mid-send.
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("session", sessionID).Trace("eventbus dropped", "count", dropped)
	}
}
