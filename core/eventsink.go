package core

import "pkt.systems/jobterm/schema"

// EventSink receives redraw and session lifecycle notifications.
type EventSink interface {
	OnRedraw(event schema.RedrawEvent)
	OnSessionEvent(event schema.SessionEvent)
}
