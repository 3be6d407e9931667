package core

import "pkt.systems/pslog"

// EngineDeps captures optional dependencies for the engine.
type EngineDeps struct {
	// Bridge is shared with whatever forwards interrupt and stop requests.
	Bridge    *SignalBridge
	EventSink EventSink
	Logger    pslog.Logger
}
