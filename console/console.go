package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/eventbus"
	"pkt.systems/jobterm/internal/logx"
	"pkt.systems/jobterm/schema"
	"pkt.systems/pslog"
)

const (
	renderInterval = 30 * time.Millisecond
	pageLines      = 10
	wheelLines     = 3
)

// Size is a terminal size in cells.
type Size struct {
	Width  int
	Height int
}

// Options configures a Console.
type Options struct {
	Engine *core.Engine
	// Bus delivers redraw notifications; the engine's EventSink must
	// publish to it.
	Bus    *eventbus.Bus
	In     io.Reader
	Out    io.Writer
	Size   Size
	Theme  *Theme
	Logger pslog.Logger
}

// Console is a display front end for one terminal. It owns the sessions
// it opens, renders the current one and forwards keys to the engine.
type Console struct {
	engine *core.Engine
	bus    *eventbus.Bus
	in     io.Reader
	screen *screen
	theme  Theme
	log    pslog.Logger

	width    int
	height   int
	tabStart int
	dirty    bool
	last     schema.SessionSnapshot

	mu      sync.Mutex
	owned   []schema.SessionID
	current schema.SessionID
}

// New validates opts and returns a Console.
func New(opts Options) (*Console, error) {
	if opts.Engine == nil {
		return nil, errors.New("console: engine is required")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("console: input and output are required")
	}
	theme := DefaultTheme
	if opts.Theme != nil {
		theme = *opts.Theme
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	c := &Console{
		engine: opts.Engine,
		bus:    opts.Bus,
		in:     opts.In,
		screen: newScreen(opts.Out),
		theme:  theme,
		log:    logger,
	}
	c.setSize(opts.Size)
	return c, nil
}

func (c *Console) setSize(size Size) {
	c.width, c.height = size.Width, size.Height
	if c.width <= 0 {
		c.width = 80
	}
	if c.height <= 0 {
		c.height = 24
	}
}

// Current returns the session being displayed.
func (c *Console) Current() schema.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Run opens a session and serves the terminal until input ends, the last
// owned session is closed or ctx is cancelled. Owned sessions are closed
// on return. The engine's scheduler loop must be running.
func (c *Console) Run(ctx context.Context, resize <-chan Size) error {
	if err := c.openSession(ctx); err != nil {
		return err
	}
	defer c.closeAll(ctx)
	c.screen.Enter()
	defer c.screen.Exit()

	var events <-chan eventbus.Event
	if c.bus != nil {
		ch, unsubscribe := c.bus.Subscribe(eventbus.AllSessions)
		defer unsubscribe()
		events = ch
	}

	keys := newQueue[key]()
	go readKeys(c.in, keys, c.intercept)

	outbox := newQueue[schema.InputEvent]()
	forwardDone := make(chan struct{})
	go c.forward(ctx, outbox, forwardDone)
	defer func() {
		outbox.close()
		<-forwardDone
	}()

	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()
	c.render()
	c.log.Info("console start", "width", c.width, "height", c.height)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keys.ready():
			batch, open := keys.drain()
			for _, k := range batch {
				if c.handleKey(ctx, k, outbox) {
					c.log.Info("console exit", "reason", "last session closed")
					return nil
				}
			}
			if !open {
				c.log.Info("console exit", "reason", "input closed")
				return nil
			}
		case size, ok := <-resize:
			if !ok {
				resize = nil
				continue
			}
			c.setSize(size)
			c.dirty = true
			c.log.Debug("console resize", "width", c.width, "height", c.height)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if c.concerns(ev) {
				c.dirty = true
			}
		case <-ticker.C:
			if c.dirty {
				c.render()
			}
		}
	}
}

// intercept runs on the key reading goroutine. Ctrl+C and Ctrl+Z reach
// the foreground process even while the scheduler is blocked on it.
func (c *Console) intercept(k key) bool {
	switch k.kind {
	case keyCtrlC:
		c.engine.Bridge().Interrupt()
		return true
	case keyCtrlZ:
		c.engine.Bridge().Stop()
		return true
	}
	return false
}

// forward submits queued input to the engine in order.
func (c *Console) forward(ctx context.Context, outbox *queue[schema.InputEvent], done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-outbox.ready():
		}
		batch, open := outbox.drain()
		for _, ev := range batch {
			if err := c.engine.Submit(ctx, ev); err != nil {
				c.log.Debug("console input dropped", "kind", ev.Kind.String(), "err", err)
			}
		}
		if !open {
			return
		}
	}
}

// handleKey maps k to engine input or session management. It reports
// whether the console should exit.
func (c *Console) handleKey(ctx context.Context, k key, outbox *queue[schema.InputEvent]) bool {
	current := c.Current()
	send := func(kind schema.InputKind, text string, delta int) {
		outbox.push(schema.InputEvent{Session: current, Kind: kind, Text: text, Delta: delta})
	}
	switch k.kind {
	case keyRune:
		send(schema.InputInsert, string(k.r), 0)
	case keyEnter:
		send(schema.InputSubmit, "", 0)
	case keyBackspace:
		send(schema.InputBackspace, "", 0)
	case keyDelete:
		send(schema.InputDelete, "", 0)
	case keyLeft:
		send(schema.InputCursorLeft, "", 0)
	case keyRight:
		send(schema.InputCursorRight, "", 0)
	case keyHome, keyCtrlA:
		send(schema.InputCursorHome, "", 0)
	case keyEnd, keyCtrlE:
		send(schema.InputCursorEnd, "", 0)
	case keyUp:
		send(schema.InputHistoryPrev, "", 0)
	case keyDown:
		send(schema.InputHistoryNext, "", 0)
	case keyPageUp:
		send(schema.InputScroll, "", pageLines)
	case keyPageDown:
		send(schema.InputScroll, "", -pageLines)
	case keyWheelUp:
		send(schema.InputScroll, "", wheelLines)
	case keyWheelDown:
		send(schema.InputScroll, "", -wheelLines)
	case keyTab:
		send(schema.InputComplete, "", 0)
	case keyCtrlR:
		send(schema.InputSearch, "", 0)
	case keyEsc:
		send(schema.InputCancelSearch, "", 0)
	case keyCtrlT:
		if err := c.openSession(ctx); err != nil {
			c.log.Warn("console session open failed", "err", err)
		}
	case keyShiftTab:
		c.cycle(1)
	case keyCtrlD:
		if c.last.Input == "" && !c.last.SearchMode {
			return c.closeCurrent(ctx)
		}
		send(schema.InputDelete, "", 0)
	}
	c.dirty = true
	return false
}

func (c *Console) openSession(ctx context.Context) error {
	s, err := c.engine.OpenSession(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.owned = append(c.owned, s.ID)
	c.current = s.ID
	c.mu.Unlock()
	logx.WithSession(ctx, s.ID).Debug("console session opened")
	c.dirty = true
	return nil
}

// closeCurrent closes the displayed session and reports whether none remain.
func (c *Console) closeCurrent(ctx context.Context) bool {
	c.mu.Lock()
	id := c.current
	idx := indexOf(c.owned, id)
	if idx >= 0 {
		c.owned = append(c.owned[:idx], c.owned[idx+1:]...)
	}
	c.current = ""
	if n := len(c.owned); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		c.current = c.owned[max(idx, 0)]
	}
	next := c.current
	c.mu.Unlock()
	if err := c.engine.CloseSession(ctx, id); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
		c.log.Warn("console session close failed", "err", err)
	}
	if next == "" {
		return true
	}
	_ = c.engine.ActivateSession(next)
	c.dirty = true
	return false
}

func (c *Console) cycle(delta int) {
	c.mu.Lock()
	n := len(c.owned)
	if n < 2 {
		c.mu.Unlock()
		return
	}
	idx := indexOf(c.owned, c.current)
	c.current = c.owned[((idx+delta)%n+n)%n]
	next := c.current
	c.mu.Unlock()
	_ = c.engine.ActivateSession(next)
	c.dirty = true
}

func (c *Console) closeAll(ctx context.Context) {
	c.mu.Lock()
	owned := append([]schema.SessionID(nil), c.owned...)
	c.owned = nil
	c.current = ""
	c.mu.Unlock()
	for _, id := range owned {
		_ = c.engine.CloseSession(ctx, id)
	}
}

func (c *Console) concerns(ev eventbus.Event) bool {
	switch ev.Type {
	case eventbus.EventRedraw:
		return ev.Redraw.Session == c.Current()
	case eventbus.EventSession:
		c.mu.Lock()
		defer c.mu.Unlock()
		return indexOf(c.owned, ev.Session.Session) >= 0
	}
	return false
}

func (c *Console) ownedSummaries() []schema.SessionSummary {
	c.mu.Lock()
	owned := append([]schema.SessionID(nil), c.owned...)
	c.mu.Unlock()
	out := make([]schema.SessionSummary, 0, len(owned))
	for _, summary := range c.engine.Sessions() {
		if indexOf(owned, summary.ID) >= 0 {
			out = append(out, summary)
		}
	}
	return out
}

// render repaints the screen: tab bar, scrollback rows and the input line.
func (c *Console) render() {
	c.dirty = false
	current := c.Current()
	// One row for the tab bar and one for a single-line input.
	view := c.height - 2
	if view < 1 {
		view = 1
	}
	snap, err := c.engine.Snapshot(current, view)
	if err != nil {
		c.log.Debug("console render skipped", "err", err)
		return
	}
	c.last = snap

	rows := make([]string, 0, c.height)
	tabBar, start := renderTabBar(c.ownedSummaries(), current, c.width, c.theme, c.tabStart)
	c.tabStart = start
	rows = append(rows, tabBar)

	input, cursorRow, cursorCol := renderInput(snap, c.width, c.theme)
	height := c.height - 1 - len(input)
	if height < 0 {
		height = 0
	}
	rows = append(rows, renderViewport(snap.Buffer, c.width, height, c.theme)...)
	rows = append(rows, input...)
	cursorRow += len(rows) - len(input)
	if err := c.screen.Render(rows, cursorRow, cursorCol); err != nil {
		c.log.Warn("console render failed", "err", err)
	}
}

func indexOf(ids []schema.SessionID, id schema.SessionID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
