package core

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/jobterm/internal/command"
	"pkt.systems/jobterm/internal/logx"
	"pkt.systems/jobterm/internal/persist"
	"pkt.systems/jobterm/schema"
	"pkt.systems/pslog"
)

// Engine owns every session and drives them from one scheduler loop. Front
// ends feed it input events and read session snapshots.
type Engine struct {
	cfg     schema.EngineConfig
	bridge  *SignalBridge
	exec    *PipelineExecutor
	watcher *Watcher
	store   *persist.HistoryFile
	sink    EventSink
	logger  pslog.Logger

	inputs  chan schema.InputEvent
	stopped chan struct{}
	stop    sync.Once

	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
	order    []schema.SessionID
	active   schema.SessionID
	opened   int
}

// NewEngine constructs an engine with normalized limits.
func NewEngine(cfg schema.EngineConfig, deps EngineDeps) (*Engine, error) {
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	var store *persist.HistoryFile
	if cfg.HistoryFile != "" {
		store, err = persist.NewHistoryFileWithLogger(cfg.HistoryFile, logger)
		if err != nil {
			return nil, err
		}
	}
	bridge := deps.Bridge
	if bridge == nil {
		bridge = NewSignalBridge()
	}
	return &Engine{
		cfg:      cfg,
		bridge:   bridge,
		exec:     newPipelineExecutor(bridge, cfg.PollInterval),
		watcher:  newWatcher(cfg.Shell, cfg.WatchInterval),
		store:    store,
		sink:     deps.EventSink,
		logger:   logger,
		inputs:   make(chan schema.InputEvent, 64),
		stopped:  make(chan struct{}),
		sessions: make(map[schema.SessionID]*Session),
	}, nil
}

// Bridge returns the signal bridge front ends forward Ctrl+C and Ctrl+Z to.
func (e *Engine) Bridge() *SignalBridge {
	return e.bridge
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() schema.EngineConfig {
	return e.cfg
}

// Watcher returns the engine's watcher.
func (e *Engine) Watcher() *Watcher {
	return e.watcher
}

// OpenSession creates a session, loads the shared history file into it and
// makes it active.
func (e *Engine) OpenSession(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	if len(e.sessions) >= e.cfg.MaxSessions {
		e.mu.Unlock()
		return nil, schema.ErrTooManySessions
	}
	e.opened++
	title := fmt.Sprintf("tab %d", e.opened)
	e.mu.Unlock()

	id := schema.SessionID(uuid.NewString())
	log := logx.WithSession(ctx, id)
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	var entries []string
	loaded := false
	if e.store != nil {
		entries, loaded, err = e.store.Load(e.cfg.MaxHistory)
		if err != nil {
			log.Warn("session history load failed", "err", err)
		}
	}
	s := newSession(id, title, cwd, e.cfg, entries)
	s.log.setNotify(func() { e.notifyRedraw(id) })
	s.log.AppendLines("New tab created.")
	if loaded {
		s.log.AppendLines("Command history loaded from " + e.store.Path())
	}

	e.mu.Lock()
	if len(e.sessions) >= e.cfg.MaxSessions {
		e.mu.Unlock()
		return nil, schema.ErrTooManySessions
	}
	e.sessions[id] = s
	e.order = append(e.order, id)
	e.active = id
	e.mu.Unlock()

	log.Info("session opened", "title", title, "history", s.history.Len())
	e.notifySession(schema.SessionOpened, id)
	return s, nil
}

// CloseSession destroys a session, killing its active jobs.
func (e *Engine) CloseSession(ctx context.Context, id schema.SessionID) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	delete(e.sessions, id)
	idx := indexOf(e.order, id)
	e.order = append(e.order[:idx], e.order[idx+1:]...)
	if e.active == id {
		e.active = ""
		if len(e.order) > 0 {
			if idx >= len(e.order) {
				idx = len(e.order) - 1
			}
			e.active = e.order[idx]
		}
	}
	active := e.active
	e.mu.Unlock()

	s.markClosed()
	killed := s.jobs.KillAll()
	s.log.setNotify(nil)
	logx.WithSession(ctx, id).Info("session closed", "killed", killed)
	e.notifySession(schema.SessionClosed, id)
	if active != "" {
		e.notifySession(schema.SessionActivated, active)
	}
	return nil
}

// ActivateSession makes id the session that receives signal notices.
func (e *Engine) ActivateSession(id schema.SessionID) error {
	e.mu.Lock()
	if _, ok := e.sessions[id]; !ok {
		e.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	changed := e.active != id
	e.active = id
	e.mu.Unlock()
	if changed {
		e.notifySession(schema.SessionActivated, id)
	}
	return nil
}

// CycleSession activates the session delta positions away from the active one.
func (e *Engine) CycleSession(delta int) (schema.SessionID, error) {
	e.mu.Lock()
	if len(e.order) == 0 {
		e.mu.Unlock()
		return "", schema.ErrSessionNotFound
	}
	idx := indexOf(e.order, e.active)
	if idx < 0 {
		idx = 0
	}
	n := len(e.order)
	next := e.order[((idx+delta)%n+n)%n]
	e.mu.Unlock()
	return next, e.ActivateSession(next)
}

// Active returns the active session id.
func (e *Engine) Active() schema.SessionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Session returns the session with id.
func (e *Engine) Session(id schema.SessionID) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, schema.ErrSessionNotFound
	}
	return s, nil
}

// Sessions lists sessions in creation order.
func (e *Engine) Sessions() []schema.SessionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]schema.SessionSummary, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, schema.SessionSummary{
			ID:     id,
			Title:  e.sessions[id].Title,
			Active: id == e.active,
		})
	}
	return out
}

// Snapshot returns the render state of session id for a viewport of limit rows.
func (e *Engine) Snapshot(id schema.SessionID, limit int) (schema.SessionSnapshot, error) {
	s, err := e.Session(id)
	if err != nil {
		return schema.SessionSnapshot{}, err
	}
	return s.Snapshot(limit, id == e.Active()), nil
}

// Submit queues an input event for the scheduler loop.
func (e *Engine) Submit(ctx context.Context, event schema.InputEvent) error {
	select {
	case e.inputs <- event:
		return nil
	case <-e.stopped:
		return schema.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the scheduler loop. It handles queued input and, every poll
// interval, drains job output and signal notices. It returns when ctx is
// cancelled, after closing every session.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	e.logger.Debug("engine loop started", "poll", e.cfg.PollInterval)
	defer e.shutdown(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-e.inputs:
			if err := e.HandleInput(ctx, event); err != nil {
				logx.WithSession(ctx, event.Session).Debug("input rejected", "kind", event.Kind.String(), "err", err)
			}
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	e.stop.Do(func() {
		close(e.stopped)
		e.watcher.Stop()
		for _, summary := range e.Sessions() {
			_ = e.CloseSession(ctx, summary.ID)
		}
		e.logger.Debug("engine loop stopped")
	})
}

// Close stops the watcher and closes every session. It is safe to call
// after Run has returned.
func (e *Engine) Close(ctx context.Context) {
	e.shutdown(ctx)
}

// Tick polls the jobs of every session and delivers pending signal notices
// to the active session.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.order))
	for _, id := range e.order {
		sessions = append(sessions, e.sessions[id])
	}
	e.mu.Unlock()
	for _, s := range sessions {
		for _, job := range s.jobs.Poll(s.log) {
			logx.WithJob(logx.WithSession(ctx, s.ID), job.ID, job.Pid, job.Label).Info("job reaped")
		}
	}
	e.drainSignals(ctx)
}

func (e *Engine) drainSignals(ctx context.Context) {
	suspended := e.bridge.TakeSuspended()
	notice, hasNotice := e.bridge.TakeNotice()
	if len(suspended) == 0 && !hasNotice {
		return
	}
	s, err := e.Session(e.Active())
	if err != nil {
		e.logger.Warn("signal notice dropped", "err", err, "notice", notice)
		return
	}
	log := logx.WithSession(ctx, s.ID)
	for _, pid := range suspended {
		p, out, tracked := e.exec.registry.take(pid)
		if s.jobs.SetStopped(pid, true) {
			log.Info("job suspended", "pid", pid)
			continue
		}
		if !tracked {
			log.Warn("suspended process unknown", "pid", pid)
			continue
		}
		job, err := s.jobs.Register(p, out, "Suspended job", true)
		if err != nil {
			if out != nil {
				_ = out.Close()
			}
			s.log.AppendLines(fmt.Sprintf("jobterm: job table full, [%d] is not tracked", pid))
			log.Warn("job register failed", "pid", pid, "err", err)
			continue
		}
		logx.WithJob(log, job.ID, job.Pid, job.Label).Info("job suspended")
	}
	if hasNotice {
		s.log.AppendLines(notice)
	}
}

// HandleInput applies one input event on the calling goroutine. Run calls
// it for queued events; callers without a running loop may call it directly.
func (e *Engine) HandleInput(ctx context.Context, event schema.InputEvent) error {
	id := event.Session
	if id == "" {
		id = e.Active()
	}
	s, err := e.Session(id)
	if err != nil {
		return err
	}
	if event.Kind != schema.InputTick && event.Kind != schema.InputScroll {
		_ = e.ActivateSession(id)
	}
	ctx = logx.ContextWithSessionLogger(ctx, logx.WithSession(ctx, id), id)
	switch event.Kind {
	case schema.InputInsert:
		s.insert(event.Text)
	case schema.InputBackspace:
		s.backspace()
	case schema.InputDelete:
		s.deleteForward()
	case schema.InputCursorLeft, schema.InputCursorRight, schema.InputCursorHome, schema.InputCursorEnd:
		s.moveCursor(event.Kind)
	case schema.InputHistoryPrev:
		s.browseHistory(true)
	case schema.InputHistoryNext:
		s.browseHistory(false)
	case schema.InputSubmit:
		if s.inSearch() {
			e.resolveSearch(s)
		} else {
			e.submit(ctx, s)
		}
	case schema.InputComplete:
		if !s.inSearch() {
			e.complete(s)
		}
	case schema.InputSearch:
		if s.enterSearch() {
			s.log.AppendLines("[Search mode enabled]")
		}
	case schema.InputCancelSearch:
		if _, ok := s.leaveSearch(); ok {
			s.log.AppendLines("[Search cancelled]")
		}
	case schema.InputScroll:
		s.scroll(event.Delta)
	case schema.InputTick:
	default:
		return fmt.Errorf("unknown input kind %d", event.Kind)
	}
	e.notifyRedraw(id)
	return nil
}

// Execute submits line in session id as if it had been typed and entered.
func (e *Engine) Execute(ctx context.Context, id schema.SessionID, line string) error {
	s, err := e.Session(id)
	if err != nil {
		return err
	}
	s.setInput(line)
	return e.HandleInput(ctx, schema.InputEvent{Session: id, Kind: schema.InputSubmit})
}

func (e *Engine) submit(ctx context.Context, s *Session) {
	if s.continueLine() {
		return
	}
	raw := s.takeInput()
	line, err := schema.NormalizeCommandLine(raw)
	if err != nil {
		return
	}
	s.log.Append(line)
	s.log.ResetScroll()
	if s.history.Append(line) && e.store != nil {
		if err := e.store.Save(s.history.Entries()); err != nil {
			logx.Ctx(ctx).Warn("history save failed", "err", err)
		}
	}
	cmd, err := command.Parse(line, command.Options{Dir: s.Cwd(), MaxStages: e.cfg.MaxStages, NoGlob: e.cfg.NoGlob})
	if err != nil {
		s.log.AppendLines(err.Error())
		logx.Ctx(ctx).Debug("command rejected", "err", err)
		return
	}
	logx.Ctx(ctx).Debug("audit command", "kind", cmd.Kind.String(), "command", line)
	if cmd.Kind == command.KindPipeline {
		_ = e.exec.Run(ctx, s, cmd.Pipeline, line)
		return
	}
	e.runBuiltin(ctx, s, cmd)
}

func (e *Engine) resolveSearch(s *Session) {
	query, _ := s.leaveSearch()
	if query == "" {
		s.log.AppendLines("No term entered.")
		return
	}
	if match, ok := s.history.ExactMatch(query); ok {
		s.log.AppendLines("Exact match: " + match)
		s.setInput(match)
		return
	}
	if match, ok := s.history.LongestSubstringMatch(query); ok {
		s.log.AppendLines("Closest match: " + match)
		s.setInput(match)
		return
	}
	s.log.AppendLines("No match found in history.")
}

func (e *Engine) complete(s *Session) {
	line, cursor := s.inputState()
	result, ok := completePath(s.Cwd(), line, cursor)
	if !ok {
		return
	}
	if result.line != nil {
		s.setInputState(result.line, result.cursor)
	}
	s.log.AppendLines(result.notes...)
}

func (e *Engine) notifyRedraw(id schema.SessionID) {
	if e.sink != nil {
		e.sink.OnRedraw(schema.RedrawEvent{Session: id})
	}
}

func (e *Engine) notifySession(kind schema.SessionEventType, id schema.SessionID) {
	if e.sink != nil {
		e.sink.OnSessionEvent(schema.SessionEvent{Type: kind, Session: id})
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
