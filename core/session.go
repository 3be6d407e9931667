package core

import (
	"sync"
	"time"

	"pkt.systems/jobterm/schema"
)

// Session is one terminal tab: its logs, jobs, working directory and
// input line. The scheduler mutates it; front ends read snapshots.
type Session struct {
	ID      schema.SessionID
	Title   string
	Created time.Time

	log     *ScrollbackLog
	history *HistoryStore
	jobs    *JobTable

	mu          sync.Mutex
	cwd         string
	input       []rune
	cursor      int
	histIndex   int
	searchMode  bool
	searchQuery []rune
	viewport    int

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id schema.SessionID, title, cwd string, cfg schema.EngineConfig, history []string) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		Created:   time.Now(),
		log:       newScrollback(cfg.MaxLines),
		history:   newHistoryFromPersisted(history, cfg.MaxHistory),
		jobs:      newJobTable(cfg.MaxJobs),
		cwd:       cwd,
		histIndex: -1,
		done:      make(chan struct{}),
	}
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Log returns the session scrollback.
func (s *Session) Log() *ScrollbackLog {
	return s.log
}

// History returns the session command history.
func (s *Session) History() *HistoryStore {
	return s.history
}

// Jobs returns the session job table.
func (s *Session) Jobs() *JobTable {
	return s.jobs
}

// Cwd returns the working directory used for spawned processes.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Session) setCwd(dir string) {
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
}

// Snapshot returns the state a front end renders. limit is the number of
// scrollback rows the front end can show.
func (s *Session) Snapshot(limit int, active bool) schema.SessionSnapshot {
	s.mu.Lock()
	if limit > 0 {
		s.viewport = limit
	}
	snap := schema.SessionSnapshot{
		ID:          s.ID,
		Title:       s.Title,
		Active:      active,
		Cwd:         s.cwd,
		Input:       string(s.input),
		Cursor:      s.cursor,
		SearchMode:  s.searchMode,
		SearchQuery: string(s.searchQuery),
	}
	s.mu.Unlock()
	if snap.SearchMode {
		snap.SearchPreview, _ = s.history.ContainsMatch(snap.SearchQuery)
	}
	snap.Buffer = s.log.Snapshot(limit)
	snap.Jobs = s.jobs.Snapshot()
	return snap
}

func (s *Session) scroll(delta int) {
	s.mu.Lock()
	viewport := s.viewport
	s.mu.Unlock()
	s.log.Scroll(delta, viewport)
}

func (s *Session) insert(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode {
		s.searchQuery = append(s.searchQuery, []rune(text)...)
		return
	}
	runes := []rune(text)
	line := make([]rune, 0, len(s.input)+len(runes))
	line = append(line, s.input[:s.cursor]...)
	line = append(line, runes...)
	line = append(line, s.input[s.cursor:]...)
	s.input = line
	s.cursor += len(runes)
}

func (s *Session) backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode {
		if n := len(s.searchQuery); n > 0 {
			s.searchQuery = s.searchQuery[:n-1]
		}
		return
	}
	if s.cursor == 0 {
		return
	}
	s.input = append(s.input[:s.cursor-1], s.input[s.cursor:]...)
	s.cursor--
}

func (s *Session) deleteForward() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode || s.cursor >= len(s.input) {
		return
	}
	s.input = append(s.input[:s.cursor], s.input[s.cursor+1:]...)
}

func (s *Session) moveCursor(kind schema.InputKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode {
		return
	}
	switch kind {
	case schema.InputCursorLeft:
		if s.cursor > 0 {
			s.cursor--
		}
	case schema.InputCursorRight:
		if s.cursor < len(s.input) {
			s.cursor++
		}
	case schema.InputCursorHome:
		s.cursor = 0
	case schema.InputCursorEnd:
		s.cursor = len(s.input)
	}
}

// browseHistory walks the history into the input line. Moving past the
// newest entry clears the line.
func (s *Session) browseHistory(older bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode {
		return
	}
	count := s.history.Len()
	if count == 0 {
		return
	}
	switch {
	case older && s.histIndex == -1:
		s.histIndex = count - 1
	case older && s.histIndex > 0:
		s.histIndex--
	case older:
		return
	case s.histIndex >= 0 && s.histIndex < count-1:
		s.histIndex++
	default:
		s.histIndex = -1
		s.input = nil
		s.cursor = 0
		return
	}
	entry, _ := s.history.At(s.histIndex)
	s.input = []rune(entry)
	s.cursor = len(s.input)
}

// continueLine turns a trailing backslash into a newline and reports
// whether it did so.
func (s *Session) continueLine() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.input)
	if n == 0 || s.input[n-1] != '\\' {
		return false
	}
	s.input[n-1] = '\n'
	s.cursor = n
	return true
}

// takeInput clears the input line and returns its text.
func (s *Session) takeInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := string(s.input)
	s.input = nil
	s.cursor = 0
	s.histIndex = -1
	return text
}

func (s *Session) setInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = []rune(text)
	s.cursor = len(s.input)
}

func (s *Session) inputState() ([]rune, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rune(nil), s.input...), s.cursor
}

func (s *Session) setInputState(line []rune, cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = line
	s.cursor = cursor
}

// enterSearch switches to history search and reports whether the mode changed.
func (s *Session) enterSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchMode {
		return false
	}
	s.searchMode = true
	s.searchQuery = nil
	return true
}

// leaveSearch exits search mode and returns the query that was typed.
func (s *Session) leaveSearch() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.searchMode {
		return "", false
	}
	query := string(s.searchQuery)
	s.searchMode = false
	s.searchQuery = nil
	return query, true
}

func (s *Session) inSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchMode
}
