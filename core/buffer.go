package core

import (
	"bytes"
	"strings"
	"sync"

	"pkt.systems/jobterm/schema"
)

// ScrollbackLog stores output lines and scroll state for a session.
// It is written by the scheduler and by watcher goroutines, so every
// mutation happens under mu. ScrollOffset is the number of lines from the
// bottom; 0 means at bottom.
type ScrollbackLog struct {
	mu           sync.Mutex
	lines        []string
	scrollOffset int
	maxLines     int
	appended     uint64
	onAppend     func()
}

func newScrollback(maxLines int) *ScrollbackLog {
	if maxLines <= 0 {
		maxLines = schema.DefaultMaxLines
	}
	return &ScrollbackLog{maxLines: maxLines}
}

// Append splits text on newlines and appends each segment as a line.
// A single trailing newline does not produce an empty line.
func (b *ScrollbackLog) Append(text string) {
	text = strings.TrimSuffix(text, "\n")
	b.AppendLines(strings.Split(text, "\n")...)
}

// AppendLines adds lines to the log, evicting the oldest when over capacity.
// If the view is scrolled up, the scroll offset grows to keep it anchored.
func (b *ScrollbackLog) AppendLines(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	b.lines = append(b.lines, lines...)
	b.appended += uint64(len(lines))
	if b.scrollOffset > 0 {
		b.scrollOffset += len(lines)
	}
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		// Copy so the evicted prefix does not pin the backing array.
		b.lines = append(make([]string, 0, b.maxLines), b.lines[trim:]...)
		if b.scrollOffset > len(b.lines) {
			b.scrollOffset = len(b.lines)
		}
	}
	notify := b.onAppend
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Len returns the number of stored lines.
func (b *ScrollbackLog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Lines returns a copy of every stored line, oldest first.
func (b *ScrollbackLog) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// LinesSince returns lines appended after mark, where mark is a value
// previously returned by LinesSince (0 for the start). Lines already
// evicted are skipped.
func (b *ScrollbackLog) LinesSince(mark uint64) ([]string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark >= b.appended {
		return nil, b.appended
	}
	missing := b.appended - mark
	if missing > uint64(len(b.lines)) {
		missing = uint64(len(b.lines))
	}
	out := append([]string(nil), b.lines[len(b.lines)-int(missing):]...)
	return out, b.appended
}

// ResetScroll returns the view to the bottom.
func (b *ScrollbackLog) ResetScroll() {
	b.mu.Lock()
	b.scrollOffset = 0
	b.mu.Unlock()
}

// Scroll adjusts the scroll offset by delta. Positive delta scrolls up (older lines),
// negative delta scrolls down. Limit is the viewport height; 0 allows scrolling
// back to the first line.
func (b *ScrollbackLog) Scroll(delta, limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 {
		limit = 1
	}
	b.scrollOffset = clampScroll(b.scrollOffset+delta, len(b.lines), limit)
}

// Snapshot returns the visible window for the given viewport limit.
func (b *ScrollbackLog) Snapshot(limit int) schema.BufferSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := len(b.lines)
	if limit <= 0 || limit > total {
		limit = total
	}

	if max := maxScroll(total, limit); b.scrollOffset > max {
		b.scrollOffset = max
	}

	end := total - b.scrollOffset
	start := end - limit
	if start < 0 {
		start = 0
	}

	lines := make([]string, end-start)
	copy(lines, b.lines[start:end])

	return schema.BufferSnapshot{
		Lines:        lines,
		TotalLines:   total,
		ScrollOffset: b.scrollOffset,
		AtBottom:     b.scrollOffset == 0,
	}
}

func (b *ScrollbackLog) setNotify(fn func()) {
	b.mu.Lock()
	b.onAppend = fn
	b.mu.Unlock()
}

func maxScroll(total, limit int) int {
	if total <= 0 || limit <= 0 || total <= limit {
		return 0
	}
	return total - limit
}

func clampScroll(offset, total, limit int) int {
	max := maxScroll(total, limit)
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}

// lineSplitter turns a byte stream into complete lines, carrying a partial
// trailing line across chunks until a newline or Flush.
type lineSplitter struct {
	partial []byte
}

// Write feeds a chunk and returns the lines it completed.
func (s *lineSplitter) Write(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			s.partial = append(s.partial, chunk...)
			break
		}
		line := append(s.partial, chunk[:idx]...)
		lines = append(lines, strings.TrimSuffix(string(line), "\r"))
		s.partial = s.partial[:0]
		chunk = chunk[idx+1:]
	}
	return lines
}

// Flush returns any buffered partial line.
func (s *lineSplitter) Flush() []string {
	if len(s.partial) == 0 {
		return nil
	}
	line := strings.TrimSuffix(string(s.partial), "\r")
	s.partial = s.partial[:0]
	return []string{line}
}
