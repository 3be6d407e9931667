package core

import (
	"strings"
	"sync"

	"pkt.systems/jobterm/schema"
)

// minSubstringMatch is the shortest shared run that counts as a fuzzy match.
const minSubstringMatch = 3

// HistoryStore is a bounded, append-only log of submitted command lines.
type HistoryStore struct {
	mu      sync.Mutex
	entries []string
	max     int
}

func newHistory(max int) *HistoryStore {
	if max <= 0 {
		max = schema.DefaultMaxHistory
	}
	return &HistoryStore{max: max}
}

func newHistoryFromPersisted(entries []string, max int) *HistoryStore {
	h := newHistory(max)
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	h.entries = append([]string(nil), entries...)
	return h
}

// Append adds an entry, evicting the oldest at capacity. Blank entries are
// ignored; duplicates are kept.
func (h *HistoryStore) Append(entry string) bool {
	if strings.TrimSpace(entry) == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= h.max {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, entry)
	return true
}

// Len returns the number of stored entries.
func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Entries returns a copy of the log, oldest first.
func (h *HistoryStore) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// At returns the entry at index i (0 is the oldest).
func (h *HistoryStore) At(i int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.entries) {
		return "", false
	}
	return h.entries[i], true
}

// ExactMatch returns the most recent entry equal to term.
func (h *HistoryStore) ExactMatch(term string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i] == term {
			return h.entries[i], true
		}
	}
	return "", false
}

// ContainsMatch returns the most recent entry containing term.
func (h *HistoryStore) ContainsMatch(term string) (string, bool) {
	if term == "" {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if strings.Contains(h.entries[i], term) {
			return h.entries[i], true
		}
	}
	return "", false
}

// LongestSubstringMatch returns the entry sharing the longest contiguous run
// with term, provided that run is at least three bytes long. Ties go to the
// most recently added entry.
func (h *HistoryStore) LongestSubstringMatch(term string) (string, bool) {
	if len(term) < minSubstringMatch {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	best := -1
	bestLen := 0
	for i, entry := range h.entries {
		n := longestCommonSubstring(term, entry)
		if n >= minSubstringMatch && n >= bestLen {
			best = i
			bestLen = n
		}
	}
	if best < 0 {
		return "", false
	}
	return h.entries[best], true
}

// longestCommonSubstring returns the length of the longest run of bytes
// shared by a and b.
func longestCommonSubstring(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	longest := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > longest {
					longest = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return longest
}
