package core

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxCompletions caps how many directory entries are considered.
const maxCompletions = 256

// completion is the outcome of a completion attempt.
type completion struct {
	line   []rune
	cursor int
	notes  []string
}

// completePath completes the token ending at cursor against the entries
// of dir. A single match replaces the token; several matches extend it to
// their longest common prefix when that is longer, otherwise they are listed.
// ok is false when there is nothing to complete or nothing matches.
func completePath(dir string, line []rune, cursor int) (completion, bool) {
	if cursor < 0 || cursor > len(line) {
		cursor = len(line)
	}
	start := cursor
	for start > 0 && !unicode.IsSpace(line[start-1]) {
		start--
	}
	prefix := string(line[start:cursor])
	if prefix == "" {
		return completion{}, false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return completion{}, false
	}
	var matches []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			matches = append(matches, entry.Name())
			if len(matches) == maxCompletions {
				break
			}
		}
	}
	switch len(matches) {
	case 0:
		return completion{}, false
	case 1:
		return replaceToken(line, start, cursor, matches[0], "Auto-completed: "+matches[0]), true
	}
	common := longestCommonPrefix(matches)
	if len(common) > len(prefix) {
		return replaceToken(line, start, cursor, common, "Partial auto-complete (multiple matches)"), true
	}
	notes := make([]string, 0, len(matches)+1)
	notes = append(notes, "Multiple matches:")
	for i, match := range matches {
		notes = append(notes, fmt.Sprintf("%d. %s", i+1, match))
	}
	return completion{line: line, cursor: cursor, notes: notes}, true
}

func replaceToken(line []rune, start, end int, with, note string) completion {
	replacement := []rune(with)
	out := make([]rune, 0, len(line)-(end-start)+len(replacement))
	out = append(out, line[:start]...)
	out = append(out, replacement...)
	out = append(out, line[end:]...)
	return completion{
		line:   out,
		cursor: start + len(replacement),
		notes:  []string{note},
	}
}

func longestCommonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := values[0]
	for _, v := range values[1:] {
		n := 0
		for n < len(prefix) && n < len(v) && prefix[n] == v[n] {
			n++
		}
		prefix = prefix[:n]
	}
	// Keep the prefix on a rune boundary.
	for !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}
