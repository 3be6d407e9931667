package core

import (
	"os"
	"path/filepath"
	"testing"
)

func completionDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func TestCompleteSingleMatch(t *testing.T) {
	dir := completionDir(t, "readme.md", "other")
	line := []rune("cat rea")
	got, ok := completePath(dir, line, len(line))
	if !ok {
		t.Fatalf("expected completion")
	}
	if string(got.line) != "cat readme.md" || got.cursor != len("cat readme.md") {
		t.Fatalf("unexpected completion %q cursor=%d", string(got.line), got.cursor)
	}
	if len(got.notes) != 1 || got.notes[0] != "Auto-completed: readme.md" {
		t.Fatalf("unexpected notes %v", got.notes)
	}
}

func TestCompletePartial(t *testing.T) {
	dir := completionDir(t, "report.txt", "reports.csv")
	line := []rune("cat re")
	got, ok := completePath(dir, line, len(line))
	if !ok || string(got.line) != "cat report" {
		t.Fatalf("unexpected completion %q ok=%v", string(got.line), ok)
	}
	if got.notes[0] != "Partial auto-complete (multiple matches)" {
		t.Fatalf("unexpected notes %v", got.notes)
	}
}

func TestCompleteListsAmbiguousMatches(t *testing.T) {
	dir := completionDir(t, "readme.md", "report.txt")
	line := []rune("cat re")
	got, ok := completePath(dir, line, len(line))
	if !ok {
		t.Fatalf("expected listing")
	}
	if string(got.line) != "cat re" {
		t.Fatalf("line must be unchanged, got %q", string(got.line))
	}
	want := []string{"Multiple matches:", "1. readme.md", "2. report.txt"}
	if len(got.notes) != len(want) {
		t.Fatalf("unexpected notes %v", got.notes)
	}
	for i := range want {
		if got.notes[i] != want[i] {
			t.Fatalf("note %d = %q, want %q", i, got.notes[i], want[i])
		}
	}
}

func TestCompleteMidLine(t *testing.T) {
	dir := completionDir(t, "readme.md")
	line := []rune("cat rea | wc")
	got, ok := completePath(dir, line, 7)
	if !ok || string(got.line) != "cat readme.md | wc" || got.cursor != 13 {
		t.Fatalf("unexpected completion %q cursor=%d", string(got.line), got.cursor)
	}
}

func TestCompleteNothing(t *testing.T) {
	dir := completionDir(t, "readme.md")
	for _, input := range []string{"", "cat ", "cat zz"} {
		line := []rune(input)
		if _, ok := completePath(dir, line, len(line)); ok {
			t.Fatalf("expected no completion for %q", input)
		}
	}
}

func TestLongestCommonPrefixRuneBoundary(t *testing.T) {
	if got := longestCommonPrefix([]string{"café", "cafè"}); got != "caf" {
		t.Fatalf("unexpected prefix %q", got)
	}
}
