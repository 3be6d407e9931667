package persist

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestHistoryFileLoadMissing(t *testing.T) {
	file, err := NewHistoryFile(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("new history file: %v", err)
	}
	entries, ok, err := file.Load(10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok || len(entries) != 0 {
		t.Fatalf("expected missing history, got ok=%v entries=%v", ok, entries)
	}
}

func TestHistoryFileRequiresPath(t *testing.T) {
	if _, err := NewHistoryFile("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestHistoryFileSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history")
	file, err := NewHistoryFile(path)
	if err != nil {
		t.Fatalf("new history file: %v", err)
	}
	want := []string{"ls -la", "cd project", "ls -la", "echo a | tr a b > out.txt"}
	if err := file.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := file.Load(100)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected history present")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestHistoryFileLoadSkipsBlankAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	if err := os.WriteFile(path, []byte("one\n\n   \ntwo\r\nthree\nfour"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	file, err := NewHistoryFile(path)
	if err != nil {
		t.Fatalf("new history file: %v", err)
	}
	got, _, err := file.Load(3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"two", "three", "four"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestHistoryFileConcurrentSavesLastWriterWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	file, err := NewHistoryFile(path)
	if err != nil {
		t.Fatalf("new history file: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries := []string{"shared", string(rune('a' + i))}
			if err := file.Save(entries); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	got, _, err := file.Load(10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0] != "shared" {
		t.Fatalf("expected one complete writer view, got %v", got)
	}
}
