package persist

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"pkt.systems/pslog"
)

// HistoryFile persists command history as newline-delimited text,
// most recent entry last.
type HistoryFile struct {
	path string
	log  pslog.Logger
}

// NewHistoryFile constructs a history file at the given path.
func NewHistoryFile(path string) (*HistoryFile, error) {
	return NewHistoryFileWithLogger(path, nil)
}

// NewHistoryFileWithLogger constructs a history file with logging.
func NewHistoryFileWithLogger(path string, logger pslog.Logger) (*HistoryFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history file path is required")
	}
	if logger != nil {
		logger = logger.With("history_file", path)
	}
	return &HistoryFile{path: path, log: logger}, nil
}

// Path returns the file location.
func (h *HistoryFile) Path() string {
	return h.path
}

// Load reads at most max entries (the newest ones) from disk.
// Trailing newlines are stripped and blank lines skipped.
func (h *HistoryFile) Load(max int) ([]string, bool, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.debug("history load miss")
			return nil, false, nil
		}
		h.warn("history load failed", err)
		return nil, false, err
	}
	var entries []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		h.warn("history load failed", err)
		return nil, false, err
	}
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	h.debug("history load ok", "entries", len(entries))
	return entries, true, nil
}

// Save replaces the file with entries. Concurrent savers are serialized
// through a lock file, but each save writes its own full view, so the
// last writer wins.
func (h *HistoryFile) Save(entries []string) error {
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		h.warn("history save failed", err)
		return err
	}
	lock := flock.New(h.path + ".lock")
	if err := lock.Lock(); err != nil {
		h.warn("history lock failed", err)
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	var buf bytes.Buffer
	for _, entry := range entries {
		buf.WriteString(entry)
		buf.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		h.warn("history save failed", err)
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		h.warn("history save failed", err)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		h.warn("history save failed", err)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		h.warn("history save failed", err)
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		h.warn("history save failed", err)
		return err
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		_ = os.Remove(tmp.Name())
		h.warn("history save failed", err)
		return err
	}
	if h.log != nil {
		h.log.Trace("history save ok", "entries", len(entries))
	}
	return nil
}

func (h *HistoryFile) debug(msg string, kv ...any) {
	if h.log != nil {
		h.log.Debug(msg, kv...)
	}
}

func (h *HistoryFile) warn(msg string, err error) {
	if h.log != nil {
		h.log.Warn(msg, "err", err)
	}
}
