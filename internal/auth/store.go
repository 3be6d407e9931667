package auth

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/ssh"
	"pkt.systems/pslog"
)

// ErrInvalidTOTP is returned when a one-time code does not validate.
var ErrInvalidTOTP = errors.New("invalid totp")

// Store decides who may open a session over SSH: public keys listed in an
// authorized_keys file and, when a secret is configured, a TOTP code.
type Store struct {
	path       string
	totpSecret string
	mu         sync.RWMutex
	keys       []ssh.PublicKey
	fileState  fileState
	log        pslog.Logger
}

// NewStore loads the authorized keys file.
func NewStore(path, totpSecret string) (*Store, error) {
	return NewStoreWithLogger(path, totpSecret, nil)
}

// NewStoreWithLogger loads the authorized keys file with logging.
func NewStoreWithLogger(path, totpSecret string, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("authorized keys path is required")
	}
	if logger != nil {
		logger = logger.With("authorized_keys", path)
	}
	store := &Store{
		path:       path,
		totpSecret: strings.TrimSpace(totpSecret),
		log:        logger,
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// TOTPRequired reports whether logins need a second factor.
func (s *Store) TOTPRequired() bool {
	return s.totpSecret != ""
}

// HasLoginPubKey reports whether key is listed in the authorized keys file.
// The file is re-read when it changes on disk.
func (s *Store) HasLoginPubKey(key ssh.PublicKey) (bool, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return false, err
	}
	if key == nil {
		return false, nil
	}
	want := key.Marshal()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range s.keys {
		if bytes.Equal(candidate.Marshal(), want) {
			return true, nil
		}
	}
	return false, nil
}

// Keys returns the number of loaded keys.
func (s *Store) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// ValidateTOTP verifies code against the configured secret. It succeeds
// when no secret is configured.
func (s *Store) ValidateTOTP(code string) error {
	if !s.TOTPRequired() {
		return nil
	}
	if !totp.Validate(strings.TrimSpace(code), s.totpSecret) {
		if s.log != nil {
			s.log.Warn("auth totp rejected")
		}
		return ErrInvalidTOTP
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = uint64(stat.Dev)
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth keys stat failed", "err", err)
		}
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

// loadFromDisk parses the authorized keys file. Lines that do not parse are
// skipped with a warning; options and comments are ignored.
func (s *Store) loadFromDisk() error {
	f, err := os.Open(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth keys load failed", "err", err)
		}
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	var keys []ssh.PublicKey
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 16*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			if s.log != nil {
				s.log.Warn("auth keys line skipped", "line", lineNo, "err", err)
			}
			continue
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("auth keys load ok", "keys", len(keys))
	}
	return nil
}
