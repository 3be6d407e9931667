package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"pkt.systems/pslog"
)

const hostKeyComment = "jobterm"

// ErrHostKeyPermissions is returned when an existing host key can be read
// by other users.
var ErrHostKeyPermissions = errors.New("ssh host key is accessible by group or others")

// EnsureHostKey loads the host key at path, generating an ed25519 key on
// first use.
func EnsureHostKey(path string) (ssh.Signer, error) {
	return EnsureHostKeyWithLogger(path, nil)
}

// EnsureHostKeyWithLogger is EnsureHostKey with the fingerprint logged.
func EnsureHostKeyWithLogger(path string, logger pslog.Logger) (ssh.Signer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ssh host key path is required")
	}
	signer, created, err := loadOrCreateHostKey(path)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("ssh host key", "path", path, "created", created,
			"type", signer.PublicKey().Type(), "fingerprint", ssh.FingerprintSHA256(signer.PublicKey()))
	}
	return signer, nil
}

func loadOrCreateHostKey(path string) (ssh.Signer, bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode().Perm()&0o077 != 0 {
			return nil, false, fmt.Errorf("%s (mode %04o): %w", path, info.Mode().Perm(), ErrHostKeyPermissions)
		}
		signer, err := loadHostKey(path)
		return signer, false, err
	case errors.Is(err, fs.ErrNotExist):
		signer, err := createHostKey(path)
		return signer, err == nil, err
	default:
		return nil, false, fmt.Errorf("stat host key: %w", err)
	}
}

func createHostKey(path string) (ssh.Signer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create host key dir: %w", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, hostKeyComment)
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}
	// O_EXCL: two servers starting together must not overwrite each other's key.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("write host key: %w", err)
	}
	if err := pem.Encode(file, block); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

func loadHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse host key %s: %w", path, err)
	}
	return signer, nil
}
