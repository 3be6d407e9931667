package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/jobterm/console"
	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/eventbus"
	"pkt.systems/pslog"
)

// Server exposes the engine over SSH. Every connection gets its own
// console with its own sessions; all consoles share the engine.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Engine      *core.Engine
	EventBus    *eventbus.Bus
	AuthStore   LoginAuthStore
	Theme       *console.Theme
	logger      pslog.Logger
}

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	TOTPRequired() bool
	HasLoginPubKey(key ssh.PublicKey) (bool, error)
	ValidateTOTP(code string) error
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Engine == nil {
		return errors.New("engine is required for SSH")
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}

	signer, err := EnsureHostKeyWithLogger(s.HostKeyPath, s.logger)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	if s.AuthStore.TOTPRequired() {
		server.KeyboardInteractiveHandler = s.handleKeyboardInteractive
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh listening", "addr", s.listenAddr(), "totp", s.AuthStore.TOTPRequired())

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) listenAddr() string {
	if s.Listener != nil {
		return s.Listener.Addr().String()
	}
	return s.Addr
}

// handlePublicKey accepts keys from the authorized keys file. When a TOTP
// secret is configured the key alone is not enough: acceptance is recorded
// and keyboard-interactive auth must follow.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	if sshSession := ctx.SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ok, err := s.AuthStore.HasLoginPubKey(key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	if !s.AuthStore.TOTPRequired() {
		log.Info("ssh pubkey accepted")
		return true
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted", "next", "totp")
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx))
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	log = log.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ctx := pslog.ContextWithLogger(sess.Context(), log)

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	ui, err := console.New(console.Options{
		Engine: s.Engine,
		Bus:    s.EventBus,
		In:     sess,
		Out:    sess,
		Size:   console.Size{Width: pty.Window.Width, Height: pty.Window.Height},
		Theme:  s.Theme,
		Logger: log,
	})
	if err != nil {
		log.Error("ssh console failed", "err", err)
		_ = sess.Exit(1)
		return
	}

	log.Info("ssh session opened", "term", pty.Term)
	resize := make(chan console.Size, 1)
	go forwardWindows(ctx, winCh, resize)
	if err := ui.Run(ctx, resize); err != nil {
		log.Warn("ssh console ended", "err", err)
		_, _ = io.WriteString(sess, err.Error()+"\r\n")
		_ = sess.Exit(1)
		return
	}
	log.Info("ssh session closed", "term", pty.Term)
	_ = sess.Exit(0)
}

// forwardWindows converts window-change requests, keeping only the newest
// size when the console is slow to pick it up.
func forwardWindows(ctx context.Context, winCh <-chan gliderssh.Window, out chan console.Size) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case win, ok := <-winCh:
			if !ok {
				return
			}
			size := console.Size{Width: win.Width, Height: win.Height}
			select {
			case out <- size:
			default:
				select {
				case <-out:
				default:
				}
				out <- size
			}
		}
	}
}
