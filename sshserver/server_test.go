package sshserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/ssh"

	"pkt.systems/jobterm/core"
	"pkt.systems/jobterm/internal/auth"
	"pkt.systems/jobterm/internal/eventbus"
	"pkt.systems/jobterm/schema"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newClientKey(t *testing.T) (ssh.Signer, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	return signer, ssh.MarshalAuthorizedKey(sshPub)
}

type testServer struct {
	addr   string
	engine *core.Engine
}

func startServer(t *testing.T, authorized []byte, totpSecret string) *testServer {
	t.Helper()
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(keysPath, authorized, 0o600); err != nil {
		t.Fatalf("write authorized keys: %v", err)
	}
	store, err := auth.NewStore(keysPath, totpSecret)
	if err != nil {
		t.Fatalf("auth store: %v", err)
	}
	bus := eventbus.New(nil)
	engine, err := core.NewEngine(schema.EngineConfig{
		HistoryFile:  filepath.Join(dir, "history"),
		PollInterval: 5 * time.Millisecond,
	}, core.EngineDeps{EventSink: bus})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = engine.Run(ctx)
	}()
	server := &Server{
		HostKeyPath: filepath.Join(dir, "ssh_host_key"),
		Listener:    listener,
		Engine:      engine,
		EventBus:    bus,
		AuthStore:   store,
	}
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		_ = server.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
		<-engineDone
	})
	return &testServer{addr: listener.Addr().String(), engine: engine}
}

func dial(t *testing.T, addr string, methods ...ssh.AuthMethod) (*ssh.Client, error) {
	t.Helper()
	var (
		client *ssh.Client
		err    error
	)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		client, err = ssh.Dial("tcp", addr, &ssh.ClientConfig{
			User:            "tester",
			Auth:            methods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         2 * time.Second,
		})
		if err == nil || !isConnRefused(err) {
			return client, err
		}
		time.Sleep(10 * time.Millisecond)
	}
	return client, err
}

func isConnRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused")
}

func openShell(t *testing.T, client *ssh.Client) (*ssh.Session, *lockedBuffer, func(string)) {
	t.Helper()
	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	out := &lockedBuffer{}
	session.Stdout = out
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if err := session.RequestPty("xterm-256color", 24, 80, ssh.TerminalModes{}); err != nil {
		t.Fatalf("pty: %v", err)
	}
	if err := session.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}
	send := func(s string) {
		if _, err := stdin.Write([]byte(s)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	return session, out, send
}

func waitForOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output", want)
}

func TestServerRunsCommandsOverSSH(t *testing.T) {
	signer, authorized := newClientKey(t)
	srv := startServer(t, authorized, "")
	client, err := dial(t, srv.addr, ssh.PublicKeys(signer))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	session, out, send := openShell(t, client)
	defer session.Close()
	send("echo over-ssh | tr a-z A-Z\r")
	waitForOutput(t, out, "OVER-SSH")
	waitForOutput(t, out, "Command finished.")

	send("\x04")
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not exit after ctrl+d")
	}
	if len(srv.engine.Sessions()) != 0 {
		t.Fatalf("expected the connection's sessions to be closed")
	}
}

func TestServerRejectsUnknownKey(t *testing.T) {
	_, authorized := newClientKey(t)
	stranger, _ := newClientKey(t)
	srv := startServer(t, authorized, "")
	client, err := dial(t, srv.addr, ssh.PublicKeys(stranger))
	if err == nil {
		_ = client.Close()
		t.Fatalf("expected authentication failure")
	}
}

func TestServerRequiresPty(t *testing.T) {
	signer, authorized := newClientKey(t)
	srv := startServer(t, authorized, "")
	client, err := dial(t, srv.addr, ssh.PublicKeys(signer))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()
	output, err := session.Output("")
	if err == nil {
		t.Fatalf("expected non-zero exit without a pty")
	}
	if !strings.Contains(string(output), "pty required") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestServerTOTPSecondFactor(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "jobterm", AccountName: "tester"})
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	signer, authorized := newClientKey(t)
	srv := startServer(t, authorized, key.Secret())

	if client, err := dial(t, srv.addr, ssh.PublicKeys(signer)); err == nil {
		_ = client.Close()
		t.Fatalf("expected key alone to be rejected")
	}

	wrong := ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		return []string{"000000"}, nil
	})
	if client, err := dial(t, srv.addr, ssh.PublicKeys(signer), wrong); err == nil {
		_ = client.Close()
		t.Fatalf("expected wrong code to be rejected")
	}

	right := ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		code, err := totp.GenerateCode(key.Secret(), time.Now())
		if err != nil {
			return nil, err
		}
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = code
		}
		return answers, nil
	})
	client, err := dial(t, srv.addr, ssh.PublicKeys(signer), right)
	if err != nil {
		t.Fatalf("dial with totp: %v", err)
	}
	_ = client.Close()
}
