package appconfig

import "testing"

func TestDefaultConfigSSHWithoutTOTP(t *testing.T) {
	setHome(t, t.TempDir())
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.SSH.TOTPSecret != "" {
		t.Fatalf("expected totp to be disabled by default")
	}
	if cfg.Shell != "/bin/sh" {
		t.Fatalf("unexpected shell %q", cfg.Shell)
	}
}
