package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithSession(ctx, "s1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "s1" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionSkipsDuplicateMarker(t *testing.T) {
	capture := &logCapture{}
	base := newCaptureLogger(capture).With("session", "s1")
	ctx := ContextWithSessionLogger(context.Background(), base, "s1")
	WithSession(ctx, "s1").Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"session"`)) != 1 {
		t.Fatalf("expected single session field, got %s", line)
	}
}

func TestWithJobAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithJob(newCaptureLogger(capture), 3, 4242, "sleep 1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["job"] != float64(3) {
		t.Fatalf("expected job field, got %+v", entry)
	}
	if entry["pid"] != float64(4242) {
		t.Fatalf("expected pid field, got %+v", entry)
	}
	if entry["command"] != "sleep 1" {
		t.Fatalf("expected command field, got %+v", entry)
	}
}

func TestWithPidSkipsSynthetic(t *testing.T) {
	capture := &logCapture{}
	WithPid(newCaptureLogger(capture), -1).Info("hello")
	entry := capture.firstEntry(t)
	if _, ok := entry["pid"]; ok {
		t.Fatalf("did not expect pid for synthetic process, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
