package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
	if got := CurrentWithDirty(); got != "v1.2.3+dirty" {
		t.Fatalf("expected dirty build version, got %q", got)
	}
	if !strings.HasSuffix(Banner(), " v1.2.3+dirty") {
		t.Fatalf("unexpected banner %q", Banner())
	}
}

func TestPseudoVersion(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "1234567890abcdef"},
		{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
		{Key: "vcs.modified", Value: "true"},
	}
	if got := pseudoVersion(settings, true); got != "v0.0.0-20250102030405-1234567890ab+dirty" {
		t.Fatalf("unexpected version %q", got)
	}
	if got := pseudoVersion(settings, false); got != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected clean version %q", got)
	}
	if pseudoVersion(nil, true) != "" {
		t.Fatalf("expected empty version without vcs settings")
	}
}
