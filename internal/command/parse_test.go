package command

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mitchellh/go-homedir"
	"pkt.systems/jobterm/schema"
)

func TestParseBuiltins(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
	}{
		{"cd /tmp", KindChangeDir},
		{"cd", KindChangeDir},
		{"history", KindHistory},
		{"jobs", KindJobs},
		{"kill 42", KindKill},
		{"fg 42", KindForeground},
		{`multiWatch ["date"]`, KindWatchStart},
		{"multiWatch-stop", KindWatchStop},
		{"historyx", KindPipeline},
		{"cdrom", KindPipeline},
		{"jobs2", KindPipeline},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.line, Options{NoGlob: true})
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if cmd.Kind != tc.kind {
			t.Fatalf("parse %q: expected %s, got %s", tc.line, tc.kind, cmd.Kind)
		}
	}
}

func TestParseChangeDirPath(t *testing.T) {
	cmd, err := Parse("cd   my dir  ", Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Path != "my dir" {
		t.Fatalf("expected path with spaces, got %q", cmd.Path)
	}
	cmd, err = Parse("cd", Options{})
	if err != nil || cmd.Path != "" {
		t.Fatalf("expected empty path, got %q err=%v", cmd.Path, err)
	}
}

func TestParsePidUsage(t *testing.T) {
	for _, line := range []string{"kill", "kill abc", "kill -3", "fg", "fg 0"} {
		_, err := Parse(line, Options{})
		if !errors.Is(err, schema.ErrParse) {
			t.Fatalf("parse %q: expected parse error, got %v", line, err)
		}
	}
	_, err := Parse("kill nope", Options{})
	if err.Error() != "Usage: kill <pid>" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	cmd, err := Parse("fg 1234", Options{})
	if err != nil || cmd.Pid != 1234 {
		t.Fatalf("expected pid 1234, got %d err=%v", cmd.Pid, err)
	}
}

func TestParseWatchList(t *testing.T) {
	cmd, err := Parse(`multiWatch ["date", 'uptime' , ls -l]`, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"date", "uptime", "ls -l"}
	if !reflect.DeepEqual(cmd.Watch, want) {
		t.Fatalf("got %v want %v", cmd.Watch, want)
	}
}

func TestParseWatchListRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"multiWatch":                     usageWatch,
		"multiWatch date":                usageWatch,
		"multiWatch []":                  usageWatch,
		`multiWatch [ "", ' ' ]`:         "multiWatch: no valid commands.",
		`multiWatch ]"date"[`:            usageWatch,
		`multiWatch [1,2,3,4,5,6,7,8,9]`: "multiWatch: at most 8 commands.",
	}
	for line, msg := range cases {
		_, err := Parse(line, Options{})
		if !errors.Is(err, schema.ErrParse) {
			t.Fatalf("parse %q: expected parse error, got %v", line, err)
		}
		if err.Error() != msg {
			t.Fatalf("parse %q: expected %q, got %q", line, msg, err.Error())
		}
	}
}

func TestParsePipelineStagesAndRedirects(t *testing.T) {
	cmd, err := Parse("sort < in.txt | uniq -c | head -n 3 >> out.txt", Options{NoGlob: true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stages := cmd.Pipeline.Stages
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	if stages[0].Input != "in.txt" || !reflect.DeepEqual(stages[0].Argv, []string{"sort"}) {
		t.Fatalf("unexpected first stage %+v", stages[0])
	}
	if !reflect.DeepEqual(stages[1].Argv, []string{"uniq", "-c"}) {
		t.Fatalf("unexpected second stage %+v", stages[1])
	}
	last := stages[2]
	if last.Output != "out.txt" || !last.Append {
		t.Fatalf("expected append redirect, got %+v", last)
	}
	if cmd.Pipeline.Background {
		t.Fatalf("did not expect background")
	}
}

func TestParseGluedRedirects(t *testing.T) {
	cmd, err := Parse("cat <in >out", Options{NoGlob: true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stage := cmd.Pipeline.Stages[0]
	if stage.Input != "in" || stage.Output != "out" || stage.Append {
		t.Fatalf("unexpected stage %+v", stage)
	}
}

func TestParseBackground(t *testing.T) {
	cases := []struct {
		line       string
		background bool
		argv       []string
	}{
		{"sleep 1 &", true, []string{"sleep", "1"}},
		{"sleep 1&", false, []string{"sleep", "1&"}},
		{"sleep 1\t&", true, []string{"sleep", "1"}},
		{"echo a&&b", false, []string{"echo", "a&&b"}},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.line, Options{NoGlob: true})
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if cmd.Pipeline.Background != tc.background {
			t.Fatalf("parse %q: expected background=%v", tc.line, tc.background)
		}
		if !reflect.DeepEqual(cmd.Pipeline.Stages[0].Argv, tc.argv) {
			t.Fatalf("parse %q: got argv %v", tc.line, cmd.Pipeline.Stages[0].Argv)
		}
		if cmd.Raw != tc.line {
			t.Fatalf("expected raw line kept, got %q", cmd.Raw)
		}
	}
}

func TestParsePipelineErrors(t *testing.T) {
	for _, line := range []string{"&", "ls |", "| wc", "ls || wc", "cat >", "cat <", "> out"} {
		_, err := Parse(line, Options{NoGlob: true})
		if !errors.Is(err, schema.ErrParse) {
			t.Fatalf("parse %q: expected parse error, got %v", line, err)
		}
	}
	if _, err := Parse("   ", Options{}); !errors.Is(err, schema.ErrEmptyCommand) {
		t.Fatalf("expected empty command error, got %v", err)
	}
}

func TestParseStageLimit(t *testing.T) {
	line := "a | b | c"
	if _, err := Parse(line, Options{MaxStages: 2, NoGlob: true}); !errors.Is(err, schema.ErrParse) {
		t.Fatalf("expected stage limit error, got %v", err)
	}
	if _, err := Parse(line, Options{MaxStages: 3, NoGlob: true}); err != nil {
		t.Fatalf("expected three stages to parse, got %v", err)
	}
}

func TestParseExpandsGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "c.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	cmd, err := Parse("ls *.txt", Options{Dir: dir})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"ls", "a.txt", "b.txt"}
	if !reflect.DeepEqual(cmd.Pipeline.Stages[0].Argv, want) {
		t.Fatalf("got %v want %v", cmd.Pipeline.Stages[0].Argv, want)
	}
}

func TestExpandTokenNoMatchPassthrough(t *testing.T) {
	dir := t.TempDir()
	if got := ExpandToken("*.md", dir); !reflect.DeepEqual(got, []string{"*.md"}) {
		t.Fatalf("expected literal passthrough, got %v", got)
	}
	if got := ExpandToken("[", dir); !reflect.DeepEqual(got, []string{"["}) {
		t.Fatalf("expected malformed pattern passthrough, got %v", got)
	}
}

func TestExpandTokenCharacterClassAndAbsolute(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"f1", "f2", "f3"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got := ExpandToken("f[12]", dir)
	if !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Fatalf("unexpected class expansion %v", got)
	}
	got = ExpandToken(filepath.Join(dir, "f?"), "/")
	want := []string{filepath.Join(dir, "f1"), filepath.Join(dir, "f2"), filepath.Join(dir, "f3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGlobInDirectoryWithMetacharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj[1]")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt", filepath.Join("sub", "c.txt")} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	cmd, err := Parse("ls *.txt", Options{Dir: dir})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []string{"ls", "a.txt", "b.txt"}; !reflect.DeepEqual(cmd.Pipeline.Stages[0].Argv, want) {
		t.Fatalf("got %v want %v", cmd.Pipeline.Stages[0].Argv, want)
	}
	if got, want := ExpandToken("sub/*.txt", dir), []string{filepath.Join("sub", "c.txt")}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got, want := ExpandToken("../*.txt", filepath.Join(dir, "sub")), []string{filepath.Join("..", "a.txt"), filepath.Join("..", "b.txt")}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestExpandTokenTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.Reset()
	t.Cleanup(homedir.Reset)
	if got := ExpandToken("~", "/"); !reflect.DeepEqual(got, []string{home}) {
		t.Fatalf("expected home, got %v", got)
	}
	if err := os.WriteFile(filepath.Join(home, "notes.txt"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := ExpandToken("~/*.txt", "/"); !reflect.DeepEqual(got, []string{filepath.Join(home, "notes.txt")}) {
		t.Fatalf("expected expanded home glob, got %v", got)
	}
	if got := ExpandToken("~nobody", "/"); !reflect.DeepEqual(got, []string{"~nobody"}) {
		t.Fatalf("expected literal for other user, got %v", got)
	}
}
