package command

import (
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/jobterm/schema"
)

// Kind tags the variant a command line parsed into.
type Kind int

const (
	// KindPipeline runs one or more external processes.
	KindPipeline Kind = iota
	// KindChangeDir is `cd [path]`.
	KindChangeDir
	// KindHistory is `history`.
	KindHistory
	// KindJobs is `jobs`.
	KindJobs
	// KindKill is `kill <pid>`.
	KindKill
	// KindForeground is `fg <pid>`.
	KindForeground
	// KindWatchStart is `multiWatch [...]`.
	KindWatchStart
	// KindWatchStop is `multiWatch-stop`.
	KindWatchStop
)

func (k Kind) String() string {
	switch k {
	case KindPipeline:
		return "pipeline"
	case KindChangeDir:
		return "cd"
	case KindHistory:
		return "history"
	case KindJobs:
		return "jobs"
	case KindKill:
		return "kill"
	case KindForeground:
		return "fg"
	case KindWatchStart:
		return "multiWatch"
	case KindWatchStop:
		return "multiWatch-stop"
	default:
		return "unknown"
	}
}

// Stage is one process of a pipeline.
type Stage struct {
	Argv   []string
	Input  string
	Output string
	Append bool
}

// Pipeline is a `|`-chained sequence of stages.
type Pipeline struct {
	Stages     []Stage
	Background bool
}

// Command is the tagged result of parsing a command line. Only the fields
// relevant to Kind are set.
type Command struct {
	Kind     Kind
	Raw      string
	Path     string
	Pid      int
	Watch    []string
	Pipeline Pipeline
}

// Options controls pipeline parsing.
type Options struct {
	// Dir is the base for relative glob patterns.
	Dir string
	// MaxStages bounds the pipeline length.
	MaxStages int
	// NoGlob disables filesystem expansion.
	NoGlob bool
}

// ParseError is a user-facing parse failure.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// Unwrap lets callers match schema.ErrParse.
func (e *ParseError) Unwrap() error {
	return schema.ErrParse
}

func parseErrorf(format string, args ...any) error {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

const (
	usageKill  = "Usage: kill <pid>"
	usageFg    = "Usage: fg <pid>"
	usageWatch = `Usage: multiWatch ["cmd1", "cmd2", ...]`
)

// Parse turns a submitted line into a Command. Builtins are recognised by
// their exact first token; everything else is parsed as a pipeline.
func Parse(input string, opts Options) (Command, error) {
	raw, err := schema.NormalizeCommandLine(input)
	if err != nil {
		return Command{}, err
	}
	line, background := stripBackground(raw)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, parseErrorf("syntax error near unexpected token `&'")
	}
	cmd := Command{Raw: raw}
	switch fields[0] {
	case "cd":
		cmd.Kind = KindChangeDir
		cmd.Path = remainderAfterTokens(line, 1)
		return cmd, nil
	case "history":
		cmd.Kind = KindHistory
		return cmd, nil
	case "jobs":
		cmd.Kind = KindJobs
		return cmd, nil
	case "kill":
		cmd.Kind = KindKill
		cmd.Pid, err = parsePid(fields, usageKill)
		return cmd, err
	case "fg":
		cmd.Kind = KindForeground
		cmd.Pid, err = parsePid(fields, usageFg)
		return cmd, err
	case "multiWatch":
		cmd.Kind = KindWatchStart
		cmd.Watch, err = parseWatchList(remainderAfterTokens(line, 1))
		return cmd, err
	case "multiWatch-stop":
		cmd.Kind = KindWatchStop
		return cmd, nil
	}
	cmd.Kind = KindPipeline
	cmd.Pipeline, err = parsePipeline(line, opts)
	if err != nil {
		return Command{}, err
	}
	cmd.Pipeline.Background = background
	return cmd, nil
}

// stripBackground removes a trailing `&` that stands alone or follows whitespace.
func stripBackground(line string) (string, bool) {
	if !strings.HasSuffix(line, "&") {
		return line, false
	}
	rest := line[:len(line)-1]
	if rest != "" && !isSpace(rest[len(rest)-1]) {
		return line, false
	}
	return strings.TrimSpace(rest), true
}

func parsePid(fields []string, usage string) (int, error) {
	if len(fields) < 2 {
		return 0, parseErrorf("%s", usage)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil || pid <= 0 {
		return 0, parseErrorf("%s", usage)
	}
	return pid, nil
}

// parseWatchList accepts `["a", 'b', c]`. Entries are split on commas with no
// quote awareness and surrounding quotes and spaces are trimmed.
func parseWatchList(rest string) ([]string, error) {
	start := strings.IndexByte(rest, '[')
	end := strings.LastIndexByte(rest, ']')
	if start < 0 || end < 0 || end <= start+1 {
		return nil, parseErrorf("%s", usageWatch)
	}
	var cmds []string
	for _, part := range strings.Split(rest[start+1:end], ",") {
		part = strings.Trim(part, " \t\"'")
		if part == "" {
			continue
		}
		cmds = append(cmds, part)
	}
	if len(cmds) == 0 {
		return nil, parseErrorf("multiWatch: no valid commands.")
	}
	if len(cmds) > schema.MaxWatchCommands {
		return nil, parseErrorf("multiWatch: at most %d commands.", schema.MaxWatchCommands)
	}
	return cmds, nil
}

func parsePipeline(line string, opts Options) (Pipeline, error) {
	maxStages := opts.MaxStages
	if maxStages <= 0 {
		maxStages = schema.DefaultMaxStages
	}
	segments := strings.Split(line, "|")
	if len(segments) > maxStages {
		return Pipeline{}, parseErrorf("too many pipeline stages (max %d)", maxStages)
	}
	pipeline := Pipeline{Stages: make([]Stage, 0, len(segments))}
	for _, segment := range segments {
		stage, err := parseStage(strings.TrimSpace(segment), opts)
		if err != nil {
			return Pipeline{}, err
		}
		pipeline.Stages = append(pipeline.Stages, stage)
	}
	return pipeline, nil
}

func parseStage(segment string, opts Options) (Stage, error) {
	if segment == "" {
		return Stage{}, parseErrorf("syntax error near unexpected token `|'")
	}
	var stage Stage
	tokens := strings.Fields(segment)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		op, target := splitRedirect(tok)
		if op == "" {
			if opts.NoGlob || !HasGlobMeta(tok) {
				stage.Argv = append(stage.Argv, tok)
				continue
			}
			stage.Argv = append(stage.Argv, ExpandToken(tok, opts.Dir)...)
			continue
		}
		if target == "" {
			if i+1 >= len(tokens) {
				return Stage{}, parseErrorf("syntax error: missing file after `%s'", op)
			}
			i++
			target = tokens[i]
		}
		target = expandTilde(target)
		switch op {
		case "<":
			stage.Input = target
		case ">":
			stage.Output, stage.Append = target, false
		case ">>":
			stage.Output, stage.Append = target, true
		}
	}
	if len(stage.Argv) == 0 {
		return Stage{}, parseErrorf("syntax error: missing command near `%s'", segment)
	}
	return stage, nil
}

// splitRedirect recognises `<`, `>`, `>>` either standalone or glued to
// their target.
func splitRedirect(tok string) (string, string) {
	switch {
	case strings.HasPrefix(tok, ">>"):
		return ">>", tok[2:]
	case strings.HasPrefix(tok, ">"):
		return ">", tok[1:]
	case strings.HasPrefix(tok, "<"):
		return "<", tok[1:]
	default:
		return "", ""
	}
}

func remainderAfterTokens(raw string, count int) string {
	i := 0
	remaining := count
	for remaining > 0 && i < len(raw) {
		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		for i < len(raw) && !isSpace(raw[i]) {
			i++
		}
		remaining--
	}
	if i >= len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[i:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
