package console

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"pkt.systems/jobterm/schema"
)

type lineKind int

const (
	lineNormal lineKind = iota
	lineError
	lineNotice
	lineMeta
)

var watchHeader = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] --- .* ---$`)

func classifyLine(raw string) lineKind {
	switch {
	case strings.HasPrefix(raw, "jobterm: "),
		strings.HasPrefix(raw, "cd: "),
		strings.HasPrefix(raw, "kill: "),
		strings.HasPrefix(raw, "fg: "),
		strings.HasPrefix(raw, "syntax error"):
		return lineError
	case strings.HasPrefix(raw, "[jobterm] "),
		strings.HasPrefix(raw, "[Search "):
		return lineNotice
	case raw == "------ refresh complete ------",
		watchHeader.MatchString(raw):
		return lineMeta
	}
	return lineNormal
}

// renderLine sanitizes raw, fits it to width display cells and colours it.
func renderLine(raw string, width int, theme Theme) string {
	text := runewidth.Truncate(sanitizeOutputLine(raw), width, "")
	switch classifyLine(raw) {
	case lineError:
		return ansiFgRGB(theme.ErrorFG) + text + ansiReset
	case lineNotice:
		return ansiFgRGB(theme.NoticeFG) + text + ansiReset
	case lineMeta:
		return ansiFgRGB(theme.MetaFG) + text + ansiReset
	}
	return text
}

// renderTabBar draws one label per session, keeping the active one visible.
func renderTabBar(sessions []schema.SessionSummary, current schema.SessionID, width int, theme Theme, windowStart int) (string, int) {
	if width <= 0 {
		width = 80
	}
	barStyle := ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.TabInactiveFG)
	activeStyle := ansiBgRGB(theme.TabActiveBG) + ansiFgRGB(theme.TabActiveFG) + ansiBold
	labels := make([]string, len(sessions))
	active := 0
	for i, s := range sessions {
		labels[i] = " " + runewidth.Truncate(s.Title, 12, "$") + " "
		if s.ID == current {
			active = i
		}
	}
	if windowStart > active {
		windowStart = active
	}
	if windowStart < 0 {
		windowStart = 0
	}
	for windowStart < active && labelsWidth(labels[windowStart:active+1]) > width {
		windowStart++
	}

	var b strings.Builder
	b.WriteString(barStyle)
	used := 0
	for i := windowStart; i < len(labels); i++ {
		w := runewidth.StringWidth(labels[i])
		if used+w > width {
			break
		}
		if i == active {
			b.WriteString(activeStyle + labels[i] + ansiReset + barStyle)
		} else {
			b.WriteString(labels[i])
		}
		used += w
	}
	if used < width {
		b.WriteString(strings.Repeat(" ", width-used))
	}
	b.WriteString(ansiReset)
	return b.String(), windowStart
}

func labelsWidth(labels []string) int {
	total := 0
	for _, label := range labels {
		total += runewidth.StringWidth(label)
	}
	return total
}

// promptFor returns the prompt shown before the input line.
func promptFor(snap schema.SessionSnapshot) string {
	dir := filepath.Base(snap.Cwd)
	if dir == "." || dir == "" {
		dir = "/"
	}
	return dir + " $ "
}

// renderInput lays out the input line. A line continued with a trailing
// backslash spans several rows; continuation rows use a "> " prefix. The
// returned cursor position is 1-based within the returned rows.
func renderInput(snap schema.SessionSnapshot, width int, theme Theme) ([]string, int, int) {
	if snap.SearchMode {
		prefix := "(history search) `" + snap.SearchQuery + "': "
		col := runewidth.StringWidth(prefix) + 1
		styled := ansiFgRGB(theme.SearchFG) + runewidth.Truncate(prefix, width, "") + ansiReset +
			runewidth.Truncate(snap.SearchPreview, max(width-col+1, 0), "")
		return []string{styled}, 1, min(col, width)
	}
	prompt := promptFor(snap)
	input := []rune(snap.Input)
	cursor := snap.Cursor
	if cursor < 0 || cursor > len(input) {
		cursor = len(input)
	}
	rows := strings.Split(string(input), "\n")
	before := strings.Split(string(input[:cursor]), "\n")
	cursorRow := len(before)
	out := make([]string, 0, len(rows))
	cursorCol := 1
	for i, row := range rows {
		prefix := "> "
		if i == 0 {
			prefix = prompt
		}
		avail := width - runewidth.StringWidth(prefix)
		if avail < 1 {
			avail = 1
		}
		text := row
		if i == cursorRow-1 {
			offset := runewidth.StringWidth(before[len(before)-1])
			// Scroll the row horizontally so the cursor stays visible.
			for offset >= avail && text != "" {
				r, size := utf8.DecodeRuneInString(text)
				offset -= runewidth.RuneWidth(r)
				text = text[size:]
			}
			cursorCol = runewidth.StringWidth(prefix) + offset + 1
		}
		styledPrefix := prefix
		if i == 0 {
			styledPrefix = ansiBold + ansiFgRGB(theme.PromptFG) + prefix + ansiReset
		}
		out = append(out, styledPrefix+runewidth.Truncate(text, avail, ""))
	}
	if cursorCol > width {
		cursorCol = width
	}
	return out, cursorRow, cursorCol
}

// renderViewport pads or trims the buffer lines to exactly height rows.
func renderViewport(buffer schema.BufferSnapshot, width, height int, theme Theme) []string {
	if height <= 0 {
		return nil
	}
	lines := buffer.Lines
	if len(lines) > height {
		if buffer.AtBottom {
			lines = lines[len(lines)-height:]
		} else {
			lines = lines[:height]
		}
	}
	rendered := make([]string, 0, height)
	for _, raw := range lines {
		rendered = append(rendered, renderLine(raw, width, theme))
	}
	for len(rendered) < height {
		rendered = append(rendered, "")
	}
	if !buffer.AtBottom && height > 0 {
		marker := fmt.Sprintf("-- scrolled %d --", buffer.ScrollOffset)
		rendered[height-1] = ansiFgRGB(theme.MetaFG) + runewidth.Truncate(marker, width, "") + ansiReset
	}
	return rendered
}

func sanitizeOutputLine(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		ch := text[i]
		if ch == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		switch {
		case r == '\t':
			b.WriteString("    ")
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}
