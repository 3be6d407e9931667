package console

import (
	"fmt"
	"io"
	"strings"
)

type screen struct {
	out io.Writer
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

// Enter switches to the alternate screen and enables wheel reporting.
func (s *screen) Enter() {
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[?1000h\x1b[?1006h\x1b[H\x1b[2J")
}

func (s *screen) Exit() {
	_, _ = io.WriteString(s.out, "\x1b[?1000l\x1b[?1006l\x1b[?1049l\x1b[?25h")
}

// Render repaints every row. Rows are joined with CRLF because the
// terminal is in raw mode.
func (s *screen) Render(lines []string, cursorRow, cursorCol int) error {
	if cursorRow < 1 {
		cursorRow = 1
	}
	if cursorCol < 1 {
		cursorCol = 1
	}
	var b strings.Builder
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[H")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
		b.WriteString("\x1b[K")
	}
	b.WriteString("\x1b[J")
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", cursorRow, cursorCol))
	b.WriteString("\x1b[?25h")
	_, err := io.WriteString(s.out, b.String())
	return err
}
