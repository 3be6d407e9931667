package console

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyUp
	keyDown
	keyHome
	keyEnd
	keyPageUp
	keyPageDown
	keyWheelUp
	keyWheelDown
	keyCtrlA
	keyCtrlE
	keyCtrlR
	keyCtrlC
	keyCtrlZ
	keyCtrlT
	keyCtrlD
	keyTab
	keyShiftTab
	keyEsc
)

type key struct {
	kind keyKind
	r    rune
}

// readKeys decodes terminal input into keys until r fails. intercept sees
// every key first, on the reading goroutine; keys it consumes are not queued.
func readKeys(r io.Reader, out *queue[key], intercept func(key) bool) {
	defer out.close()
	emit := func(k key) {
		if intercept != nil && intercept(k) {
			return
		}
		out.push(k)
	}
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case 0x1b:
			if br.Buffered() == 0 {
				emit(key{kind: keyEsc})
				continue
			}
			readEscape(br, emit)
		case '\r':
			emit(key{kind: keyEnter})
			lastWasCR = true
		case '\n':
			emit(key{kind: keyEnter})
		case 0x7f, 0x08:
			emit(key{kind: keyBackspace})
		case 0x01:
			emit(key{kind: keyCtrlA})
		case 0x05:
			emit(key{kind: keyCtrlE})
		case 0x12:
			emit(key{kind: keyCtrlR})
		case 0x03:
			emit(key{kind: keyCtrlC})
		case 0x1a:
			emit(key{kind: keyCtrlZ})
		case 0x14:
			emit(key{kind: keyCtrlT})
		case 0x04:
			emit(key{kind: keyCtrlD})
		case 0x09:
			emit(key{kind: keyTab})
		default:
			if b < 0x20 {
				continue
			}
			if b < utf8.RuneSelf {
				emit(key{kind: keyRune, r: rune(b)})
				continue
			}
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return
			}
			emit(key{kind: keyRune, r: rn})
		}
	}
}

func readEscape(br *bufio.Reader, emit func(key)) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case '[':
		readCSI(br, emit)
	case 'O':
		readSS3(br, emit)
	case 0x1b:
		emit(key{kind: keyEsc})
	}
}

func readCSI(br *bufio.Reader, emit func(key)) {
	seq := []byte{}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		seq = append(seq, b)
		if b == '~' || unicode.IsLetter(rune(b)) {
			break
		}
		if len(seq) > 16 {
			return
		}
	}
	switch s := string(seq); s {
	case "A":
		emit(key{kind: keyUp})
	case "B":
		emit(key{kind: keyDown})
	case "C":
		emit(key{kind: keyRight})
	case "D":
		emit(key{kind: keyLeft})
	case "H", "1~", "7~":
		emit(key{kind: keyHome})
	case "F", "4~", "8~":
		emit(key{kind: keyEnd})
	case "5~":
		emit(key{kind: keyPageUp})
	case "6~":
		emit(key{kind: keyPageDown})
	case "3~":
		emit(key{kind: keyDelete})
	case "Z", "1;2Z":
		emit(key{kind: keyShiftTab})
	default:
		if strings.HasPrefix(s, "<") {
			readMouse(s, emit)
		}
	}
}

// readMouse handles SGR mouse reports (`<button;x;yM`); only the wheel is used.
func readMouse(seq string, emit func(key)) {
	fields := strings.Split(strings.TrimRight(seq[1:], "Mm"), ";")
	if len(fields) != 3 {
		return
	}
	button, err := strconv.Atoi(fields[0])
	if err != nil {
		return
	}
	switch button {
	case 64:
		emit(key{kind: keyWheelUp})
	case 65:
		emit(key{kind: keyWheelDown})
	}
}

func readSS3(br *bufio.Reader, emit func(key)) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case 'A':
		emit(key{kind: keyUp})
	case 'B':
		emit(key{kind: keyDown})
	case 'C':
		emit(key{kind: keyRight})
	case 'D':
		emit(key{kind: keyLeft})
	case 'H':
		emit(key{kind: keyHome})
	case 'F':
		emit(key{kind: keyEnd})
	}
}
