package schema

// InputKind identifies a discrete event delivered by a display front end.
type InputKind int

const (
	// InputInsert inserts Text (usually one rune) at the cursor.
	InputInsert InputKind = iota + 1
	// InputBackspace deletes the rune before the cursor (or edits the search query).
	InputBackspace
	// InputDelete deletes the rune under the cursor.
	InputDelete
	// InputCursorLeft moves the cursor one rune left.
	InputCursorLeft
	// InputCursorRight moves the cursor one rune right.
	InputCursorRight
	// InputCursorHome moves the cursor to the start of the line.
	InputCursorHome
	// InputCursorEnd moves the cursor to the end of the line.
	InputCursorEnd
	// InputHistoryPrev loads the previous history entry into the input line.
	InputHistoryPrev
	// InputHistoryNext loads the next history entry into the input line.
	InputHistoryNext
	// InputSubmit runs the input line (or resolves the search query).
	InputSubmit
	// InputComplete completes the last token against the working directory.
	InputComplete
	// InputSearch enters history search mode.
	InputSearch
	// InputCancelSearch leaves history search mode.
	InputCancelSearch
	// InputScroll moves the scrollback view by Delta lines (positive scrolls up).
	InputScroll
	// InputTick is a periodic no-op that forces a redraw check.
	InputTick
)

var inputKindNames = map[InputKind]string{
	InputInsert:       "insert",
	InputBackspace:    "backspace",
	InputDelete:       "delete",
	InputCursorLeft:   "left",
	InputCursorRight:  "right",
	InputCursorHome:   "home",
	InputCursorEnd:    "end",
	InputHistoryPrev:  "history-prev",
	InputHistoryNext:  "history-next",
	InputSubmit:       "submit",
	InputComplete:     "complete",
	InputSearch:       "search",
	InputCancelSearch: "cancel-search",
	InputScroll:       "scroll",
	InputTick:         "tick",
}

// String returns a short name for logging.
func (k InputKind) String() string {
	if name, ok := inputKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// InputEvent is one discrete input delivered to a session.
type InputEvent struct {
	Session SessionID
	Kind    InputKind
	Text    string
	Delta   int
}

// RedrawEvent notifies display front ends that observable state changed.
type RedrawEvent struct {
	Session SessionID
}

// SessionEventType describes a session lifecycle change.
type SessionEventType string

const (
	// SessionOpened indicates a session was created.
	SessionOpened SessionEventType = "opened"
	// SessionClosed indicates a session was destroyed.
	SessionClosed SessionEventType = "closed"
	// SessionActivated indicates the active session changed.
	SessionActivated SessionEventType = "activated"
)

// SessionEvent notifies front ends of session lifecycle changes.
type SessionEvent struct {
	Type    SessionEventType
	Session SessionID
}
