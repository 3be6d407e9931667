package schema

import "time"

// BufferSnapshot represents the current scrollback view.
type BufferSnapshot struct {
	Lines        []string
	TotalLines   int
	ScrollOffset int
	AtBottom     bool
}

// JobSnapshot is a read-only view of a tracked job.
type JobSnapshot struct {
	ID      JobID
	Pid     int
	Label   string
	Status  JobStatus
	Started time.Time
}

// SessionSnapshot is the read-only state a display front end renders.
type SessionSnapshot struct {
	ID          SessionID
	Title       string
	Active      bool
	Cwd         string
	Buffer      BufferSnapshot
	Input       string
	Cursor      int
	SearchMode  bool
	SearchQuery string
	// SearchPreview is the newest entry containing the query, if any.
	SearchPreview string
	Jobs          []JobSnapshot
}

// SessionSummary describes a session for tab bars.
type SessionSummary struct {
	ID     SessionID
	Title  string
	Active bool
}
