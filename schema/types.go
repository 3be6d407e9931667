package schema

// SessionID identifies an interactive session (one terminal tab).
type SessionID string

// JobID identifies an entry in a session's job table.
type JobID int

// JobStatus describes the lifecycle state of a tracked job.
type JobStatus string

const (
	// JobRunning indicates a background process still executing.
	JobRunning JobStatus = "running"
	// JobStopped indicates a process suspended from the foreground.
	JobStopped JobStatus = "stopped"
	// JobDone indicates the process has been reaped.
	JobDone JobStatus = "done"
)
