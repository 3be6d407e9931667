package schema

import "errors"

var (
	// ErrSessionNotFound indicates a requested session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions indicates the session limit has been reached.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrEmptyCommand indicates the submitted line was empty.
	ErrEmptyCommand = errors.New("empty command")
	// ErrParse indicates a command line could not be parsed.
	ErrParse = errors.New("parse error")
	// ErrTooManyStages indicates a pipeline exceeded the stage limit.
	ErrTooManyStages = errors.New("too many pipeline stages")
	// ErrJobTableFull indicates a job could not be registered.
	ErrJobTableFull = errors.New("job table full")
	// ErrJobNotFound indicates no tracked job has the given process id.
	ErrJobNotFound = errors.New("job not found")
	// ErrEmptyWatchList indicates a watcher was started without commands.
	ErrEmptyWatchList = errors.New("no watch commands")
	// ErrWatchActive indicates a watcher is already running.
	ErrWatchActive = errors.New("watch already active")
	// ErrEngineStopped indicates the engine loop is no longer accepting input.
	ErrEngineStopped = errors.New("engine stopped")
)
