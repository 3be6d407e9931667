package logx

import (
	"context"

	"pkt.systems/jobterm/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the context logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithPid annotates the logger with a process id when positive.
func WithPid(log pslog.Logger, pid int) pslog.Logger {
	if pid > 0 {
		log = log.With("pid", pid)
	}
	return log
}

// WithJob annotates the logger with job metadata when available.
func WithJob(log pslog.Logger, id schema.JobID, pid int, label string) pslog.Logger {
	if id > 0 {
		log = log.With("job", int(id))
	}
	log = WithPid(log, pid)
	if label != "" {
		log = log.With("command", label)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}
