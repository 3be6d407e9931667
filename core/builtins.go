package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/sys/unix"
	"pkt.systems/jobterm/internal/command"
	"pkt.systems/jobterm/internal/logx"
	"pkt.systems/jobterm/schema"
)

func (e *Engine) runBuiltin(ctx context.Context, s *Session, cmd command.Command) {
	log := logx.Ctx(ctx).With("builtin", cmd.Kind.String())
	switch cmd.Kind {
	case command.KindChangeDir:
		e.changeDir(s, cmd.Path)
	case command.KindHistory:
		entries := s.history.Entries()
		start := 0
		if len(entries) > e.cfg.HistoryListLimit {
			start = len(entries) - e.cfg.HistoryListLimit
		}
		lines := make([]string, 0, len(entries)-start)
		for i := start; i < len(entries); i++ {
			lines = append(lines, fmt.Sprintf("%4d  %s", i+1, entries[i]))
		}
		s.log.AppendLines(lines...)
	case command.KindJobs:
		for _, job := range s.jobs.Active() {
			state := "Running"
			if job.Status == schema.JobStopped {
				state = "Stopped"
			}
			s.log.AppendLines(fmt.Sprintf("[%d] %s  %s", job.Pid, state, job.Label))
		}
	case command.KindKill:
		if err := unix.Kill(cmd.Pid, syscall.SIGKILL); err != nil {
			s.log.AppendLines(fmt.Sprintf("kill: (%d) - %v", cmd.Pid, err))
			log.Warn("kill failed", "pid", cmd.Pid, "err", err)
			return
		}
		s.log.AppendLines("Process killed.")
		log.Info("process killed", "pid", cmd.Pid)
	case command.KindForeground:
		if err := e.exec.Resume(ctx, s, cmd.Pid); err != nil {
			s.log.AppendLines(err.Error())
		}
	case command.KindWatchStart:
		if err := e.watcher.Start(ctx, s, cmd.Watch); err != nil {
			s.log.AppendLines("multiWatch: no valid commands.")
			return
		}
		s.log.AppendLines("multiWatch running (use 'multiWatch-stop' to end).")
	case command.KindWatchStop:
		if !e.watcher.Stop() {
			s.log.AppendLines("No active multiWatch session.")
			return
		}
		s.log.AppendLines("Stopping multiWatch threads...")
	}
}

// changeDir updates the session working directory. An empty path means
// the home directory and a leading `~` is expanded.
func (e *Engine) changeDir(s *Session, path string) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil || home == "" {
			home = "/"
		}
		path = home
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	target := resolvePath(s.Cwd(), path)
	info, err := os.Stat(target)
	if err != nil {
		s.log.AppendLines("cd: No such file or directory: " + path)
		return
	}
	if !info.IsDir() {
		s.log.AppendLines("cd: Not a directory: " + path)
		return
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}
	s.setCwd(filepath.Clean(target))
	s.log.AppendLines("Changed directory to: " + s.Cwd())
}
