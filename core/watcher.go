package core

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/jobterm/internal/logx"
	"pkt.systems/jobterm/schema"
)

// Watcher reruns a fixed command list on an interval and appends the
// timestamped output to a session log. One run flag is shared by every
// watch loop the engine starts, so a stop ends all of them.
type Watcher struct {
	running  atomic.Bool
	loops    atomic.Int32
	shell    string
	interval time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
}

func newWatcher(shell string, interval time.Duration) *Watcher {
	if shell == "" {
		shell = schema.DefaultShell
	}
	if interval <= 0 {
		interval = schema.DefaultWatchInterval
	}
	return &Watcher{shell: shell, interval: interval, now: time.Now}
}

// Start captures cmds and begins a watch loop for session s. Starting
// again while a loop is active adds a loop bound to the same flag.
func (w *Watcher) Start(ctx context.Context, s *Session, cmds []string) error {
	if len(cmds) == 0 {
		return schema.ErrEmptyWatchList
	}
	if len(cmds) > schema.MaxWatchCommands {
		cmds = cmds[:schema.MaxWatchCommands]
	}
	list := append([]string(nil), cmds...)
	dir := s.Cwd()
	w.running.Store(true)
	w.loops.Add(1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx, s, dir, list)
		// The last loop to end clears the flag, even when it ended because
		// its session was closed.
		if w.loops.Add(-1) == 0 {
			w.running.Store(false)
		}
	}()
	return nil
}

// Stop clears the run flag and reports whether it was set. Loops notice at
// their next cycle; commands already running are not interrupted.
func (w *Watcher) Stop() bool {
	return w.running.Swap(false)
}

// Running reports whether the run flag is set.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// Wait blocks until every watch loop has returned.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, s *Session, dir string, cmds []string) {
	log := logx.WithSession(ctx, s.ID).With("commands", len(cmds))
	log.Info("watch started")
	s.log.AppendLines(fmt.Sprintf("multiWatch started (refresh every %s)...", w.interval))
	cycles := 0
	for w.running.Load() && ctx.Err() == nil && !s.closed() {
		for _, cmd := range cmds {
			lines := w.runOnce(ctx, dir, cmd)
			if s.closed() {
				break
			}
			s.log.AppendLines(lines...)
		}
		if s.closed() {
			break
		}
		s.log.AppendLines("------ refresh complete ------")
		cycles++
		log.Debug("watch cycle", "cycle", cycles)
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-s.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	if s.closed() {
		log.Info("watch stopped", "cycles", cycles, "reason", "session closed")
		return
	}
	s.log.AppendLines("multiWatch stopped.")
	log.Info("watch stopped", "cycles", cycles)
}

// runOnce runs cmd through the shell, reads its combined output to end of
// stream and returns the header line followed by the output lines.
func (w *Watcher) runOnce(ctx context.Context, dir, cmd string) []string {
	c := exec.Command(w.shell, "-c", cmd)
	c.Dir = dir
	out, err := c.CombinedOutput()
	lines := []string{fmt.Sprintf("[%s] --- %s ---", w.now().Format("15:04:05"), cmd)}
	if text := strings.TrimSuffix(string(out), "\n"); text != "" {
		lines = append(lines, strings.Split(text, "\n")...)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			lines = append(lines, "jobterm: multiWatch: "+err.Error())
			logx.Ctx(ctx).Warn("watch command failed", "command", cmd, "err", err)
		}
	}
	return lines
}
