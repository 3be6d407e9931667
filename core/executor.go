package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"pkt.systems/jobterm/internal/command"
	"pkt.systems/jobterm/internal/logx"
	"pkt.systems/pslog"
)

// PipelineExecutor realizes parsed pipelines as connected child processes.
type PipelineExecutor struct {
	bridge   *SignalBridge
	registry *procRegistry
	poll     time.Duration
}

func newPipelineExecutor(bridge *SignalBridge, poll time.Duration) *PipelineExecutor {
	return &PipelineExecutor{
		bridge:   bridge,
		registry: newProcRegistry(),
		poll:     poll,
	}
}

// procRegistry remembers foreground processes so a stop delivered from
// another goroutine can be turned into a job by the scheduler. A detached
// pipeline's capture descriptor travels with its process: the stopped
// process still holds the write end and must find a reader when continued.
type procRegistry struct {
	mu    sync.Mutex
	procs map[int]registered
}

type registered struct {
	proc *proc
	out  *os.File
}

func newProcRegistry() *procRegistry {
	return &procRegistry{procs: make(map[int]registered)}
}

func (r *procRegistry) add(p *proc) {
	if p.pid <= 0 {
		return
	}
	r.mu.Lock()
	r.procs[p.pid] = registered{proc: p}
	r.mu.Unlock()
}

// detach hands out to whoever takes pid next.
func (r *procRegistry) detach(pid int, out *os.File) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.procs[pid]
	if !ok {
		return false
	}
	entry.out = out
	r.procs[pid] = entry
	return true
}

func (r *procRegistry) remove(pid int) {
	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()
}

func (r *procRegistry) take(pid int) (*proc, *os.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.procs[pid]
	delete(r.procs, pid)
	return entry.proc, entry.out, ok
}

// stageFiles holds redirect targets opened before any process is spawned.
type stageFiles struct {
	in  *os.File
	out *os.File
}

// Run launches pipeline in session s. In foreground mode it blocks until
// every stage exits (or the last stage is stopped), copying the last
// stage's combined output into the session log. In background mode the
// last stage is registered as a job and Run returns immediately.
func (x *PipelineExecutor) Run(ctx context.Context, s *Session, pipeline command.Pipeline, label string) error {
	log := logx.WithSession(ctx, s.ID).With("command", label, "stages", len(pipeline.Stages), "background", pipeline.Background)
	if len(pipeline.Stages) == 0 {
		return nil
	}
	cwd := s.Cwd()
	files, err := openRedirects(cwd, pipeline.Stages)
	if err != nil {
		s.log.AppendLines("jobterm: " + err.Error())
		log.Warn("pipeline redirect failed", "err", err)
		return err
	}
	defer closeRedirects(files)

	capR, capW, err := os.Pipe()
	if err != nil {
		s.log.AppendLines("jobterm: pipe failed: " + err.Error())
		log.Warn("pipeline pipe failed", "err", err)
		return err
	}
	procs, err := x.spawn(cwd, pipeline.Stages, files, capW, func(msg string) { s.log.AppendLines(msg) })
	_ = capW.Close()
	if err != nil {
		_ = capR.Close()
		s.log.AppendLines("jobterm: " + err.Error())
		log.Warn("pipeline spawn failed", "err", err, "spawned", len(procs))
		return err
	}
	if err := setNonblock(capR); err != nil {
		log.Warn("pipeline capture nonblock failed", "err", err)
	}
	last := procs[len(procs)-1]
	log = logx.WithPid(log, last.pid)
	log.Info("pipeline start")
	if pipeline.Background {
		return x.background(s, last, capR, label, log)
	}
	return x.foreground(ctx, s, procs, capR, log)
}

// spawn starts every stage. A stage whose program is missing is reported
// through the capture pipe when it is the last stage, and through report
// otherwise, so the message never becomes the next stage's input.
func (x *PipelineExecutor) spawn(cwd string, stages []command.Stage, files []stageFiles, capture *os.File, report func(string)) ([]*proc, error) {
	procs := make([]*proc, 0, len(stages))
	var prev *os.File
	defer func() {
		if prev != nil {
			_ = prev.Close()
		}
	}()
	for i, stage := range stages {
		stdin := prev
		if files[i].in != nil {
			stdin = files[i].in
		}
		stdout := capture
		var pipeR, pipeW *os.File
		if i < len(stages)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				return procs, fmt.Errorf("pipe failed: %w", err)
			}
			pipeR, pipeW, stdout = r, w, w
		}
		if files[i].out != nil {
			stdout = files[i].out
		}
		p, notFound, err := x.start(cwd, stage.Argv, stdin, stdout)
		if notFound {
			msg := fmt.Sprintf("jobterm: %s: command not found", stage.Argv[0])
			if stdout == capture {
				_, _ = fmt.Fprintln(capture, msg)
			} else {
				report(msg)
			}
		}
		if pipeW != nil {
			_ = pipeW.Close()
		}
		if prev != nil {
			_ = prev.Close()
		}
		prev = pipeR
		if err != nil {
			return procs, fmt.Errorf("failed to start %s: %w", stage.Argv[0], err)
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// start spawns one stage with stderr joined to stdout. A program that
// cannot be found or executed yields an already-exited stage with status 127
// and notFound set.
func (x *PipelineExecutor) start(cwd string, argv []string, stdin, stdout *os.File) (p *proc, notFound bool, err error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p, err = startProc(cmd)
	if err == nil {
		return p, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	return exitedProc(exitNotFound), true, nil
}

func (x *PipelineExecutor) background(s *Session, last *proc, out *os.File, label string, log pslog.Logger) error {
	if last.pid <= 0 {
		// Nothing is left running; report the failure inline.
		var split lineSplitter
		_, _ = drainAvailable(out, make([]byte, drainBufferSize), func(chunk []byte) {
			s.log.AppendLines(split.Write(chunk)...)
		})
		s.log.AppendLines(split.Flush()...)
		_ = out.Close()
		status, _ := last.Reaped()
		s.log.AppendLines(fmt.Sprintf("%s  %s", status, label))
		return nil
	}
	job, err := s.jobs.Register(last, out, label, false)
	if err != nil {
		_ = out.Close()
		s.log.AppendLines(fmt.Sprintf("jobterm: job table full, [%d] is not tracked", last.pid))
		log.Warn("job register failed", "err", err)
		return err
	}
	s.log.AppendLines(fmt.Sprintf("[%d] running in background", last.pid))
	logx.WithJob(log, job.ID, job.Pid, "").Debug("job registered")
	return nil
}

func (x *PipelineExecutor) foreground(ctx context.Context, s *Session, procs []*proc, out *os.File, log pslog.Logger) error {
	last := procs[len(procs)-1]
	x.registry.add(last)
	if last.pid > 0 {
		x.bridge.SetForeground(last.pid)
	}
	var split lineSplitter
	buf := make([]byte, drainBufferSize)
	open := true
	drain := func() {
		if !open {
			return
		}
		eof, err := drainAvailable(out, buf, func(chunk []byte) {
			s.log.AppendLines(split.Write(chunk)...)
		})
		if eof || err != nil {
			open = false
		}
	}
	finished := func() bool {
		for _, p := range procs {
			if _, ok := p.Reaped(); !ok {
				return false
			}
		}
		return true
	}
	detached, err := x.waitForeground(ctx, last.pid, finished, drain)
	drain()
	s.log.AppendLines(split.Flush()...)
	if detached && open && x.registry.detach(last.pid, out) {
		log.Info("pipeline suspended")
		return nil
	}
	_ = out.Close()
	if detached {
		log.Info("pipeline suspended")
		return nil
	}
	x.bridge.ClearForeground(last.pid)
	x.registry.remove(last.pid)
	if err != nil {
		log.Warn("pipeline wait aborted", "err", err)
		return err
	}
	s.log.AppendLines("Command finished.")
	s.log.ResetScroll()
	status, _ := last.Reaped()
	log.Info("pipeline finished", "status", status.String())
	return nil
}

// Resume brings the active job with pid to the foreground, continuing it if
// it was stopped, and blocks until it exits or is stopped again.
func (x *PipelineExecutor) Resume(ctx context.Context, s *Session, pid int) error {
	job, ok := s.jobs.Find(pid)
	if !ok {
		return fmt.Errorf("fg: no such job: %d", pid)
	}
	log := logx.WithJob(logx.WithSession(ctx, s.ID), job.ID, job.Pid, job.Label)
	s.log.AppendLines("Bringing job to foreground...")
	if s.jobs.SetStopped(pid, false) {
		if err := job.proc.Signal(syscall.SIGCONT); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Warn("job continue failed", "err", err)
		}
	}
	x.registry.add(job.proc)
	x.bridge.SetForeground(pid)
	finished := func() bool {
		_, ok := job.proc.Reaped()
		return ok
	}
	drain := func() { s.jobs.Drain(pid, s.log) }
	detached, err := x.waitForeground(ctx, pid, finished, drain)
	if detached {
		log.Info("job suspended again")
		return nil
	}
	x.bridge.ClearForeground(pid)
	x.registry.remove(pid)
	if err != nil {
		return err
	}
	s.jobs.Finish(pid, s.log)
	s.log.AppendLines("Foreground job finished.")
	log.Info("job finished in foreground")
	return nil
}

// waitForeground polls until finished reports true, draining output on
// every tick. It returns detached=true when pid leaves the foreground
// slot, which happens when the process is stopped.
func (x *PipelineExecutor) waitForeground(ctx context.Context, pid int, finished func() bool, drain func()) (bool, error) {
	ticker := time.NewTicker(x.poll)
	defer ticker.Stop()
	for {
		drain()
		if finished() {
			return false, nil
		}
		if pid > 0 && x.bridge.Foreground() != pid {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func openRedirects(cwd string, stages []command.Stage) ([]stageFiles, error) {
	files := make([]stageFiles, len(stages))
	for i, stage := range stages {
		if stage.Input != "" {
			f, err := os.Open(resolvePath(cwd, stage.Input))
			if err != nil {
				closeRedirects(files)
				return nil, redirectError(stage.Input, err)
			}
			files[i].in = f
		}
		if stage.Output != "" {
			flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if stage.Append {
				flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}
			f, err := os.OpenFile(resolvePath(cwd, stage.Output), flags, 0o644)
			if err != nil {
				closeRedirects(files)
				return nil, redirectError(stage.Output, err)
			}
			files[i].out = f
		}
	}
	return files, nil
}

func closeRedirects(files []stageFiles) {
	for _, f := range files {
		if f.in != nil {
			_ = f.in.Close()
		}
		if f.out != nil {
			_ = f.out.Close()
		}
	}
}

func redirectError(name string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", name, pathErr.Err)
	}
	return fmt.Errorf("%s: %w", name, err)
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) || cwd == "" {
		return path
	}
	return filepath.Join(cwd, path)
}
