package core

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// exitNotFound is the status reported when a stage could not be executed.
const exitNotFound = 127

// proc tracks one spawned child. A goroutine blocks in Wait and closes done
// when the child is reaped, so callers can poll without blocking.
type proc struct {
	pid     int
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	exited  atomic.Bool

	mu     sync.Mutex
	status procStatus
}

// procStatus is the decoded wait status of a reaped child.
type procStatus struct {
	Exited   bool
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// String renders the status the way job lines report it.
func (s procStatus) String() string {
	switch {
	case s.Exited:
		return fmt.Sprintf("Done (exit %d)", s.Code)
	case s.Signaled:
		return fmt.Sprintf("Terminated by signal %d (%s)", int(s.Signal), signalName(s.Signal))
	default:
		return "Done"
	}
}

func startProc(cmd *exec.Cmd) (*proc, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &proc{
		pid:     cmd.Process.Pid,
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go p.waitLoop()
	return p, nil
}

// exitedProc returns an already-reaped placeholder for a stage that never ran.
func exitedProc(code int) *proc {
	p := &proc{
		pid:     -1,
		started: time.Now(),
		done:    make(chan struct{}),
		status:  procStatus{Exited: true, Code: code},
	}
	p.exited.Store(true)
	close(p.done)
	return p
}

func (p *proc) waitLoop() {
	err := p.cmd.Wait()
	status := procStatus{}
	state := p.cmd.ProcessState
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok {
			switch {
			case ws.Exited():
				status = procStatus{Exited: true, Code: ws.ExitStatus()}
			case ws.Signaled():
				status = procStatus{Signaled: true, Signal: ws.Signal()}
			}
		} else {
			status = procStatus{Exited: true, Code: state.ExitCode()}
		}
	} else if err != nil {
		status = procStatus{Exited: true, Code: -1}
	}
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	p.exited.Store(true)
	close(p.done)
}

// Done returns a channel closed once the child has been reaped.
func (p *proc) Done() <-chan struct{} {
	return p.done
}

// Reaped reports whether the child has exited, without blocking.
func (p *proc) Reaped() (procStatus, bool) {
	select {
	case <-p.done:
	default:
		return procStatus{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, true
}

// Signal delivers sig to the child unless it has already been reaped.
func (p *proc) Signal(sig syscall.Signal) error {
	if p.pid <= 0 || p.exited.Load() {
		return os.ErrProcessDone
	}
	return unix.Kill(p.pid, sig)
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// isNotFound reports whether a start error means the program could not be
// located or executed, which maps to exit status 127.
func isNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, exec.ErrDot) {
		return true
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.ENOEXEC)
}

// drainAvailable reads whatever is immediately available on f without
// waiting, passing each chunk to sink. It reports eof when the write side
// is closed. A would-block result ends the drain with no error.
func drainAvailable(f *os.File, buf []byte, sink func([]byte)) (eof bool, err error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return false, err
	}
	for {
		var n int
		var rerr error
		cerr := rc.Read(func(fd uintptr) bool {
			n, rerr = unix.Read(int(fd), buf)
			return true
		})
		if cerr != nil {
			return false, cerr
		}
		switch {
		case errors.Is(rerr, unix.EINTR):
			continue
		case errors.Is(rerr, unix.EAGAIN):
			return false, nil
		case rerr != nil:
			return false, rerr
		case n == 0:
			return true, nil
		}
		sink(buf[:n])
	}
}

// setNonblock marks f's descriptor non-blocking.
func setNonblock(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return err
	}
	return serr
}
