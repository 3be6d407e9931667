package core

import (
	"fmt"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

const noticePrefix = "[jobterm]"

// suspendQueueSize bounds stops that can be staged between two scheduler ticks.
const suspendQueueSize = 64

// SignalBridge carries interrupt and stop requests from asynchronous
// contexts (OS signal forwarding, key reader goroutines) to the foreground
// process and back to the scheduler. It holds the single foreground slot
// shared by every session. Interrupt and Stop take no locks.
type SignalBridge struct {
	foreground atomic.Int64
	mailbox    atomic.Pointer[string]
	suspended  chan int
	kill       func(pid int, sig syscall.Signal) error
}

// NewSignalBridge returns a bridge that delivers signals with kill(2).
func NewSignalBridge() *SignalBridge {
	return &SignalBridge{
		suspended: make(chan int, suspendQueueSize),
		kill:      unix.Kill,
	}
}

// SetForeground makes pid the target of Interrupt and Stop.
func (b *SignalBridge) SetForeground(pid int) {
	b.foreground.Store(int64(pid))
}

// ClearForeground empties the slot if it still holds pid.
func (b *SignalBridge) ClearForeground(pid int) bool {
	return b.foreground.CompareAndSwap(int64(pid), 0)
}

// Foreground returns the current foreground pid or 0.
func (b *SignalBridge) Foreground() int {
	return int(b.foreground.Load())
}

// Interrupt sends SIGINT to the foreground process, if any.
func (b *SignalBridge) Interrupt() {
	pid := int(b.foreground.Load())
	if pid <= 0 {
		b.post(noticePrefix + " No foreground job to interrupt")
		return
	}
	_ = b.kill(pid, syscall.SIGINT)
	b.post(fmt.Sprintf("%s Foreground process (%d) interrupted", noticePrefix, pid))
}

// Stop sends SIGTSTP to the foreground process and releases the slot. The
// stopped pid is queued so the scheduler can track it as a job.
func (b *SignalBridge) Stop() {
	pid := int(b.foreground.Swap(0))
	if pid <= 0 {
		b.post(noticePrefix + " No foreground job to stop")
		return
	}
	_ = b.kill(pid, syscall.SIGTSTP)
	select {
	case b.suspended <- pid:
	default:
	}
	b.post(fmt.Sprintf("%s Foreground process (%d) stopped (backgrounded)", noticePrefix, pid))
}

// post stages msg, replacing any message not yet drained.
func (b *SignalBridge) post(msg string) {
	b.mailbox.Store(&msg)
}

// TakeNotice empties the mailbox.
func (b *SignalBridge) TakeNotice() (string, bool) {
	msg := b.mailbox.Swap(nil)
	if msg == nil {
		return "", false
	}
	return *msg, true
}

// TakeSuspended returns pids stopped since the last call.
func (b *SignalBridge) TakeSuspended() []int {
	var pids []int
	for {
		select {
		case pid := <-b.suspended:
			pids = append(pids, pid)
		default:
			return pids
		}
	}
}
