package core

import (
	"sync"
	"syscall"
	"testing"
)

type sentSignal struct {
	pid int
	sig syscall.Signal
}

func newRecordingBridge() (*SignalBridge, *[]sentSignal) {
	var mu sync.Mutex
	sent := []sentSignal{}
	b := NewSignalBridge()
	b.kill = func(pid int, sig syscall.Signal) error {
		mu.Lock()
		sent = append(sent, sentSignal{pid: pid, sig: sig})
		mu.Unlock()
		return nil
	}
	return b, &sent
}

func TestInterruptWithoutForeground(t *testing.T) {
	b, sent := newRecordingBridge()
	b.Interrupt()
	if len(*sent) != 0 {
		t.Fatalf("expected no signal, got %+v", *sent)
	}
	msg, ok := b.TakeNotice()
	if !ok || msg != "[jobterm] No foreground job to interrupt" {
		t.Fatalf("unexpected notice %q ok=%v", msg, ok)
	}
	if _, ok := b.TakeNotice(); ok {
		t.Fatalf("mailbox should be empty after take")
	}
}

func TestInterruptKeepsForeground(t *testing.T) {
	b, sent := newRecordingBridge()
	b.SetForeground(42)
	b.Interrupt()
	if len(*sent) != 1 || (*sent)[0] != (sentSignal{pid: 42, sig: syscall.SIGINT}) {
		t.Fatalf("unexpected signals %+v", *sent)
	}
	if b.Foreground() != 42 {
		t.Fatalf("interrupt must not clear the slot")
	}
	msg, _ := b.TakeNotice()
	if msg != "[jobterm] Foreground process (42) interrupted" {
		t.Fatalf("unexpected notice %q", msg)
	}
}

func TestStopClearsForegroundAndQueuesPid(t *testing.T) {
	b, sent := newRecordingBridge()
	b.SetForeground(7)
	b.Stop()
	if b.Foreground() != 0 {
		t.Fatalf("stop must clear the slot")
	}
	if len(*sent) != 1 || (*sent)[0] != (sentSignal{pid: 7, sig: syscall.SIGTSTP}) {
		t.Fatalf("unexpected signals %+v", *sent)
	}
	if pids := b.TakeSuspended(); len(pids) != 1 || pids[0] != 7 {
		t.Fatalf("unexpected suspended %v", pids)
	}
	msg, _ := b.TakeNotice()
	if msg != "[jobterm] Foreground process (7) stopped (backgrounded)" {
		t.Fatalf("unexpected notice %q", msg)
	}

	b.Interrupt()
	msg, _ = b.TakeNotice()
	if msg != "[jobterm] No foreground job to interrupt" {
		t.Fatalf("expected empty slot after stop, got %q", msg)
	}
	b.Stop()
	msg, _ = b.TakeNotice()
	if msg != "[jobterm] No foreground job to stop" {
		t.Fatalf("unexpected notice %q", msg)
	}
	if pids := b.TakeSuspended(); len(pids) != 0 {
		t.Fatalf("expected nothing queued, got %v", pids)
	}
}

func TestMailboxLastWriteWins(t *testing.T) {
	b, _ := newRecordingBridge()
	b.Interrupt()
	b.SetForeground(9)
	b.Interrupt()
	msg, _ := b.TakeNotice()
	if msg != "[jobterm] Foreground process (9) interrupted" {
		t.Fatalf("expected newest notice, got %q", msg)
	}
}

func TestClearForegroundOnlyMatchingPid(t *testing.T) {
	b, _ := newRecordingBridge()
	b.SetForeground(5)
	if b.ClearForeground(6) {
		t.Fatalf("clear with another pid must fail")
	}
	if !b.ClearForeground(5) || b.Foreground() != 0 {
		t.Fatalf("expected slot cleared")
	}
}

func TestConcurrentStopsAreAllQueued(t *testing.T) {
	b, _ := newRecordingBridge()
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			b.SetForeground(pid)
			b.Stop()
		}(i)
	}
	wg.Wait()
	pids := b.TakeSuspended()
	if len(pids) == 0 || len(pids) > 20 {
		t.Fatalf("unexpected suspended count %d", len(pids))
	}
	seen := map[int]bool{}
	for _, pid := range pids {
		if seen[pid] {
			t.Fatalf("pid %d queued twice", pid)
		}
		seen[pid] = true
	}
}
