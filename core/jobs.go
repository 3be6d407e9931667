package core

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"pkt.systems/jobterm/schema"
)

const drainBufferSize = 4096

// Job is a tracked process: a background pipeline's last stage or a
// process suspended from the foreground.
type Job struct {
	ID      schema.JobID
	Pid     int
	Label   string
	Started time.Time

	proc    *proc
	out     *os.File
	split   lineSplitter
	active  bool
	stopped bool
}

// JobTable tracks a session's jobs by id, in registration order. Inactive
// jobs stay listed until capacity forces the oldest one out.
type JobTable struct {
	mu     sync.Mutex
	jobs   map[schema.JobID]*Job
	order  []schema.JobID
	nextID schema.JobID
	max    int
	buf    []byte
}

func newJobTable(max int) *JobTable {
	if max <= 0 {
		max = schema.DefaultMaxJobs
	}
	return &JobTable{
		jobs: make(map[schema.JobID]*Job),
		max:  max,
		buf:  make([]byte, drainBufferSize),
	}
}

// Register adds an active job. out may be nil. When the table is full and
// every job is still active the registration is refused with
// schema.ErrJobTableFull; the caller owns out in that case.
func (t *JobTable) Register(p *proc, out *os.File, label string, stopped bool) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) >= t.max && !t.evictOldestInactive() {
		return nil, schema.ErrJobTableFull
	}
	t.nextID++
	job := &Job{
		ID:      t.nextID,
		Pid:     p.pid,
		Label:   label,
		Started: p.started,
		proc:    p,
		out:     out,
		active:  true,
		stopped: stopped,
	}
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	return job, nil
}

func (t *JobTable) evictOldestInactive() bool {
	for i, id := range t.order {
		if t.jobs[id].active {
			continue
		}
		delete(t.jobs, id)
		t.order = append(t.order[:i], t.order[i+1:]...)
		return true
	}
	return false
}

// Poll drains every active job's output into log and reaps finished
// processes, appending one status line per reaped job. It never blocks.
func (t *JobTable) Poll(log *ScrollbackLog) []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var reaped []*Job
	for _, id := range t.order {
		job := t.jobs[id]
		if !job.active {
			continue
		}
		t.drainLocked(job, log)
		status, ok := job.proc.Reaped()
		if !ok {
			continue
		}
		t.finishLocked(job, log)
		log.AppendLines(fmt.Sprintf("[%d] %s  %s", job.Pid, status, job.Label))
		reaped = append(reaped, job)
	}
	return reaped
}

// drainLocked copies immediately available output into log. End of stream
// or a read error closes the descriptor; the job stays active until reaped.
func (t *JobTable) drainLocked(job *Job, log *ScrollbackLog) {
	if job.out == nil {
		return
	}
	eof, err := drainAvailable(job.out, t.buf, func(chunk []byte) {
		log.AppendLines(job.split.Write(chunk)...)
	})
	if eof || err != nil {
		t.closeOutputLocked(job, log)
	}
}

func (t *JobTable) closeOutputLocked(job *Job, log *ScrollbackLog) {
	if job.out == nil {
		return
	}
	log.AppendLines(job.split.Flush()...)
	_ = job.out.Close()
	job.out = nil
}

func (t *JobTable) finishLocked(job *Job, log *ScrollbackLog) {
	t.drainLocked(job, log)
	t.closeOutputLocked(job, log)
	job.active = false
	job.stopped = false
}

// Drain copies available output of the job with pid into log.
func (t *JobTable) Drain(pid int, log *ScrollbackLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job := t.findLocked(pid); job != nil && job.active {
		t.drainLocked(job, log)
	}
}

// Finish marks the job with pid inactive without a status line.
func (t *JobTable) Finish(pid int, log *ScrollbackLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job := t.findLocked(pid); job != nil && job.active {
		t.finishLocked(job, log)
	}
}

// Find returns the newest active job for pid.
func (t *JobTable) Find(pid int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.findLocked(pid)
	return job, job != nil
}

func (t *JobTable) findLocked(pid int) *Job {
	for i := len(t.order) - 1; i >= 0; i-- {
		job := t.jobs[t.order[i]]
		if job.Pid == pid && job.active {
			return job
		}
	}
	return nil
}

// SetStopped records whether the active job for pid is suspended.
func (t *JobTable) SetStopped(pid int, stopped bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.findLocked(pid)
	if job == nil {
		return false
	}
	job.stopped = stopped
	return true
}

// Active returns snapshots of active jobs in registration order.
func (t *JobTable) Active() []schema.JobSnapshot {
	all := t.Snapshot()
	active := all[:0]
	for _, job := range all {
		if job.Status != schema.JobDone {
			active = append(active, job)
		}
	}
	return active
}

// Snapshot returns every tracked job in registration order.
func (t *JobTable) Snapshot() []schema.JobSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]schema.JobSnapshot, 0, len(t.order))
	for _, id := range t.order {
		job := t.jobs[id]
		status := schema.JobRunning
		switch {
		case !job.active:
			status = schema.JobDone
		case job.stopped:
			status = schema.JobStopped
		}
		out = append(out, schema.JobSnapshot{
			ID:      job.ID,
			Pid:     job.Pid,
			Label:   job.Label,
			Status:  status,
			Started: job.Started,
		})
	}
	return out
}

// Len returns the number of tracked jobs, active or not.
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// KillAll force-terminates every active job and closes its descriptor.
func (t *JobTable) KillAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	killed := 0
	for _, id := range t.order {
		job := t.jobs[id]
		if !job.active {
			continue
		}
		if err := job.proc.Signal(syscall.SIGKILL); err == nil {
			killed++
		}
		if job.out != nil {
			_ = job.out.Close()
			job.out = nil
		}
		job.active = false
	}
	return killed
}
