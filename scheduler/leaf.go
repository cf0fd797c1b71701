package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/task"
)

// Leaf is the per-CPU scheduler entry: a queue, a single-slot polling
// handoff, an idle flag, a queue threshold, and a rebalance flag (spec
// §3 "Scheduler tree nodes", §4.2 "Leaf operations").
type Leaf struct {
	cpu      *cpumgr.CPU
	parent   *Node
	childIdx int

	// mu guards slot, matching spec §5's "each leaf has one spinlock
	// covering its polling slot and idle flag".
	mu   sync.Mutex
	slot *task.Task
	idle bool

	queue     *Queue
	threshold atomic.Int64
	rebalance atomic.Bool

	resume func(*cpumgr.CPU) bool
}

// NewLeaf builds a leaf for cpu. resume is called to wake the worker
// parked on cpu when the leaf transitions from idle to having work —
// it is the workerpool's ResumeIdle, injected so scheduler never
// imports workerpool directly (keeping the dependency direction the
// same as the teacher's sched.go → SchedWorker interface rather than a
// concrete worker type).
func NewLeaf(cpu *cpumgr.CPU, parent *Node, childIdx int, policy Policy, priority bool, threshold int, resume func(*cpumgr.CPU) bool) *Leaf {
	l := &Leaf{
		cpu:      cpu,
		parent:   parent,
		childIdx: childIdx,
		queue:    NewQueue(policy, priority),
		resume:   resume,
	}
	l.threshold.Store(int64(threshold))
	return l
}

// AddTask implements spec §4.2's addTask: local push when the
// submitter runs on this CPU; otherwise try the polling slot, falling
// back to the queue. Always clears rebalance.
func (l *Leaf) AddTask(t *task.Task, hasComputePlace bool, hint bool) {
	defer l.rebalance.Store(false)

	if hasComputePlace {
		l.queue.Push(t)
		if l.queue.Len() > int(l.threshold.Load()) {
			l.handleQueueOverflow()
		}
		return
	}

	l.mu.Lock()
	if l.slot == nil {
		l.slot = t
		wasIdle := l.idle
		l.mu.Unlock()
		if wasIdle {
			l.wake()
		}
		return
	}
	l.mu.Unlock()

	l.queue.Push(t)
}

// handleQueueOverflow splits the queue in half (minimum 1) and pushes
// the excess batch to the parent.
func (l *Leaf) handleQueueOverflow() {
	n := l.queue.Len() / 2
	if n < 1 {
		n = 1
	}
	batch := l.queue.SplitTail(n)
	if len(batch) == 0 {
		return
	}
	if l.parent != nil {
		l.parent.AddTaskBatch(batch)
	}
}

// GetTask implements spec §4.2's getTask: clear idle if set, try the
// slot, else the queue; on rebalance-triggered overflow re-check;
// otherwise ask the parent, then optionally busy-poll the slot up to
// pollIterations times before giving up and marking idle.
func (l *Leaf) GetTask(doWait bool, pollIterations int) *task.Task {
	l.mu.Lock()
	wasIdle := l.idle
	l.idle = false
	l.mu.Unlock()
	if wasIdle {
		l.notifyParentUnidle()
	}

	if t := l.popSlot(); t != nil {
		return t
	}

	if t := l.queue.Pop(); t != nil {
		if l.rebalance.Load() && l.queue.Len() > (int(l.threshold.Load())*3)/2 {
			l.handleQueueOverflow()
		}
		return t
	}

	if l.parent != nil {
		if t := l.parent.GetTask(l); t != nil {
			return t
		}
	}

	if doWait {
		for i := 0; i < pollIterations; i++ {
			if t := l.popSlot(); t != nil {
				return t
			}
		}
	}

	l.mu.Lock()
	if l.slot != nil {
		t := l.slot
		l.slot = nil
		l.mu.Unlock()
		return t
	}
	l.idle = true
	l.mu.Unlock()
	l.notifyParentIdle()
	return nil
}

func (l *Leaf) notifyParentIdle() {
	if l.parent != nil {
		l.parent.MarkChildIdle(l.childIdx)
	}
}

func (l *Leaf) notifyParentUnidle() {
	if l.parent != nil {
		l.parent.MarkChildUnidle(l.childIdx)
	}
}

func (l *Leaf) popSlot() *task.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot == nil {
		return nil
	}
	t := l.slot
	l.slot = nil
	return t
}

// AddTaskBatch implements spec §4.2's leaf addTaskBatch: place the
// tail task in the polling slot if empty, enqueue the remainder.
func (l *Leaf) AddTaskBatch(batch []*task.Task) {
	if len(batch) == 0 {
		return
	}

	tail := batch[len(batch)-1]
	rest := batch[:len(batch)-1]

	l.mu.Lock()
	if l.slot == nil {
		l.slot = tail
		wasIdle := l.idle
		l.mu.Unlock()
		if wasIdle {
			l.wake()
		}
	} else {
		l.mu.Unlock()
		rest = append(rest, tail)
	}

	for _, t := range rest {
		l.queue.Push(t)
	}
}

// Offer is the generic "hand one task down" entry point Node uses when
// distributing a batch among idle children; for a leaf this is
// AddTaskBatch of length one.
func (l *Leaf) Offer(t *task.Task) {
	l.AddTaskBatch([]*task.Task{t})
}

// Disable implements spec §4.2's disable: unidle if needed, drain the
// queue and slot into a batch, push to parent.
func (l *Leaf) Disable() {
	l.mu.Lock()
	l.idle = false
	var batch []*task.Task
	if l.slot != nil {
		batch = append(batch, l.slot)
		l.slot = nil
	}
	l.mu.Unlock()

	batch = append(batch, l.queue.DrainAll()...)
	if len(batch) > 0 && l.parent != nil {
		l.parent.AddTaskBatch(batch)
	}
}

// UpdateQueueThreshold implements spec §4.2's updateQueueThreshold:
// shrinking sets rebalance.
func (l *Leaf) UpdateQueueThreshold(t int) {
	if int64(t) < l.threshold.Load() {
		l.rebalance.Store(true)
	}
	l.threshold.Store(int64(t))
}

// Idle reports whether the leaf is currently parked idle.
func (l *Leaf) Idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idle
}

// CPU returns the CPU this leaf schedules for.
func (l *Leaf) CPU() *cpumgr.CPU { return l.cpu }

// QueueLen returns the current local queue size (diagnostics).
func (l *Leaf) QueueLen() int { return l.queue.Len() }

// removeFromQueue deletes t from the local queue if it is still
// sitting there (not yet claimed into the polling slot or popped by a
// worker).
func (l *Leaf) removeFromQueue(t *task.Task) bool {
	return l.queue.Remove(t)
}

func (l *Leaf) wake() {
	if l.resume != nil {
		l.resume(l.cpu)
	}
}
