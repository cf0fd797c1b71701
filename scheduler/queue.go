package scheduler

import (
	"sync"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/task"
)

// Policy is the queue discipline applied at every level of the tree
// (spec §4.2 "scheduling-policy").
type Policy int

const (
	PolicyFIFO Policy = iota
	PolicyLIFO
)

func policyFromConfig(p config.SchedPolicy) Policy {
	if p == config.PolicyLIFO {
		return PolicyLIFO
	}
	return PolicyFIFO
}

type queueItem struct {
	t        *task.Task
	priority int
	seq      uint64
}

// Queue is the per-leaf/per-node task queue: FIFO or LIFO, optionally
// priority-augmented. Priority is a bucket layered over the base
// policy — within equal priority, arrival order follows the configured
// policy (spec §4.2 "priority-augmented").
type Queue struct {
	mu       sync.Mutex
	items    []queueItem
	policy   Policy
	priority bool
	nextSeq  uint64
}

func NewQueue(policy Policy, priority bool) *Queue {
	return &Queue{policy: policy, priority: priority}
}

// Push enqueues t at priority 0. Tasks carry no priority field of
// their own in the data model (spec §3), so every task is priority 0
// unless the caller supplies one explicitly via PushPriority.
func (q *Queue) Push(t *task.Task) {
	q.PushPriority(t, 0)
}

func (q *Queue) PushPriority(t *task.Task, priority int) {
	q.mu.Lock()
	q.items = append(q.items, queueItem{t: t, priority: priority, seq: q.nextSeq})
	q.nextSeq++
	q.mu.Unlock()
}

// Pop removes and returns the next task per policy, or nil if empty.
func (q *Queue) Pop() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}

	idx := q.selectIndexLocked()
	it := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return it.t
}

// selectIndexLocked picks the slice index Pop should remove, assuming
// mu is held.
func (q *Queue) selectIndexLocked() int {
	if !q.priority {
		if q.policy == PolicyLIFO {
			return len(q.items) - 1
		}
		return 0
	}

	best := 0
	for i := 1; i < len(q.items); i++ {
		if q.items[i].priority > q.items[best].priority {
			best = i
			continue
		}
		if q.items[i].priority < q.items[best].priority {
			continue
		}
		// Equal priority: break ties per policy. FIFO prefers the lower
		// seq (earlier arrival); LIFO prefers the higher seq.
		if q.policy == PolicyLIFO {
			if q.items[i].seq > q.items[best].seq {
				best = i
			}
		} else {
			if q.items[i].seq < q.items[best].seq {
				best = i
			}
		}
	}
	return best
}

// Len returns the current queue size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SplitTail removes and returns up to n tasks from the overflow end —
// the tail opposite the dequeue end, so a subsequent Pop is unaffected
// by the split (spec §4.2 "Overflow halves the queue ... taking from
// the tail opposite to dequeue end").
func (q *Queue) SplitTail(n int) []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}

	var taken []queueItem
	if q.policy == PolicyLIFO {
		// Dequeue end is the tail; take from the head instead.
		taken = append(taken, q.items[:n]...)
		q.items = q.items[n:]
	} else {
		// Dequeue end is the head; take from the tail.
		start := len(q.items) - n
		taken = append(taken, q.items[start:]...)
		q.items = q.items[:start]
	}

	out := make([]*task.Task, len(taken))
	for i, it := range taken {
		out[i] = it.t
	}
	return out
}

// Remove deletes t from the queue if present, reporting whether it
// was found.
func (q *Queue) Remove(t *task.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.t == t {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// DrainAll empties the queue and returns every task it held, in
// current queue order (head first).
func (q *Queue) DrainAll() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*task.Task, len(q.items))
	for i, it := range q.items {
		out[i] = it.t
	}
	q.items = nil
	return out
}
