package scheduler

import (
	"sort"
	"sync"

	"github.com/nanos-rt/nanos/task"
)

// child is implemented by both Leaf and Node: anything that can be
// handed a single task directly (spec §4.2 node operations "hand down
// tasks").
type child interface {
	Offer(t *task.Task)
}

// Node is an interior entry of the scheduler tree: it aggregates child
// queues, balances load, tracks idle children, and forwards requests
// upward (spec §3 "Scheduler tree nodes", §4.2 "Node operations").
type Node struct {
	parent *Node

	mu       sync.Mutex
	children map[int]child
	idle     map[int]struct{}

	overflow *Queue
}

func NewNode(parent *Node, policy Policy, priority bool) *Node {
	return &Node{
		parent:   parent,
		children: make(map[int]child),
		idle:     make(map[int]struct{}),
		overflow: NewQueue(policy, priority),
	}
}

// SetChild registers a child at index idx.
func (n *Node) SetChild(idx int, c child) {
	n.mu.Lock()
	n.children[idx] = c
	n.mu.Unlock()
}

// MarkChildIdle records that child idx just went idle.
func (n *Node) MarkChildIdle(idx int) {
	n.mu.Lock()
	n.idle[idx] = struct{}{}
	n.mu.Unlock()
}

// MarkChildUnidle records that child idx is no longer idle.
func (n *Node) MarkChildUnidle(idx int) {
	n.mu.Lock()
	delete(n.idle, idx)
	n.mu.Unlock()
}

// idleChildrenLocked returns idle child indices in ascending bit order
// (spec §4.2 "Parent redistribution prefers idle children in
// bit-order"). Caller must hold n.mu.
func (n *Node) idleChildrenLocked() []int {
	out := make([]int, 0, len(n.idle))
	for idx := range n.idle {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// AddTaskBatch implements spec §4.2's node addTaskBatch: distribute as
// many tasks as possible directly to idle children (bit order), queue
// whatever is left over locally.
func (n *Node) AddTaskBatch(batch []*task.Task) {
	if len(batch) == 0 {
		return
	}

	n.mu.Lock()
	idleIdx := n.idleChildrenLocked()
	var distributed int
	for _, idx := range idleIdx {
		if distributed >= len(batch) {
			break
		}
		c := n.children[idx]
		delete(n.idle, idx)
		n.mu.Unlock()
		c.Offer(batch[distributed])
		distributed++
		n.mu.Lock()
	}
	rest := batch[distributed:]
	n.mu.Unlock()

	for _, t := range rest {
		n.overflow.Push(t)
	}
}

// GetTask implements spec §4.2's node getTask: drain the local
// overflow queue first; otherwise propagate to the parent.
func (n *Node) GetTask(requester child) *task.Task {
	if t := n.overflow.Pop(); t != nil {
		return t
	}
	if n.parent != nil {
		return n.parent.GetTask(n)
	}
	return nil
}

// Offer implements the child interface for an interior node acting as
// someone else's child (device-tree roots, nested hierarchies): the
// task is simply enqueued, to be drained on the next GetTask/AddTaskBatch
// cycle.
func (n *Node) Offer(t *task.Task) {
	n.overflow.Push(t)
}

// OverflowLen returns the current local overflow queue size
// (diagnostics).
func (n *Node) OverflowLen() int { return n.overflow.Len() }
