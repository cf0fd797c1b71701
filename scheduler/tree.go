package scheduler

import (
	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/task"
)

// Tree is one of the scheduler's parallel trees (spec §4.2 "Two
// parallel trees: a host tree ... and one device tree per enabled
// device kind"). For the host tree, leaves has one entry per enabled
// CPU. Device trees carry no leaves in this runtime — CUDA/OpenCL
// workers and cluster nodes are external collaborators (spec §1
// "out of scope: hardware-topology discovery"); tasks routed there
// queue at the root node until an external collaborator drains them.
type Tree struct {
	kind  task.DeviceKind
	root  *Node
	leafs []*Leaf

	byVirtualID map[int]*Leaf
	assigner    *HintFirstAssigner
}

func newTree(kind task.DeviceKind, policy Policy, priority bool) *Tree {
	return &Tree{
		kind:        kind,
		root:        NewNode(nil, policy, priority),
		byVirtualID: make(map[int]*Leaf),
		assigner:    NewHintFirstAssigner(NewRandomWeightedAssigner()),
	}
}

func (t *Tree) addLeaf(l *Leaf, virtualID int) {
	t.leafs = append(t.leafs, l)
	t.byVirtualID[virtualID] = l
}

// leafFor returns the leaf bound to the given CPU, or nil if this tree
// has no leaves (a device tree) or the CPU is unknown.
func (t *Tree) leafFor(cpu *cpumgr.CPU) *Leaf {
	if cpu == nil {
		return nil
	}
	return t.byVirtualID[cpu.VirtualID]
}

// selectLeaf picks a leaf for an unhinted (or hinted) submission.
func (t *Tree) selectLeaf(hint *cpumgr.CPU) *Leaf {
	if len(t.leafs) == 0 {
		return nil
	}
	idx := t.assigner.SelectWithHint(t.leafs, hint)
	if idx < 0 {
		return nil
	}
	return t.leafs[idx]
}

// idleLeaf returns the first idle leaf found, or nil.
func (t *Tree) idleLeaf() *Leaf {
	for _, l := range t.leafs {
		if l.Idle() {
			return l
		}
	}
	return nil
}
