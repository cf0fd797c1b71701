// Package scheduler implements the hierarchical task scheduler: a
// host tree of per-CPU leaves under interior nodes, and one (leafless)
// tree per device kind, routed by a Scheduler facade (spec §4.2).
package scheduler

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/tag"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/metrics"
	"github.com/nanos-rt/nanos/task"
)

var log = logging.Logger("sched")

// Scheduler is the facade named in spec §6 "Interfaces exposed":
// addReadyTask, taskGetsUnblocked, getReadyTask, getIdleComputePlace.
type Scheduler struct {
	cfg config.Scheduling

	host    *Tree
	devices map[task.DeviceKind]*Tree

	resume func(*cpumgr.CPU) bool
}

// New builds the host tree from registry (one leaf per enabled CPU)
// and an empty tree per non-host device kind. resume wakes a parked
// worker on a given CPU — injected from workerpool so this package
// never imports it directly (spec §9 "cyclic parent/child
// back-references ... are weak"; the same inversion keeps scheduler
// and workerpool from importing each other).
func New(cfg config.Scheduling, registry *cpumgr.Registry, resume func(*cpumgr.CPU) bool) *Scheduler {
	policy := policyFromConfig(cfg.SchedulingPolicy)

	s := &Scheduler{
		cfg:     cfg,
		host:    newTree(task.DeviceHost, policy, cfg.Priority),
		devices: make(map[task.DeviceKind]*Tree),
		resume:  resume,
	}

	for _, kind := range []task.DeviceKind{task.DeviceCUDA, task.DeviceOpenCL, task.DeviceCluster} {
		s.devices[kind] = newTree(kind, policy, cfg.Priority)
	}

	const defaultThreshold = 32
	for i, c := range registry.All() {
		leaf := NewLeaf(c, s.host.root, i, policy, cfg.Priority, defaultThreshold, resume)
		s.host.addLeaf(leaf, c.VirtualID)
		s.host.root.SetChild(i, leaf)
	}

	log.Infof("scheduler: host tree has %d leaves, policy=%v priority=%v", len(s.host.leafs), policy, cfg.Priority)
	return s
}

func (s *Scheduler) treeFor(kind task.DeviceKind) *Tree {
	if kind == task.DeviceHost {
		return s.host
	}
	return s.devices[kind]
}

// AddReadyTask routes t to its target compute place's tree (spec §6
// "addReadyTask(task, origin, hint) → compute place to resume, or
// nil"). origin is the CPU the caller is currently running on (nil if
// not called from a worker); hint optionally names a preferred CPU.
func (s *Scheduler) AddReadyTask(t *task.Task, origin *cpumgr.CPU, hint *cpumgr.CPU) *task.ComputePlace {
	ctx, _ := tag.New(context.Background(), tag.Upsert(metrics.TagDeviceKind, t.Compute.Kind.String()))
	timer := metrics.Timer(ctx, metrics.SchedAssignCycleDuration)
	defer timer()

	tree := s.treeFor(t.Compute.Kind)
	if tree == nil || len(tree.leafs) == 0 {
		// Device/cluster tree: no local leaves, so the task simply waits
		// at the root for an external collaborator to claim it.
		tree = s.treeFor(t.Compute.Kind)
		if tree != nil {
			tree.root.Offer(t)
		}
		return nil
	}

	leaf := tree.selectLeaf(hint)
	if leaf == nil {
		return nil
	}

	hasComputePlace := origin != nil && leaf.CPU() == origin
	leaf.AddTask(t, hasComputePlace, hint != nil)

	place := leaf.CPU().Compute
	return &place
}

// TaskGetsUnblocked implements spec §6's taskGetsUnblocked: when
// immediate-successor is enabled, the releasing CPU's own leaf is
// preferred for the newly-unblocked task (spec §4.2 "a task unblocked
// by another task's release is preferred by the releasing CPU").
func (s *Scheduler) TaskGetsUnblocked(t *task.Task, origin *cpumgr.CPU) *task.ComputePlace {
	if s.cfg.ImmediateSuccessor && origin != nil {
		tree := s.treeFor(t.Compute.Kind)
		if tree != nil {
			if leaf := tree.leafFor(origin); leaf != nil {
				leaf.AddTask(t, true, false)
				place := origin.Compute
				return &place
			}
		}
	}
	return s.AddReadyTask(t, origin, nil)
}

// GetReadyTask implements spec §6's getReadyTask(cpu, currentTask?) →
// task or nil, pulling from cpu's own leaf.
func (s *Scheduler) GetReadyTask(cpu *cpumgr.CPU, doWait bool) *task.Task {
	leaf := s.host.leafFor(cpu)
	if leaf == nil {
		return nil
	}
	return leaf.GetTask(doWait, int(s.cfg.PollingIterations))
}

// GetIdleComputePlace implements spec §6's getIdleComputePlace(force)
// → compute place or nil, scanning the host tree for an idle leaf.
// force is accepted for interface parity with the spec; this
// implementation has no distinct forced-search mode since the host
// tree is always fully scanned (it is small enough that a forced scan
// is not materially more expensive than the default one).
func (s *Scheduler) GetIdleComputePlace(force bool) *task.ComputePlace {
	leaf := s.host.idleLeaf()
	if leaf == nil {
		return nil
	}
	place := leaf.CPU().Compute
	return &place
}

// DisableCPU implements spec §4.2's leaf disable(), draining the
// CPU's leaf to its parent.
func (s *Scheduler) DisableCPU(cpu *cpumgr.CPU) {
	if leaf := s.host.leafFor(cpu); leaf != nil {
		leaf.Disable()
	}
}

// UpdateQueueThreshold applies a new per-leaf queue threshold to every
// host leaf (spec §4.2's updateQueueThreshold).
func (s *Scheduler) UpdateQueueThreshold(t int) {
	for _, l := range s.host.leafs {
		l.UpdateQueueThreshold(t)
	}
}

// RemoveRequest is a supplemented best-effort cancellation API
// (SPEC_FULL.md, grounded on sched.go's RemoveRequest/removeRequest).
// Unlike the teacher, this scheduler has no pending-request queue to
// prune from — submission is a direct push onto a leaf's queue or
// slot, not an async request object — so RemoveRequest can only report
// whether it found and removed t from a host leaf's plain queue before
// a worker claimed it; slot-resident or already-claimed tasks cannot
// be pulled back, matching spec §5 "in-flight tasks ... are not
// cancelled".
func (s *Scheduler) RemoveRequest(t *task.Task) bool {
	for _, l := range s.host.leafs {
		if l.removeFromQueue(t) {
			return true
		}
	}
	return false
}
