// Package finalize implements the notification step's callback: the
// markAsFinished/markAsReleased/disposeTask state machine, the ordering
// constraint binding the cluster task-finished message to the registrar's
// own finalisation callback, and the taskwait wake-up path (spec §4.4).
package finalize

import (
	"context"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

var log = logging.Logger("finalize")

// Coordinator runs the finalisation sequence for one task at a time —
// it holds no per-task state itself, only the collaborators the
// sequence calls into.
type Coordinator struct {
	Registrar       external.DependencyRegistrar
	Cluster         external.ClusterManager
	Instrumentation external.Instrumentation

	// OnChildSatisfied, if set, is called with a parent task whenever
	// disposing one of its children leaves it with no outstanding
	// children — the signal a `wait` clause's runtime glue needs to
	// resubmit the parent so it re-enters executeTask along the
	// "return to a finished task" path (spec §4.4).
	OnChildSatisfied func(parent *task.Task)
}

// NewCoordinator builds a Coordinator, defaulting Instrumentation to a
// no-op backend if none is given.
func NewCoordinator(registrar external.DependencyRegistrar, cluster external.ClusterManager, instr external.Instrumentation) *Coordinator {
	if instr == nil {
		instr = external.NoopInstrumentation{}
	}
	return &Coordinator{Registrar: registrar, Cluster: cluster, Instrumentation: instr}
}

// Finalize runs the sequence spec §4.4 describes for the notification
// step's callback. depData is the registrar's opaque per-task
// dependency-data handle, threaded through to UnregisterTaskDataAccesses
// unchanged. Disposing the task is implicit: Finalize invokes dispose
// and clears the task's workflow handle itself when the state machine
// reaches that point, so the caller need not re-check the return flags
// to decide whether to tear anything down.
func (c *Coordinator) Finalize(ctx context.Context, t *task.Task, depData interface{}) error {
	c.Instrumentation.Enter("finalize", "notify")
	defer c.Instrumentation.Exit("finalize", "notify")

	var result error

	if err := c.Registrar.UnregisterLocallyPropagatedTaskDataAccesses(ctx, t); err != nil {
		result = multierror.Append(result, err)
	}

	if !c.markAsFinished(t) {
		// A wait clause still has outstanding children: the workflow
		// stays alive (the §3 "dangling pointer" case) until a child
		// finishes and drives WakeFromWait.
		return result
	}

	var clusterErr error
	finalise := func() {
		if t.Compute.IsCluster() && c.Cluster != nil && c.Cluster.InClusterMode() {
			if err := c.Cluster.TaskFinished(ctx, t); err != nil {
				clusterErr = err
			}
		}
	}

	firstRegistration := !t.Flags().Released
	if err := c.Registrar.UnregisterTaskDataAccesses(ctx, t, depData, t.Memory, firstRegistration, finalise); err != nil {
		result = multierror.Append(result, err)
	}
	if clusterErr != nil {
		result = multierror.Append(result, clusterErr)
	}

	if c.markAsReleased(t) {
		c.disposeTask(t)
	}
	t.SetWorkflow(nil)

	return result
}

// WakeFromWait implements the "return to a finished task" path (spec
// §4.4): executeTask re-entering a task whose workflow pointer is set
// but whose execution step has already null-fired. completeDelayedRelease
// and markAsUnblocked have no registrar-side counterpart beyond
// HandleExitTaskwait in this runtime's collapsed model, so both are
// folded into that single call before the finalisation sequence repeats.
func (c *Coordinator) WakeFromWait(ctx context.Context, t *task.Task, depData interface{}) error {
	t.MarkCameBackFromWait(true)
	if err := c.Registrar.HandleExitTaskwait(ctx, t); err != nil {
		return err
	}
	return c.Finalize(ctx, t, depData)
}

// markAsFinished is the first state-machine transition (spec §4.4
// step 3): it returns false, without mutating HasFinished, while the
// task still has unfinished children (a `wait` clause).
func (c *Coordinator) markAsFinished(t *task.Task) bool {
	if t.HasOutstandingChildren() {
		return false
	}
	t.MarkFinished()
	return true
}

// markAsReleased is idempotent: a task reaches Released at most once
// (spec §8), so a second call — e.g. a duplicate wake-up — is a no-op
// that reports false rather than disposing twice.
func (c *Coordinator) markAsReleased(t *task.Task) bool {
	if t.Flags().Released {
		return false
	}
	t.MarkReleased()
	return true
}

// disposeTask is the terminal transition (spec §8: "disposeTask(T) is
// called exactly once"). If t has a parent, the parent's outstanding
// child count is decremented, which may unblock a `wait` clause waiting
// on this task specifically.
func (c *Coordinator) disposeTask(t *task.Task) {
	t.MarkDisposed()
	if t.Parent != nil {
		t.Parent.ChildDone()
		if !t.Parent.HasOutstandingChildren() && c.OnChildSatisfied != nil {
			c.OnChildSatisfied(t.Parent)
		}
	}
	log.Debugf("finalize: disposed task %s", t.ID)
}
