package external

import (
	"context"

	"github.com/nanos-rt/nanos/task"
)

// AccessVisitor is invoked once per DataAccess a task declares, mirroring
// the dependency registrar's processAllDataAccesses callback shape.
type AccessVisitor func(idx int, access *task.DataAccess)

// DependencyRegistrar is the dependency-registration subsystem the
// runtime consumes but does not own (spec §6). The runtime calls into
// it to walk a task's accesses and to unregister them once a task's
// work is done; the registrar owns the region index and successor
// wake-up logic.
type DependencyRegistrar interface {
	// ProcessAllDataAccesses walks t's accesses in registration order.
	ProcessAllDataAccesses(t *task.Task, visit AccessVisitor)

	// UnregisterTaskDataAccesses releases all of t's accesses against
	// mp, running finalise (if non-nil) inside the registrar's own
	// finalisation callback, strictly before any successor satisfiability
	// is propagated — the ordering finalize.Coordinator depends on.
	UnregisterTaskDataAccesses(ctx context.Context, t *task.Task, depData interface{}, mp task.MemoryPlace, firstRegistration bool, finalise func()) error

	// UnregisterLocallyPropagatedTaskDataAccesses handles the namespace
	// fast-path for offloaded tasks when auto-wait is disabled.
	UnregisterLocallyPropagatedTaskDataAccesses(ctx context.Context, t *task.Task) error

	// ReleaseTaskwaitFragment releases a single taskwait fragment. first
	// indicates this is the first (possibly only) fragment release for
	// the access being waited on.
	ReleaseTaskwaitFragment(ctx context.Context, t *task.Task, access *task.DataAccess, first bool) error

	// HandleExitTaskwait runs the registrar-side bookkeeping for a task
	// resuming after a taskwait clause is satisfied.
	HandleExitTaskwait(ctx context.Context, t *task.Task) error
}

// NoopRegistrar is a DependencyRegistrar that performs no bookkeeping;
// useful for unit-testing the workflow/finalize packages in isolation
// from a real dependency subsystem, mirroring the teacher's mock.Worker
// no-op pattern in storage/sealer/mock.
type NoopRegistrar struct {
	Unregistered []task.ID
}

func (n *NoopRegistrar) ProcessAllDataAccesses(t *task.Task, visit AccessVisitor) {
	for i, a := range t.Accesses {
		visit(i, a)
	}
}

func (n *NoopRegistrar) UnregisterTaskDataAccesses(_ context.Context, t *task.Task, _ interface{}, _ task.MemoryPlace, _ bool, finalise func()) error {
	if finalise != nil {
		finalise()
	}
	n.Unregistered = append(n.Unregistered, t.ID)
	return nil
}

func (n *NoopRegistrar) UnregisterLocallyPropagatedTaskDataAccesses(context.Context, *task.Task) error {
	return nil
}

func (n *NoopRegistrar) ReleaseTaskwaitFragment(context.Context, *task.Task, *task.DataAccess, bool) error {
	return nil
}

func (n *NoopRegistrar) HandleExitTaskwait(context.Context, *task.Task) error { return nil }

var _ DependencyRegistrar = (*NoopRegistrar)(nil)
