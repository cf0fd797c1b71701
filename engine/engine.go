// Package engine is the runtime glue layer: it wires cpumgr.Registry,
// scheduler.Scheduler, workerpool.Pool, workflow.BuildWorkflow, and
// finalize.Coordinator together into the top-level executeTask entry
// point spec §6 names.
package engine

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/finalize"
	"github.com/nanos-rt/nanos/scheduler"
	"github.com/nanos-rt/nanos/task"
	"github.com/nanos-rt/nanos/transfer"
	"github.com/nanos-rt/nanos/workerpool"
	"github.com/nanos-rt/nanos/workflow"
)

var log = logging.Logger("engine")

// Engine owns every subsystem instance for one running process.
type Engine struct {
	Registry   *cpumgr.Registry
	Scheduler  *scheduler.Scheduler
	Pool       *workerpool.Pool
	Dispatcher *transfer.Dispatcher
	Coordinator *finalize.Coordinator

	deps workflow.Deps
}

// Start builds and wires every subsystem: preinitializes the CPU
// registry from topology, builds the transfer dispatcher (with its
// background poller running), the finalisation coordinator, the
// scheduler, and finally the worker pool — whose Initialize call
// spawns and parks one worker per CPU (spec §4.1).
func Start(cfg config.Scheduling, topo external.HardwareTopology, mask cpumgr.AffinityMask, registrar external.DependencyRegistrar, directory external.MemoryDirectory, cluster external.ClusterManager, instr external.Instrumentation) (*Engine, error) {
	descs, err := topo.EnumerateCPUs(context.Background())
	if err != nil {
		return nil, xerrors.Errorf("engine: enumerating CPU topology: %w", err)
	}

	registry, err := cpumgr.Preinitialize(descs, mask)
	if err != nil {
		return nil, xerrors.Errorf("engine: preinitializing CPU registry: %w", err)
	}

	e := &Engine{Registry: registry}

	e.Dispatcher = transfer.NewDispatcher(cluster, 5*time.Millisecond)
	e.Dispatcher.StartPolling(context.Background())

	e.Coordinator = finalize.NewCoordinator(registrar, cluster, instr)
	e.Coordinator.OnChildSatisfied = e.wakeParent

	e.deps = workflow.Deps{
		Registrar:  registrar,
		Directory:  directory,
		Cluster:    cluster,
		Dispatcher: e.Dispatcher,
	}

	e.Scheduler = scheduler.New(cfg, registry, func(c *cpumgr.CPU) bool {
		return e.Pool.ResumeIdle(c)
	})

	e.Pool = workerpool.Initialize(registry, e)

	return e, nil
}

// Shutdown runs the worker pool's collective shutdown protocol, then
// drains the transfer dispatcher's poller.
func (e *Engine) Shutdown() error {
	err := e.Pool.Shutdown()
	e.Dispatcher.StopPolling(time.Second)
	return err
}

// Submit enqueues a freshly-created task for execution, mirroring spec
// §6's addReadyTask entry point for tasks with no originating CPU.
func (e *Engine) Submit(t *task.Task) {
	e.Scheduler.AddReadyTask(t, nil, nil)
}

// ThreadInitialization implements workerpool.Hooks; the engine has no
// per-worker setup beyond what workerpool itself already does.
func (e *Engine) ThreadInitialization(w *workerpool.Worker) {}

// GetReadyTask implements workerpool.Hooks, pulling from the scheduler.
func (e *Engine) GetReadyTask(w *workerpool.Worker) interface{} {
	t := e.Scheduler.GetReadyTask(w.CPU(), true)
	if t == nil {
		return nil
	}
	return t
}

// Execute implements workerpool.Hooks: it is executeTask (spec §4.3 /
// §4.4) — lazily building a task's workflow on first entry, or running
// the taskwait wake-up path on re-entry.
func (e *Engine) Execute(w *workerpool.Worker, v interface{}) {
	t, ok := v.(*task.Task)
	if !ok || t == nil {
		return
	}
	e.executeTask(w, t)
}

func (e *Engine) executeTask(w *workerpool.Worker, t *task.Task) {
	ctx := context.Background()

	if t.CameBackFromWait() {
		t.MarkCameBackFromWait(false)
		if err := e.Coordinator.WakeFromWait(ctx, t, nil); err != nil {
			log.Warnf("engine: wake-from-wait finalisation for task %s: %v", t.ID, err)
		}
		return
	}

	wf := workflow.BuildWorkflow(t, e.deps, func() {
		if err := e.Coordinator.Finalize(ctx, t, nil); err != nil {
			log.Warnf("engine: finalisation for task %s: %v", t.ID, err)
		}
	})
	t.SetWorkflow(wf)

	if err := wf.Start(ctx, e.deps); err != nil {
		log.Warnf("engine: starting workflow for task %s: %v", t.ID, err)
	}
}

// wakeParent is Coordinator.OnChildSatisfied: once a task's last
// outstanding child is disposed, the parent is marked as returning from
// a `wait` clause and resubmitted through TaskGetsUnblocked with no
// origin CPU (so it is routed like any ready task, not through the
// immediate-successor path) so it re-enters executeTask and completes its own finalisation sequence
// (spec §4.4 "return to a finished task").
func (e *Engine) wakeParent(parent *task.Task) {
	parent.MarkCameBackFromWait(true)
	e.Scheduler.TaskGetsUnblocked(parent, nil)
}

var _ workerpool.Hooks = (*Engine)(nil)
