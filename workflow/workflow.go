package workflow

import (
	"context"
	"sort"

	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

// Dispatcher is the transfer-batching collaborator (spec §4.5):
// something that can issue one vectorized fetch for a group of
// same-source ClusterDataCopy steps. Implemented by *transfer.Dispatcher;
// declared here as an interface so workflow and transfer don't import
// each other.
type Dispatcher interface {
	Submit(ctx context.Context, nFragments int, steps []external.FetchStep, source task.NodeIndex) error
}

// Workflow is the per-task step DAG constructed once by BuildWorkflow
// when executeTask first runs for a task (spec §4.3).
type Workflow struct {
	Task  *task.Task
	roots []*Step
	all   []*Step

	Execution    *Step
	Release      *Step
	Notification *Step
}

// Deps bundles the external collaborators BuildWorkflow and Start need.
type Deps struct {
	Registrar  external.DependencyRegistrar
	Directory  external.MemoryDirectory
	Cluster    external.ClusterManager
	Dispatcher Dispatcher
}

// BuildWorkflow constructs the DAG described in spec §4.3's five
// numbered steps: one copy step per DataAccess, an execution step, a
// release step, and a notification step, wired copy→execution→release→
// notification, with the execution step also made a root if it has no
// predecessors (a zero-access task).
func BuildWorkflow(t *task.Task, deps Deps, onNotify func()) *Workflow {
	w := &Workflow{Task: t}

	clusterTarget := t.Compute.IsCluster()

	execKind := KindHostExecution
	if clusterTarget {
		execKind = KindClusterExecution
	}
	w.Execution = NewStep(execKind, func(*Step) { runTaskBody(t) })

	for _, access := range t.Accesses {
		copyStep := w.buildCopyStep(access, deps)
		w.all = append(w.all, copyStep)
		copyStep.Then(w.Execution)
		if copyStep.Ready() {
			w.roots = append(w.roots, copyStep)
		}
	}
	w.all = append(w.all, w.Execution)

	releaseKind := KindDataRelease
	w.Release = NewStep(releaseKind, func(*Step) { w.runRelease(deps) })
	w.all = append(w.all, w.Release)
	w.Execution.Then(w.Release)

	notifyKind := KindHostNotification
	if clusterTarget {
		notifyKind = KindClusterNotification
	}
	w.Notification = NewStep(notifyKind, func(*Step) {
		if onNotify != nil {
			onNotify()
		}
	})
	w.all = append(w.all, w.Notification)
	w.Release.Then(w.Notification)

	if w.Execution.Ready() {
		w.roots = append(w.roots, w.Execution)
	}

	return w
}

// buildCopyStep applies the copy-step construction rules (spec §4.3)
// to one DataAccess.
func (w *Workflow) buildCopyStep(access *task.DataAccess, deps Deps) *Step {
	decision := classifyAccess(access, w.Task.Memory, deps.Cluster)

	if decision.kind == KindNull {
		return NewStep(KindNull, func(*Step) {})
	}

	s := NewStep(KindClusterDataCopy, func(*Step) {})
	s.SourceNode = int(decision.sourceNode)
	s.RequiresFetch = decision.requiresFetch
	s.FragmentCount = 1
	return s
}

func runTaskBody(t *task.Task) {
	if t.Body == nil {
		return
	}
	if err := t.Body(); err != nil {
		log.Warnf("workflow: task %s body returned error: %v", t.ID, err)
	}
}

// runRelease propagates each access's output location (spec §4.3
// "release step propagates per-region location updates"). The cluster
// task-finished callout happens later, in finalize.Coordinator's
// UnregisterTaskDataAccesses finalise callback — that is the hook
// external.DependencyRegistrar documents as running "strictly before
// any successor satisfiability is propagated", which is exactly the
// ordering spec §4.4 requires, so this step does not duplicate it.
func (w *Workflow) runRelease(deps Deps) {
	for _, access := range w.Task.Accesses {
		if access.Output != nil {
			access.SetSource(*access.Output)
		}
	}
}

// Start fires every root step (spec §3 "they are started when the
// workflow starts"). Root ClusterDataCopy steps requiring a fetch are
// grouped by source node into one Submit call each (spec §4.3
// "Transfer batching"); every other root starts immediately.
func (w *Workflow) Start(ctx context.Context, deps Deps) error {
	groups := make(map[task.NodeIndex][]*Step)
	var immediate []*Step

	for _, r := range w.roots {
		if r.Kind == KindClusterDataCopy && r.RequiresFetch {
			node := task.NodeIndex(r.SourceNode)
			groups[node] = append(groups[node], r)
			continue
		}
		immediate = append(immediate, r)
	}

	for _, r := range immediate {
		r.Start()
	}

	// Deterministic iteration order for tests/diagnostics.
	nodes := make([]task.NodeIndex, 0, len(groups))
	for n := range groups {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	for _, node := range nodes {
		steps := groups[node]
		fetchSteps := make([]external.FetchStep, len(steps))
		for i, s := range steps {
			fetchSteps[i] = s
		}
		if deps.Dispatcher == nil {
			return xerrors.New("workflow: cluster fetch required but no dispatcher configured")
		}
		if err := deps.Dispatcher.Submit(ctx, len(fetchSteps), fetchSteps, node); err != nil {
			return xerrors.Errorf("workflow: submitting fetch for source node %d: %w", node, err)
		}
	}

	return nil
}
