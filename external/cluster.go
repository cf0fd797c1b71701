package external

import (
	"context"

	"github.com/nanos-rt/nanos/task"
)

// FetchStep is the minimal surface the transfer dispatcher needs from a
// ClusterDataCopy step to hand it to the cluster manager: something it
// can mark complete.
type FetchStep interface {
	// Complete is invoked by the cluster manager's completion poller
	// once the fragment's bytes have landed; err is non-nil on a
	// transient transfer failure (spec §7 kind 6 — retried by the
	// transport, not surfaced as a workflow error here).
	Complete(err error)
}

// ClusterManager is the cluster message transport and its
// completion-polling service (spec §6, out of scope for the core).
type ClusterManager interface {
	InClusterMode() bool
	CurrentMemoryNode() task.NodeIndex

	// FetchVector issues a single vectorized fetch for nFragments steps
	// from source, completing each step independently as its bytes
	// arrive.
	FetchVector(ctx context.Context, nFragments int, steps []FetchStep, source task.NodeIndex) error

	// TaskFinished emits the cluster task-finished notification for an
	// offloaded task. Must be called, and must complete, before any
	// satisfiability message triggered by the same task's completion is
	// sent (spec §4.4, §8 invariant).
	TaskFinished(ctx context.Context, t *task.Task) error
}

// LocalOnlyCluster is a ClusterManager that reports single-node
// operation; FetchVector and TaskFinished are unreachable in that mode
// and panic if called, matching the assertion-driven teacher style
// ("forbidden" combinations abort rather than silently no-op).
type LocalOnlyCluster struct{}

func (LocalOnlyCluster) InClusterMode() bool                { return false }
func (LocalOnlyCluster) CurrentMemoryNode() task.NodeIndex   { return 0 }
func (LocalOnlyCluster) FetchVector(context.Context, int, []FetchStep, task.NodeIndex) error {
	panic("FetchVector called while not in cluster mode")
}
func (LocalOnlyCluster) TaskFinished(context.Context, *task.Task) error {
	panic("TaskFinished called while not in cluster mode")
}

var _ ClusterManager = LocalOnlyCluster{}

// FakeCluster is an in-memory ClusterManager for tests: FetchVector
// completes every step synchronously and records calls for assertions.
type FakeCluster struct {
	Node        task.NodeIndex
	FetchCalls  []FetchCall
	Finished    []task.ID
	FetchErr    error
}

type FetchCall struct {
	NFragments int
	Source     task.NodeIndex
}

func (f *FakeCluster) InClusterMode() bool              { return true }
func (f *FakeCluster) CurrentMemoryNode() task.NodeIndex { return f.Node }

func (f *FakeCluster) FetchVector(_ context.Context, n int, steps []FetchStep, source task.NodeIndex) error {
	f.FetchCalls = append(f.FetchCalls, FetchCall{NFragments: n, Source: source})
	for _, s := range steps {
		s.Complete(f.FetchErr)
	}
	return f.FetchErr
}

func (f *FakeCluster) TaskFinished(_ context.Context, t *task.Task) error {
	f.Finished = append(f.Finished, t.ID)
	return nil
}

var _ ClusterManager = (*FakeCluster)(nil)
