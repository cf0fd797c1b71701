package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

func hostDeps() Deps {
	return Deps{
		Registrar: &external.NoopRegistrar{},
		Directory: &external.StaticDirectory{},
		Cluster:   external.LocalOnlyCluster{},
	}
}

func TestZeroAccessTaskExecutionStepIsRootAndFires(t *testing.T) {
	executed := false
	tk := &task.Task{ID: task.NewID(), Compute: task.ComputePlace{Kind: task.DeviceHost}, Body: func() error {
		executed = true
		return nil
	}}

	notified := false
	w := BuildWorkflow(tk, hostDeps(), func() { notified = true })
	require.Len(t, w.roots, 1)
	require.Equal(t, w.Execution, w.roots[0])

	require.NoError(t, w.Start(context.Background(), hostDeps()))
	require.True(t, executed)
	require.True(t, notified)
}

func TestNullCopyHostTarget(t *testing.T) {
	tk := &task.Task{
		ID:      task.NewID(),
		Compute: task.ComputePlace{Kind: task.DeviceHost},
		Memory:  task.HostMemoryPlace(),
		Body:    func() error { return nil },
	}
	access := &task.DataAccess{Type: task.AccessRead}
	access.SetSource(task.HostMemoryPlace())
	tk.Accesses = []*task.DataAccess{access}

	notified := false
	w := BuildWorkflow(tk, hostDeps(), func() { notified = true })
	require.NoError(t, w.Start(context.Background(), hostDeps()))
	require.True(t, notified)
}

func TestReductionAccessAlwaysNull(t *testing.T) {
	tk := &task.Task{ID: task.NewID(), Compute: task.ComputePlace{Kind: task.DeviceHost}, Memory: task.HostMemoryPlace()}
	access := &task.DataAccess{Type: task.AccessReduction}
	access.SetSource(task.ClusterMemoryPlace(7))
	tk.Accesses = []*task.DataAccess{access}

	w := BuildWorkflow(tk, hostDeps(), func() {})
	require.Len(t, w.all, 4) // 1 copy + exec + release + notify
	require.Equal(t, KindNull, w.all[0].Kind)
}

func TestClusterFetchGroupsBySourceNode(t *testing.T) {
	cluster := &external.FakeCluster{Node: 0}
	dispatcher := &fakeDispatcher{}
	deps := Deps{
		Registrar: &external.NoopRegistrar{},
		Directory: &external.StaticDirectory{},
		Cluster:   cluster,
		Dispatcher: dispatcher,
	}

	tk := &task.Task{
		ID:      task.NewID(),
		Compute: task.ComputePlace{Kind: task.DeviceHost},
		Memory:  task.HostMemoryPlace(),
		Body:    func() error { return nil },
	}
	access := &task.DataAccess{Type: task.AccessReadWrite}
	access.SetSource(task.ClusterMemoryPlace(1))
	tk.Accesses = []*task.DataAccess{access}

	w := BuildWorkflow(tk, deps, func() {})
	require.NoError(t, w.Start(context.Background(), deps))
	require.Equal(t, []fakeDispatchCall{{n: 1, source: 1}}, dispatcher.calls)
}

type fakeDispatcher struct {
	calls []fakeDispatchCall
}

type fakeDispatchCall struct {
	n      int
	source task.NodeIndex
}

func (f *fakeDispatcher) Submit(_ context.Context, n int, steps []external.FetchStep, source task.NodeIndex) error {
	f.calls = append(f.calls, fakeDispatchCall{n: n, source: source})
	for _, s := range steps {
		s.Complete(nil)
	}
	return nil
}
