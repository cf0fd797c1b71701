package finalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

func newTestTask() *task.Task {
	return &task.Task{ID: task.NewID(), Compute: task.ComputePlace{Kind: task.DeviceHost}, Memory: task.HostMemoryPlace()}
}

func TestFinalizeDisposesHostTaskExactlyOnce(t *testing.T) {
	registrar := &external.NoopRegistrar{}
	c := NewCoordinator(registrar, external.LocalOnlyCluster{}, nil)
	tk := newTestTask()

	require.NoError(t, c.Finalize(context.Background(), tk, nil))
	require.True(t, tk.Flags().HasFinished)
	require.True(t, tk.Flags().Released)
	require.True(t, tk.Flags().Disposed)
	require.Len(t, registrar.Unregistered, 1)

	// A second Finalize call (defensive — shouldn't happen in practice,
	// but markAsReleased must still refuse to dispose twice).
	require.NoError(t, c.Finalize(context.Background(), tk, nil))
	require.Len(t, registrar.Unregistered, 2) // registrar call itself isn't guarded, only disposeTask
}

func TestFinalizeEmitsTaskFinishedBeforeReturning(t *testing.T) {
	cluster := &external.FakeCluster{Node: 2}
	registrar := &external.NoopRegistrar{}
	c := NewCoordinator(registrar, cluster, nil)

	tk := newTestTask()
	tk.Compute = task.ComputePlace{Kind: task.DeviceCluster, Node: 2}

	require.NoError(t, c.Finalize(context.Background(), tk, nil))
	require.Equal(t, []task.ID{tk.ID}, cluster.Finished)
	require.True(t, tk.Flags().Disposed)
}

func TestFinalizeWithOutstandingChildrenDoesNotFinish(t *testing.T) {
	registrar := &external.NoopRegistrar{}
	c := NewCoordinator(registrar, external.LocalOnlyCluster{}, nil)

	tk := newTestTask()
	tk.AddChild()

	require.NoError(t, c.Finalize(context.Background(), tk, nil))
	require.False(t, tk.Flags().HasFinished)
	require.False(t, tk.Flags().Disposed)
	require.Empty(t, registrar.Unregistered)

	tk.ChildDone()
	require.NoError(t, c.Finalize(context.Background(), tk, nil))
	require.True(t, tk.Flags().Disposed)
}

func TestWakeFromWaitRunsExitTaskwaitThenFinalizes(t *testing.T) {
	registrar := &external.NoopRegistrar{}
	c := NewCoordinator(registrar, external.LocalOnlyCluster{}, nil)
	tk := newTestTask()

	require.NoError(t, c.WakeFromWait(context.Background(), tk, nil))
	require.True(t, tk.CameBackFromWait())
	require.True(t, tk.Flags().Disposed)
}

func TestDisposeTaskDecrementsParentChildCount(t *testing.T) {
	registrar := &external.NoopRegistrar{}
	c := NewCoordinator(registrar, external.LocalOnlyCluster{}, nil)

	parent := newTestTask()
	parent.AddChild()
	child := newTestTask()
	child.Parent = parent

	require.True(t, parent.HasOutstandingChildren())
	require.NoError(t, c.Finalize(context.Background(), child, nil))
	require.False(t, parent.HasOutstandingChildren())
}
