package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskFlagsLifecycle(t *testing.T) {
	tk := &Task{ID: NewID()}
	require.False(t, tk.Flags().HasFinished)

	tk.MarkFinished()
	require.True(t, tk.Flags().HasFinished)
	require.False(t, tk.Flags().Released)

	tk.MarkReleased()
	require.True(t, tk.Flags().Released)

	tk.MarkDisposed()
	require.True(t, tk.Flags().Disposed)
}

func TestTaskChildren(t *testing.T) {
	tk := &Task{ID: NewID()}
	require.False(t, tk.HasOutstandingChildren())

	tk.AddChild()
	require.True(t, tk.HasOutstandingChildren())

	tk.ChildDone()
	require.False(t, tk.HasOutstandingChildren())
}

func TestTaskWaitReturnFlag(t *testing.T) {
	tk := &Task{ID: NewID()}
	require.False(t, tk.CameBackFromWait())

	tk.SetWorkflow("wf-sentinel")
	require.Equal(t, "wf-sentinel", tk.Workflow())

	tk.MarkCameBackFromWait(true)
	require.True(t, tk.CameBackFromWait())

	tk.SetWorkflow(nil)
	require.Nil(t, tk.Workflow())
}

func TestMemoryPlaceDirectory(t *testing.T) {
	require.True(t, Directory.IsDirectory())
	require.False(t, HostMemoryPlace().IsDirectory())
	require.True(t, Directory.Equal(MemoryPlace{}.setDirectory()))
}

func (mp MemoryPlace) setDirectory() MemoryPlace {
	mp.directory = true
	return mp
}

func TestAccessTypeClassification(t *testing.T) {
	require.True(t, AccessReduction.IsSpecial())
	require.True(t, AccessCommutative.IsSpecial())
	require.True(t, AccessConcurrent.IsSpecial())
	require.False(t, AccessRead.IsSpecial())

	require.True(t, AccessWeakRead.IsWeak())
	require.False(t, AccessRead.IsWeak())
}

func TestDataAccessSourceSatisfiability(t *testing.T) {
	d := &DataAccess{Type: AccessReadWrite}
	require.False(t, d.HasSource())

	d.SetSource(HostMemoryPlace())
	require.True(t, d.HasSource())
	require.Equal(t, DeviceHost, d.Source().Kind)

	d.ClearSource()
	require.False(t, d.HasSource())
}
