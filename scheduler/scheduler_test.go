package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

type fakeMask struct{ n int }

func (f fakeMask) SystemCPUIDs() ([]int, error) {
	ids := make([]int, f.n)
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

func descs(n int) []external.CPUDescriptor {
	out := make([]external.CPUDescriptor, n)
	for i := range out {
		out[i] = external.CPUDescriptor{SystemCPUID: i, Compute: task.ComputePlace{Kind: task.DeviceHost}}
	}
	return out
}

func newTestScheduler(t *testing.T, n int) (*Scheduler, *cpumgr.Registry) {
	reg, err := cpumgr.Preinitialize(descs(n), fakeMask{n: n})
	require.NoError(t, err)
	cfg := config.Default()
	return New(cfg, reg, func(*cpumgr.CPU) bool { return true }), reg
}

func newTask() *task.Task {
	return &task.Task{ID: task.NewID(), Compute: task.ComputePlace{Kind: task.DeviceHost}}
}

func TestFIFOPreservesArrivalOrder(t *testing.T) {
	q := NewQueue(PolicyFIFO, false)
	t1, t2, t3 := newTask(), newTask(), newTask()
	q.Push(t1)
	q.Push(t2)
	q.Push(t3)
	require.Equal(t, t1, q.Pop())
	require.Equal(t, t2, q.Pop())
	require.Equal(t, t3, q.Pop())
}

func TestLIFOReversesArrivalOrder(t *testing.T) {
	q := NewQueue(PolicyLIFO, false)
	t1, t2, t3 := newTask(), newTask(), newTask()
	q.Push(t1)
	q.Push(t2)
	q.Push(t3)
	require.Equal(t, t3, q.Pop())
	require.Equal(t, t2, q.Pop())
	require.Equal(t, t1, q.Pop())
}

func TestOverflowAtThresholdPlusOne(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(1), fakeMask{n: 1})
	require.NoError(t, err)
	cpu := reg.All()[0]
	parent := NewNode(nil, PolicyFIFO, false)
	leaf := NewLeaf(cpu, parent, 0, PolicyFIFO, false, 4, nil)
	parent.SetChild(0, leaf)

	for i := 0; i < 5; i++ {
		leaf.AddTask(newTask(), true, false)
	}

	require.LessOrEqual(t, leaf.QueueLen(), 4)
	require.Equal(t, 2, parent.OverflowLen())
}

func TestAddTaskBatchFillsSlotThenQueue(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(1), fakeMask{n: 1})
	require.NoError(t, err)
	cpu := reg.All()[0]
	leaf := NewLeaf(cpu, nil, 0, PolicyFIFO, false, 100, nil)

	b0, b1, b2 := newTask(), newTask(), newTask()
	leaf.AddTaskBatch([]*task.Task{b0, b1, b2})

	require.Equal(t, 2, leaf.QueueLen())
	got := leaf.GetTask(false, 0)
	require.Equal(t, b2, got)
}

func TestIdleRoundTripOnCPUBitset(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(1), fakeMask{n: 1})
	require.NoError(t, err)
	cpu := reg.All()[0]
	require.False(t, reg.IsIdle(cpu))
	reg.CPUBecomesIdle(cpu)
	require.True(t, reg.IsIdle(cpu))
	reg.UnidleCPU(cpu)
	require.False(t, reg.IsIdle(cpu))
}

func TestSingleCPURuntimeGetIdleComputePlace(t *testing.T) {
	s, reg := newTestScheduler(t, 1)
	cpu := reg.All()[0]

	// The leaf starts non-idle until GetTask marks it idle.
	got := s.GetReadyTask(cpu, false)
	require.Nil(t, got)
	place := s.GetIdleComputePlace(false)
	require.NotNil(t, place)
	require.Equal(t, task.DeviceHost, place.Kind)
}

func TestNewTaskHasNoAccesses(t *testing.T) {
	tk := newTask()
	require.Empty(t, tk.Accesses)
}

func TestRemoveRequestFindsQueuedTask(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	tk := newTask()
	leaf := s.host.leafs[0]
	leaf.queue.Push(tk)

	require.True(t, s.RemoveRequest(tk))
	require.False(t, s.RemoveRequest(tk))
}
