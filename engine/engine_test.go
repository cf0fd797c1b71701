package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

type fakeMask struct{ ids []int }

func (f fakeMask) SystemCPUIDs() ([]int, error) { return f.ids, nil }

func descs(n int) []external.CPUDescriptor {
	out := make([]external.CPUDescriptor, n)
	for i := range out {
		out[i] = external.CPUDescriptor{
			SystemCPUID: i,
			Compute:     task.ComputePlace{Kind: task.DeviceHost},
			Memory:      task.HostMemoryPlace(),
		}
	}
	return out
}

func TestEngineRunsZeroAccessTaskEndToEnd(t *testing.T) {
	topo := &external.StaticTopology{CPUs: descs(2)}
	registrar := &external.NoopRegistrar{}

	e, err := Start(config.Default(), topo, fakeMask{ids: []int{0, 1}}, registrar, &external.StaticDirectory{}, external.LocalOnlyCluster{}, nil)
	require.NoError(t, err)
	defer e.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)

	tk := &task.Task{
		ID:      task.NewID(),
		Compute: task.ComputePlace{Kind: task.DeviceHost},
		Memory:  task.HostMemoryPlace(),
		Body: func() error {
			wg.Done()
			return nil
		},
	}

	e.Submit(tk)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task body never ran")
	}

	require.Eventually(t, func() bool {
		return tk.Flags().Disposed
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, registrar.Unregistered, 1)
}

func TestEngineWaitClauseResumesParentOnChildFinish(t *testing.T) {
	topo := &external.StaticTopology{CPUs: descs(2)}
	registrar := &external.NoopRegistrar{}

	e, err := Start(config.Default(), topo, fakeMask{ids: []int{0, 1}}, registrar, &external.StaticDirectory{}, external.LocalOnlyCluster{}, nil)
	require.NoError(t, err)
	defer e.Shutdown()

	var bodyRan sync.WaitGroup
	bodyRan.Add(1)

	parent := &task.Task{
		ID:      task.NewID(),
		Compute: task.ComputePlace{Kind: task.DeviceHost},
		Memory:  task.HostMemoryPlace(),
		Body: func() error {
			bodyRan.Done()
			return nil
		},
	}
	parent.AddChild()

	child := &task.Task{
		ID:      task.NewID(),
		Compute: task.ComputePlace{Kind: task.DeviceHost},
		Memory:  task.HostMemoryPlace(),
		Parent:  parent,
		Body:    func() error { return nil },
	}

	e.Submit(parent)

	bodyDone := make(chan struct{})
	go func() {
		bodyRan.Wait()
		close(bodyDone)
	}()
	select {
	case <-bodyDone:
	case <-time.After(5 * time.Second):
		t.Fatal("parent body never ran")
	}

	require.Never(t, func() bool {
		return parent.Flags().HasFinished
	}, 200*time.Millisecond, 20*time.Millisecond, "a wait clause must delay markAsFinished until children are done")

	e.Submit(child)

	require.Eventually(t, func() bool {
		return parent.Flags().Disposed
	}, 5*time.Second, 10*time.Millisecond, "disposing the child should resume and finalise the parent")
}
