package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

// countingHooks never hands out a task, so every worker parks right
// after ThreadInitialization and stays parked until Shutdown.
type countingHooks struct {
	mu   sync.Mutex
	init int
}

func (h *countingHooks) ThreadInitialization(w *Worker) {
	h.mu.Lock()
	h.init++
	h.mu.Unlock()
}

func (h *countingHooks) GetReadyTask(w *Worker) interface{} { return nil }
func (h *countingHooks) Execute(w *Worker, t interface{})   {}

func TestInitializeSpawnsOneWorkerPerCPU(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(4), fakeMask{n: 4})
	require.NoError(t, err)

	h := &countingHooks{}
	p := Initialize(reg, h)
	require.Equal(t, 4, p.TotalThreads())
	require.Len(t, p.Workers(), 4)

	// Give workers a moment to finish ThreadInitialization and park.
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.init == 4
	}, time.Second, time.Millisecond)
}

func TestShutdownJoinsEveryWorker(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(3), fakeMask{n: 3})
	require.NoError(t, err)

	h := &countingHooks{}
	p := Initialize(reg, h)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.init == 3
	}, time.Second, time.Millisecond)

	err = p.Shutdown()
	require.NoError(t, err)
	require.Equal(t, int64(0), p.ActiveThreads())
}

// TestShutdownSweepsUpDisabledCPUStragglers exercises the per-controller
// draining loop (spec §4.1): a CPU disabled before Shutdown is called
// keeps its worker alive and parked, never designated a controller of
// its own, so it must be picked up by whichever controller's
// pull/signal/resume/join loop finds it idle.
func TestShutdownSweepsUpDisabledCPUStragglers(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(4), fakeMask{n: 4})
	require.NoError(t, err)

	h := &countingHooks{}
	p := Initialize(reg, h)

	cpus := reg.All()
	require.Eventually(t, func() bool {
		for _, c := range cpus {
			if !reg.IsIdle(c) {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	reg.Disable(cpus[1])
	reg.Disable(cpus[3])
	require.False(t, reg.Accepting(cpus[1]))
	require.False(t, reg.Accepting(cpus[3]))

	err = p.Shutdown()
	require.NoError(t, err)
	require.Equal(t, int64(0), p.ActiveThreads())
}

func TestResumeIdleWakesAParkedWorker(t *testing.T) {
	reg, err := cpumgr.Preinitialize(descs(2), fakeMask{n: 2})
	require.NoError(t, err)

	released := make(chan struct{})
	var once sync.Once
	h := &signalingHooks{release: released, once: &once}
	p := Initialize(reg, h)

	require.Eventually(t, func() bool {
		return reg.IsIdle(reg.All()[0]) && reg.IsIdle(reg.All()[1])
	}, time.Second, time.Millisecond)

	ok := p.ResumeIdle(reg.All()[0])
	require.True(t, ok)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("resumed worker never observed a ready task")
	}
}

// signalingHooks hands out exactly one non-nil task to the first
// worker that asks, then goes quiet, so the test can observe a single
// resume-to-execute transition.
type signalingHooks struct {
	release chan struct{}
	once    *sync.Once
}

func (h *signalingHooks) ThreadInitialization(w *Worker) {}

func (h *signalingHooks) GetReadyTask(w *Worker) interface{} {
	var got interface{}
	h.once.Do(func() { got = struct{}{} })
	return got
}

func (h *signalingHooks) Execute(w *Worker, t interface{}) {
	select {
	case h.release <- struct{}{}:
	default:
	}
}
