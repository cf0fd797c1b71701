package workerpool

import (
	"sync/atomic"

	"github.com/nanos-rt/nanos/cpumgr"
)

// Worker is one OS-thread-bound worker. It owns an OS thread (via
// runtime.LockOSThread, acquired in run()), a suspension primitive
// (resume channel), and migration hint (cpuToBeResumedOn) — spec §4.1,
// §9 "Per-thread current-worker access".
type Worker struct {
	instrumentID int

	pool *Pool

	cpu              atomic.Pointer[cpumgr.CPU]
	cpuToBeResumedOn atomic.Pointer[cpumgr.CPU]

	// resume is the suspension primitive: a worker blocks receiving from
	// it when parked, and is woken by a send from whoever resumes it.
	resume chan struct{}

	shutdownRequested atomic.Bool
	isController      atomic.Bool
	isMainController  atomic.Bool

	// done is closed when the worker's goroutine returns, the join
	// target for Shutdown.
	done chan struct{}
}

// CPU returns the worker's current CPU.
func (w *Worker) CPU() *cpumgr.CPU { return w.cpu.Load() }

// InstrumentID returns the worker's stable instrumentation id.
func (w *Worker) InstrumentID() int { return w.instrumentID }

func newWorker(pool *Pool, id int, cpu *cpumgr.CPU) *Worker {
	w := &Worker{
		instrumentID: id,
		pool:         pool,
		resume:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	w.cpu.Store(cpu)
	w.cpuToBeResumedOn.Store(cpu)
	return w
}
