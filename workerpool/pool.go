// Package workerpool implements the runtime's OS-thread-bound worker
// pool: one worker per enabled CPU, idle-parking and resumption,
// migration between CPUs, and the collective shutdown protocol
// (spec §4.1).
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/cpumgr"
)

var log = logging.Logger("workerpool")

// Hooks is supplied by the runtime glue layer (which also owns the
// scheduler and workflow engine) so that workerpool itself has no
// dependency on either — mirrors the teacher's SchedWorker/Worker
// interfaces keeping the scheduler's surface onto a worker minimal.
type Hooks interface {
	// ThreadInitialization runs once, synchronously, right after a
	// worker binds to its CPU and before it parks awaiting first
	// activation.
	ThreadInitialization(w *Worker)

	// GetReadyTask fetches (and may block up to the scheduler's polling
	// budget for) a task to run on w's current CPU. A nil return means
	// "nothing ready; park".
	GetReadyTask(w *Worker) interface{}

	// Execute runs one task body to completion (modulo taskwaits).
	Execute(w *Worker, t interface{})
}

// Pool owns every worker thread, the idle deque, and the shutdown
// collective's state.
type Pool struct {
	registry *cpumgr.Registry
	hooks    Hooks

	mu      sync.RWMutex
	workers []*Worker

	idleLk  sync.Mutex
	idleLog []*Worker // LIFO stack: pushed on park, popped on resume

	mustExit        atomic.Bool
	shutdownThreads atomic.Int64
	totalThreads    int
}

// Initialize spawns exactly one worker per enabled CPU in registry.
// Each worker binds to its CPU, calls hooks.ThreadInitialization, then
// immediately suspends itself awaiting first activation (spec §4.1).
func Initialize(registry *cpumgr.Registry, hooks Hooks) *Pool {
	p := &Pool{registry: registry, hooks: hooks}

	cpus := registry.All()
	p.totalThreads = len(cpus)
	p.workers = make([]*Worker, len(cpus))

	var started sync.WaitGroup
	started.Add(len(cpus))

	for i, c := range cpus {
		w := newWorker(p, i, c)
		p.workers[i] = w
		go func(w *Worker, c *cpumgr.CPU) {
			started.Done()
			w.run()
		}(w, c)
	}

	started.Wait()
	log.Infof("workerpool: initialized %d workers", len(cpus))
	return p
}

// run is a worker's goroutine body.
func (w *Worker) run() {
	defer func() {
		w.pool.shutdownThreads.Add(-1)
		close(w.done)
	}()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c := w.cpu.Load()
	if err := cpumgr.BindCurrentThread(c.SystemCPUID); err != nil {
		log.Warnf("worker %d: bind to system cpu %d failed: %v", w.instrumentID, c.SystemCPUID, err)
	}
	w.pool.registry.ActivateCPU(c)

	w.pool.hooks.ThreadInitialization(w)

	w.park()

	for {
		if w.shutdownRequested.Load() {
			if w.isController.Load() {
				w.runControllerLoop()
			}
			return
		}

		w.maybeMigrate()

		t := w.pool.hooks.GetReadyTask(w)
		if t == nil {
			w.park()
			continue
		}

		w.pool.hooks.Execute(w, t)
	}
}

// maybeMigrate rebinds the worker's kernel affinity if cpuToBeResumedOn
// differs from its last-known CPU, then updates _cpu — spec §4.1's
// migration step, and §4.1's "cpuToBeResumedOn is written only by the
// resumer, read by the waker; after resumption the worker re-reads it".
func (w *Worker) maybeMigrate() {
	target := w.cpuToBeResumedOn.Load()
	cur := w.cpu.Load()
	if target == cur {
		return
	}
	if err := cpumgr.BindCurrentThread(target.SystemCPUID); err != nil {
		log.Warnf("worker %d: migrate to system cpu %d failed: %v", w.instrumentID, target.SystemCPUID, err)
	}
	w.cpu.Store(target)
}

// park marks the worker's CPU idle, pushes it onto the idle stack, and
// blocks until resumed.
func (w *Worker) park() {
	w.pool.registry.CPUBecomesIdle(w.cpu.Load())
	w.pool.pushIdle(w)
	<-w.resume
}

func (p *Pool) pushIdle(w *Worker) {
	p.idleLk.Lock()
	p.idleLog = append(p.idleLog, w)
	p.idleLk.Unlock()
}

// getIdleThread returns an idle worker, preferring one already bound to
// cpu, popping it from the idle deque when pop is true (spec §4.1).
func (p *Pool) getIdleThread(cpu *cpumgr.CPU, pop bool) *Worker {
	p.idleLk.Lock()
	defer p.idleLk.Unlock()

	// Prefer a worker already bound to cpu, scanning from the most
	// recently parked (LIFO) end.
	for i := len(p.idleLog) - 1; i >= 0; i-- {
		if p.idleLog[i].CPU() == cpu {
			w := p.idleLog[i]
			if pop {
				p.idleLog = append(p.idleLog[:i], p.idleLog[i+1:]...)
			}
			return w
		}
	}

	if len(p.idleLog) == 0 {
		return nil
	}
	w := p.idleLog[len(p.idleLog)-1]
	if pop {
		p.idleLog = p.idleLog[:len(p.idleLog)-1]
	}
	return w
}

// ResumeIdle pops one worker from the idle deque and signals it,
// rebinding the worker's target CPU first; if the worker's last CPU
// differs, the resumed worker migrates on its next loop iteration
// (spec §4.1).
func (p *Pool) ResumeIdle(cpu *cpumgr.CPU) bool {
	w := p.getIdleThread(cpu, true)
	if w == nil {
		return false
	}
	p.resume(w, cpu)
	return true
}

func (p *Pool) resume(w *Worker, cpu *cpumgr.CPU) {
	w.cpuToBeResumedOn.Store(cpu)
	p.registry.UnidleCPU(cpu)
	select {
	case w.resume <- struct{}{}:
	default:
		// already has a pending wake-up queued; the capacity-1 channel
		// coalesces redundant resumes, which is safe since the run loop
		// re-checks shutdownRequested and asks for a task after every
		// wake-up.
	}
}

// TotalThreads returns the fixed worker count established at Initialize.
func (p *Pool) TotalThreads() int { return p.totalThreads }

// Workers returns every worker, in spawn order.
func (p *Pool) Workers() []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// MustExit reports whether the pool has begun its shutdown collective.
func (p *Pool) MustExit() bool { return p.mustExit.Load() }

var errShutdownIncomplete = xerrors.New("shutdown: shutdownThreads did not reach zero after join")
