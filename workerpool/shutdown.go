package workerpool

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/cpumgr"
)

// Shutdown runs the collective shutdown protocol described in spec
// §4.1. The initiating thread first designates one shutdown
// controller per currently-accepting CPU: it obtains an idle worker
// (preferring one bound to that CPU), promotes the first one it designates to main shutdown
// controller, signals shutdown, and resumes it. A CPU already
// disabled before Shutdown was called is skipped here — its worker is
// still alive and parked, just no longer accepting new tasks — and is
// left as a straggler for a controller's draining loop (below) to
// sweep up. Controllers are joined in LIFO order relative to the
// order they were designated, so the initiating goroutine joins the
// main controller last.
func (p *Pool) Shutdown() error {
	p.mustExit.Store(true)
	p.shutdownThreads.Store(int64(p.totalThreads))

	var controllers []*Worker
	var mainController *Worker

	for _, c := range p.registry.All() {
		if !p.registry.Accepting(c) {
			continue
		}

		w := p.spinObtainIdleWorker(c)
		if w == nil {
			continue
		}

		first := mainController == nil
		w.isController.Store(true)
		if first {
			w.isMainController.Store(true)
			mainController = w
		}
		controllers = append(controllers, w)

		w.shutdownRequested.Store(true)
		p.resume(w, c)
	}

	// Join in reverse designation order (LIFO): the main controller,
	// designated first, is joined last. Any disabled-CPU straggler is
	// joined transitively: whichever controller pulls it in
	// runControllerLoop waits on its done channel before returning
	// itself.
	for i := len(controllers) - 1; i >= 0; i-- {
		<-controllers[i].done
	}

	if p.shutdownThreads.Load() != 0 {
		return xerrors.Errorf("shutdown: %w (remaining=%d)", errShutdownIncomplete, p.shutdownThreads.Load())
	}
	return nil
}

// spinObtainIdleWorker busy-waits (yielding between attempts) until an
// idle worker is available, preferring one bound to c and otherwise
// taking any idle worker (getIdleThread's fallback) — matching the
// teacher's short-retry style in sched.go's windowed polling rather
// than blocking indefinitely on a condition variable. It returns nil
// once shutdownThreads reaches zero, i.e. when controllers already
// running their draining loops have consumed every remaining worker.
func (p *Pool) spinObtainIdleWorker(c *cpumgr.CPU) *Worker {
	for p.shutdownThreads.Load() > 0 {
		if w := p.getIdleThread(c, true); w != nil {
			return w
		}
		spinYield()
	}
	return nil
}

// runControllerLoop is executed by any worker promoted to controller,
// main or not, once it wakes with shutdownRequested set. Spec §4.1 has
// every controller drain the idle pool itself, mirroring
// ThreadManager::threadShutdownSequence in the original runtime: pull
// an idle worker via the same CPU-preferring, any-CPU-falls-back
// lookup used everywhere else in this package (getIdleThread), signal
// it to shut down, migrate and resume it onto this controller's own
// CPU, and join its OS thread. A non-main controller stops as soon as
// no idle worker is immediately available, leaving the main
// controller to mop up anything left over — this is how a straggler
// left behind by a CPU disabled before Shutdown was called (its
// worker stays alive and parked, just no longer local to any
// designated controller) gets swept up by whichever controller
// happens to find it once its own CPU runs dry. The main controller
// instead keeps retrying until it is itself the last worker standing.
func (w *Worker) runControllerLoop() {
	p := w.pool
	cpu := w.CPU()
	for {
		straggler := p.getIdleThread(cpu, true)
		if straggler == nil {
			if !w.isMainController.Load() {
				return
			}
			// The main controller itself hasn't decremented yet (it
			// decrements in run()'s deferred cleanup after this
			// function returns), so "last one standing" is 1, not 0.
			if p.shutdownThreads.Load() <= 1 {
				return
			}
			spinYield()
			continue
		}

		straggler.shutdownRequested.Store(true)
		p.resume(straggler, cpu)
		<-straggler.done
	}
}

func spinYield() {
	time.Sleep(time.Microsecond * 100)
}

// ActiveThreads reports how many workers have not yet exited the
// shutdown collective; used by diagnostics and tests to assert the
// termination invariant shutdownThreads == 0 once Shutdown returns.
func (p *Pool) ActiveThreads() int64 {
	return p.shutdownThreads.Load()
}
