// Package cpumgr is the CPU registry: it enumerates CPUs allowed by the
// process affinity mask, maps virtual to system CPU ids, and tracks
// per-CPU state (starting, active, idle, disabled) — spec §4.1.
package cpumgr

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

var log = logging.Logger("cpumgr")

// State is a CPU's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateActive
	StateIdle
	StateDisabled
)

// CPU is a process-lifetime object: one per system CPU admitted by the
// affinity mask at Preinitialize time. Never destroyed, only disabled.
type CPU struct {
	VirtualID   int
	SystemCPUID int
	Compute     task.ComputePlace
	Memory      task.MemoryPlace

	mu    sync.Mutex
	state State
}

func (c *CPU) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CPU) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Registry holds every CPU admitted at Preinitialize time. The total
// CPU count is fixed thereafter (spec §4.1).
type Registry struct {
	// mask is the set of system CPU ids the process affinity allows.
	mask map[int]struct{}

	mu   sync.RWMutex
	cpus []*CPU

	// idle is an atomic-under-spinlock bitset of idle CPUs, indexed by
	// VirtualID, mirroring the teacher's ActiveResources lock discipline
	// (sched_resources.go) applied here to idle tracking instead of
	// resource accounting.
	idleLk sync.Mutex
	idle   map[int]struct{}
}

// Preinitialize reads the process affinity mask via AffinityMask and
// registers, for each CPUDescriptor hardware discovery reports, a CPU
// iff its SystemCPUID is in the mask. Total CPU count is fixed after
// this call returns.
func Preinitialize(descs []external.CPUDescriptor, mask AffinityMask) (*Registry, error) {
	allowed, err := mask.SystemCPUIDs()
	if err != nil {
		return nil, xerrors.Errorf("reading process affinity: %w", err)
	}

	allowedSet := make(map[int]struct{}, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = struct{}{}
	}

	r := &Registry{
		mask: allowedSet,
		idle: make(map[int]struct{}),
	}

	vid := 0
	for _, d := range descs {
		if _, ok := allowedSet[d.SystemCPUID]; !ok {
			continue
		}
		r.cpus = append(r.cpus, &CPU{
			VirtualID:   vid,
			SystemCPUID: d.SystemCPUID,
			Compute:     d.Compute,
			Memory:      d.Memory,
			state:       StateStarting,
		})
		vid++
	}

	if len(r.cpus) == 0 {
		return nil, xerrors.New("fatal: no CPU in hardware topology is within the process affinity mask")
	}

	log.Infof("cpumgr: preinitialized %d CPUs", len(r.cpus))
	return r, nil
}

// Len returns the fixed total CPU count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cpus)
}

// All returns every registered CPU, in virtual-id order.
func (r *Registry) All() []*CPU {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CPU, len(r.cpus))
	copy(out, r.cpus)
	return out
}

// ByVirtualID returns the CPU for the given virtual id, or nil.
func (r *Registry) ByVirtualID(vid int) *CPU {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if vid < 0 || vid >= len(r.cpus) {
		return nil
	}
	return r.cpus[vid]
}

// CPUBecomesIdle flips the idle bit for c under the registry's spinlock.
func (r *Registry) CPUBecomesIdle(c *CPU) {
	r.idleLk.Lock()
	r.idle[c.VirtualID] = struct{}{}
	r.idleLk.Unlock()
	c.setState(StateIdle)
}

// UnidleCPU clears the idle bit for c.
func (r *Registry) UnidleCPU(c *CPU) {
	r.idleLk.Lock()
	delete(r.idle, c.VirtualID)
	r.idleLk.Unlock()
	if c.State() == StateIdle {
		c.setState(StateActive)
	}
}

// IsIdle reports whether c's idle bit is currently set.
func (r *Registry) IsIdle(c *CPU) bool {
	r.idleLk.Lock()
	defer r.idleLk.Unlock()
	_, ok := r.idle[c.VirtualID]
	return ok
}

// Disable marks a CPU disabled; it stops accepting new task submissions
// but in-flight work runs to completion (spec §5 "Cancellation").
func (r *Registry) Disable(c *CPU) {
	c.setState(StateDisabled)
	r.idleLk.Lock()
	delete(r.idle, c.VirtualID)
	r.idleLk.Unlock()
}

// ActivateCPU transitions a CPU out of its starting state once the
// worker bound to it has completed thread initialization.
func (r *Registry) ActivateCPU(c *CPU) {
	c.setState(StateActive)
}

// Accepting reports whether a CPU is currently accepting work (i.e. not
// disabled and past its initialization phase).
func (r *Registry) Accepting(c *CPU) bool {
	s := c.State()
	return s != StateDisabled && s != StateStarting
}
