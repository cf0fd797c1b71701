// Package task holds the runtime's data model: tasks, their declared
// data-access regions, and the compute/memory places they run on and
// read/write. See spec §3.
package task

import (
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("task")

// ID uniquely identifies a task for its process lifetime.
type ID = uuid.UUID

// NewID mints a fresh task id.
func NewID() ID { return uuid.New() }

// Body is the callable a worker invokes to run a task once its copy
// steps have completed.
type Body func() error

// Flags bundles the boolean state spec §3 lists on Task.
type Flags struct {
	WeakOnly          bool
	Remote            bool
	MustDelayRelease  bool
	HasFinished       bool
	Released          bool
	Disposed          bool
}

// Task is the runtime's unit of scheduling and execution. Exclusively
// owned by the runtime from submission until the finalisation
// coordinator disposes it (MarkDisposed).
type Task struct {
	ID   ID
	Body Body

	Accesses []*DataAccess

	// ClusterHome is the home node / cluster context when this task is
	// offloaded. Nil for purely local tasks.
	ClusterHome *NodeIndex

	mu    sync.Mutex
	flags Flags

	Compute ComputePlace
	Memory  MemoryPlace

	// workflow is an opaque pointer managed by the workflow package;
	// task does not import workflow to avoid a cycle, so it is stored
	// as an interface{}. The engine installs it and the finalize package
	// clears it; no package type-asserts it back to the workflow type.
	workflowMu sync.Mutex
	workflow   interface{}
	// cameBackFromWait is set by the finalisation coordinator when a
	// task re-enters executeTask after a taskwait-driven suspension.
	// This is the explicit state flag spec §9 calls for in place of the
	// original "dangling workflow pointer as a sentinel" trick.
	cameBackFromWait bool

	Parent   *Task
	children sync.WaitGroup
	childCnt int64
}

// Workflow returns the task's current workflow handle, or nil if none
// has been constructed yet (or it has been torn down after completion).
func (t *Task) Workflow() interface{} {
	t.workflowMu.Lock()
	defer t.workflowMu.Unlock()
	return t.workflow
}

// SetWorkflow installs (or clears, with nil) the task's workflow handle.
func (t *Task) SetWorkflow(w interface{}) {
	t.workflowMu.Lock()
	t.workflow = w
	t.workflowMu.Unlock()
}

// CameBackFromWait reports whether the task is re-entering execution
// after a taskwait clause suspended it, rather than running for the
// first time.
func (t *Task) CameBackFromWait() bool {
	t.workflowMu.Lock()
	defer t.workflowMu.Unlock()
	return t.cameBackFromWait
}

// MarkCameBackFromWait flips the wait-return flag described above.
func (t *Task) MarkCameBackFromWait(v bool) {
	t.workflowMu.Lock()
	t.cameBackFromWait = v
	t.workflowMu.Unlock()
}

// Flags returns a snapshot of the task's boolean state.
func (t *Task) Flags() Flags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags
}

func (t *Task) setFlag(set func(*Flags)) {
	t.mu.Lock()
	set(&t.flags)
	t.mu.Unlock()
}

// MarkFinished records that the task's body (and, if applicable, its
// children) has finished. Idempotent guards live in the finalize
// package's state machine, not here — Task itself is a plain data
// holder for the flags.
func (t *Task) MarkFinished() { t.setFlag(func(f *Flags) { f.HasFinished = true }) }

// MarkReleased records that the task's dependency data has been
// released. Invariant: a task reaches Released at most once — enforced
// by finalize.Coordinator, which checks Flags().Released before calling
// this.
func (t *Task) MarkReleased() { t.setFlag(func(f *Flags) { f.Released = true }) }

// MarkDisposed records disposal. Invariant: Disposed implies Released
// and HasFinished (enforced by finalize.Coordinator).
func (t *Task) MarkDisposed() { t.setFlag(func(f *Flags) { f.Disposed = true }) }

// AddChild registers a child task, to be waited on by a `wait` clause.
func (t *Task) AddChild() {
	t.children.Add(1)
	t.mu.Lock()
	t.childCnt++
	t.mu.Unlock()
}

// ChildDone marks one child as finished.
func (t *Task) ChildDone() {
	t.children.Done()
	t.mu.Lock()
	t.childCnt--
	t.mu.Unlock()
}

// HasOutstandingChildren reports whether any child task is still running,
// i.e. whether a `wait` clause on this task must still block completion.
func (t *Task) HasOutstandingChildren() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.childCnt > 0
}
