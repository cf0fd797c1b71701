// Package workflow implements the per-task execution DAG: copy steps
// feeding an execution step, feeding a release step, feeding a
// notification step (spec §3 "Workflow", §4.3).
package workflow

import (
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"

	"github.com/nanos-rt/nanos/external"
)

var log = logging.Logger("workflow")

// Kind is a step's type tag (spec §3 "Step kinds").
type Kind int

const (
	KindNull Kind = iota
	KindClusterDataCopy
	KindHostExecution
	KindClusterExecution
	KindDataRelease
	KindHostNotification
	KindClusterNotification
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindClusterDataCopy:
		return "cluster-data-copy"
	case KindHostExecution:
		return "host-execution"
	case KindClusterExecution:
		return "cluster-execution"
	case KindDataRelease:
		return "data-release"
	case KindHostNotification:
		return "host-notification"
	case KindClusterNotification:
		return "cluster-notification"
	default:
		return "unknown"
	}
}

// Step is one node of a task's workflow DAG. A step fires — runs its
// action, then decrements each successor's pending counter, starting
// any that reach zero — when its own pending counter reaches zero
// (spec §3 "A step fires ... when its counter reaches zero").
type Step struct {
	Kind Kind

	pending    atomic.Int32
	successors []*Step

	action func(*Step)

	// ClusterDataCopy-specific fields (spec §3's step-kind payload).
	SourceNode       int
	FragmentCount    int
	RequiresFetch    bool
	TaskwaitFragment bool
}

// NewStep builds a step with the given action. action may be nil (a
// pure synchronization point).
func NewStep(kind Kind, action func(*Step)) *Step {
	return &Step{Kind: kind, action: action}
}

// Then declares s as a predecessor of succ: succ's pending counter is
// incremented, and succ's Start is invoked automatically once every
// predecessor (including s) has fired. Steps own their successors;
// successors do not own predecessors (spec §3).
func (s *Step) Then(succ *Step) *Step {
	succ.pending.Add(1)
	s.successors = append(s.successors, succ)
	return succ
}

// Ready reports whether s has no outstanding predecessors — the
// definition of a root step (spec §3 "Root steps are those with no
// incoming edges").
func (s *Step) Ready() bool {
	return s.pending.Load() == 0
}

// Start runs s's action (if any), then fires every successor whose
// pending counter reaches zero as a result.
func (s *Step) Start() {
	if s.action != nil {
		s.action(s)
	}
	for _, succ := range s.successors {
		if succ.pending.Add(-1) == 0 {
			succ.Start()
		}
	}
}

// Complete implements external.FetchStep: the transfer dispatcher
// calls this once a ClusterDataCopy step's fragment has landed (or
// failed transiently — spec §7 kind 6, retried by the transport). A
// non-nil err is logged; the step still fires its successors since
// retries are the transport's responsibility, not this workflow's.
func (s *Step) Complete(err error) {
	if err != nil {
		log.Warnf("workflow: cluster data copy step failed transiently: %v", err)
	}
	for _, succ := range s.successors {
		if succ.pending.Add(-1) == 0 {
			succ.Start()
		}
	}
}

var _ external.FetchStep = (*Step)(nil)
