package scheduler

import (
	"math/rand"

	"github.com/nanos-rt/nanos/cpumgr"
)

// Assigner picks which leaf a ready task with no compute-place hint
// lands on. Pluggable the way the teacher's sched.go selects an
// assignment strategy (sched_assigner_darts.go's RandomWS) — a
// supplemented feature (SPEC_FULL.md) since the distilled spec names
// only "hint" routing, not how an unhinted task picks a leaf.
type Assigner interface {
	// Select returns the index into leaves to use, preferring one
	// already idle when possible.
	Select(leaves []*Leaf) int
}

// RandomWeightedAssigner throws a dart: it samples a few leaves at
// random and takes the shallowest queue among them, rather than
// scanning the whole set — grounded on sched_assigner_darts.go's
// RandomWS, which does the same "sample k, pick best" trick to avoid
// an O(n) scan on every assignment.
type RandomWeightedAssigner struct {
	Samples int
}

func NewRandomWeightedAssigner() *RandomWeightedAssigner {
	return &RandomWeightedAssigner{Samples: 4}
}

func (a *RandomWeightedAssigner) Select(leaves []*Leaf) int {
	if len(leaves) == 0 {
		return -1
	}
	if len(leaves) == 1 {
		return 0
	}

	samples := a.Samples
	if samples > len(leaves) {
		samples = len(leaves)
	}

	best := -1
	bestLoad := -1
	for i := 0; i < samples; i++ {
		idx := rand.Intn(len(leaves))
		if leaves[idx].Idle() {
			return idx
		}
		load := leaves[idx].QueueLen()
		if best == -1 || load < bestLoad {
			best = idx
			bestLoad = load
		}
	}
	return best
}

// HintFirstAssigner wraps another Assigner, preferring an explicit
// hint CPU's leaf when one is supplied and known.
type HintFirstAssigner struct {
	fallback Assigner
}

func NewHintFirstAssigner(fallback Assigner) *HintFirstAssigner {
	return &HintFirstAssigner{fallback: fallback}
}

func (a *HintFirstAssigner) SelectWithHint(leaves []*Leaf, hint *cpumgr.CPU) int {
	if hint != nil {
		for i, l := range leaves {
			if l.CPU() == hint {
				return i
			}
		}
	}
	return a.fallback.Select(leaves)
}
