package workflow

import (
	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

// copyDecision is the outcome of applying spec §4.3's copy-step
// construction rules to one DataAccess.
type copyDecision struct {
	kind          Kind
	requiresFetch bool
	sourceNode    task.NodeIndex
	deferred      bool // source was null; registration deferred
}

// classifyAccess applies the copy-step construction decision table
// (spec §4.3) to one access against the task's target memory place.
func classifyAccess(access *task.DataAccess, target task.MemoryPlace, cluster external.ClusterManager) copyDecision {
	if access.Type.IsSpecial() {
		return copyDecision{kind: KindNull}
	}
	if target.IsDirectory() {
		panic("workflow: copy-step target resolved to the directory sentinel")
	}

	source := access.Source()
	deferred := false
	if !access.HasSource() {
		// Source is null (not read-satisfied): treated as host for
		// type-lookup purposes; the actual registration is deferred
		// until satisfiability arrives from the remote side.
		source = task.HostMemoryPlace()
		deferred = true
	}

	if source.IsDirectory() && cluster.InClusterMode() {
		// No bytes move, but the new location must be registered
		// remotely.
		return copyDecision{kind: KindClusterDataCopy, requiresFetch: false}
	}

	currentNode := cluster.CurrentMemoryNode()
	localTarget := target.Kind == task.DeviceHost || (target.Kind == task.DeviceCluster && target.Node == currentNode)
	if localTarget {
		access.ValidNamespaceSelf = &currentNode
	}

	kind, requiresFetch := lookupTransferKind(source, target)
	if requiresFetch && !localTarget {
		// A remote-to-remote move this node isn't the destination of:
		// nothing for this node's workflow to fetch.
		requiresFetch = false
	}

	return copyDecision{kind: kind, requiresFetch: requiresFetch, sourceNode: source.Node, deferred: deferred}
}

// lookupTransferKind is the source×target kind table (spec §4.3): the
// only non-null entries are host↔cluster and cluster↔cluster (cross
// node); every other pairing — including any combination touching
// CUDA/OpenCL — silently becomes Null (spec §7 kind 5, "documented
// policy, not an error").
func lookupTransferKind(source, target task.MemoryPlace) (Kind, bool) {
	switch {
	case source.Kind == task.DeviceHost && target.Kind == task.DeviceHost:
		return KindNull, false
	case source.Kind == task.DeviceCluster && target.Kind == task.DeviceCluster:
		if source.Node == target.Node {
			return KindNull, false
		}
		return KindClusterDataCopy, true
	case source.Kind == task.DeviceHost && target.Kind == task.DeviceCluster,
		source.Kind == task.DeviceCluster && target.Kind == task.DeviceHost:
		return KindClusterDataCopy, true
	default:
		return KindNull, false
	}
}
