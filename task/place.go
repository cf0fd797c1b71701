package task

import "fmt"

// DeviceKind is the closed universe of compute/memory device types the
// runtime schedules onto. The compiler does not check switches on it
// for exhaustiveness: String falls back to "device(N)", and the copy-step
// transfer table maps any pairing it does not list to a Null step.
type DeviceKind int

const (
	DeviceHost DeviceKind = iota
	DeviceCUDA
	DeviceOpenCL
	DeviceCluster
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceHost:
		return "host"
	case DeviceCUDA:
		return "cuda"
	case DeviceOpenCL:
		return "opencl"
	case DeviceCluster:
		return "cluster"
	default:
		return fmt.Sprintf("device(%d)", int(k))
	}
}

// NodeIndex identifies a cluster node. Meaningless for non-cluster kinds.
type NodeIndex int

// ComputePlace is an execution target: a CPU, a GPU, or a remote cluster node.
type ComputePlace struct {
	Kind DeviceKind
	Node NodeIndex // only meaningful when Kind == DeviceCluster
}

func (c ComputePlace) IsCluster() bool { return c.Kind == DeviceCluster }

// MemoryPlace is an addressable memory domain associated with a ComputePlace.
type MemoryPlace struct {
	Kind DeviceKind
	Node NodeIndex

	// directory marks the sentinel "uninitialised, lives wherever the
	// directory says" memory place. Never a legal copy target.
	directory bool
}

// Directory is the single distinguished sentinel memory place meaning
// "not yet resident anywhere known; ask the memory directory". It is
// never a legal copy-step target and appears only as a source.
var Directory = MemoryPlace{directory: true}

// IsDirectory reports whether mp is the directory sentinel.
func (mp MemoryPlace) IsDirectory() bool { return mp.directory }

// Equal reports structural equality, treating the directory sentinel
// as equal only to itself regardless of Kind/Node zero values.
func (mp MemoryPlace) Equal(other MemoryPlace) bool {
	if mp.directory != other.directory {
		return false
	}
	if mp.directory {
		return true
	}
	return mp.Kind == other.Kind && mp.Node == other.Node
}

func (mp MemoryPlace) String() string {
	if mp.directory {
		return "directory"
	}
	if mp.Kind == DeviceCluster {
		return fmt.Sprintf("cluster-node-%d", mp.Node)
	}
	return mp.Kind.String()
}

// HostMemoryPlace builds a local host memory place.
func HostMemoryPlace() MemoryPlace { return MemoryPlace{Kind: DeviceHost} }

// ClusterMemoryPlace builds the memory place for a given cluster node.
func ClusterMemoryPlace(node NodeIndex) MemoryPlace {
	return MemoryPlace{Kind: DeviceCluster, Node: node}
}
