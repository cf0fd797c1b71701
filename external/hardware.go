// Package external declares the collaborator interfaces the runtime
// consumes but does not implement: hardware-topology discovery,
// hardware-counter/instrumentation sinks, the dependency registrar, the
// memory directory, and the cluster manager (spec §6's "Out of scope"
// list). Fakes here exist only to make the core testable in isolation.
package external

import (
	"context"

	"github.com/nanos-rt/nanos/task"
)

// CPUDescriptor is one entry hardware discovery reports: a compute
// place, its associated memory place, and the system CPU id it binds to.
type CPUDescriptor struct {
	Compute     task.ComputePlace
	Memory      task.MemoryPlace
	SystemCPUID int
}

// HardwareTopology enumerates compute nodes and per-device counts.
// Implemented outside the core (topology discovery is out of scope);
// cpumgr.Preinitialize consumes it.
type HardwareTopology interface {
	EnumerateCPUs(ctx context.Context) ([]CPUDescriptor, error)
	DeviceCount(kind task.DeviceKind) int
}

// StaticTopology is a HardwareTopology backed by a fixed descriptor
// list, used by tests and by single-process deployments that read their
// topology from configuration instead of live discovery.
type StaticTopology struct {
	CPUs    []CPUDescriptor
	Devices map[task.DeviceKind]int
}

func (s *StaticTopology) EnumerateCPUs(context.Context) ([]CPUDescriptor, error) {
	return s.CPUs, nil
}

func (s *StaticTopology) DeviceCount(kind task.DeviceKind) int {
	return s.Devices[kind]
}

var _ HardwareTopology = (*StaticTopology)(nil)
