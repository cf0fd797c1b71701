//go:build linux

package cpumgr

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// ProcessAffinityMask reads the calling process's CPU affinity mask via
// sched_getaffinity. This is the real AffinityMask implementation used
// outside tests.
type ProcessAffinityMask struct{}

func (ProcessAffinityMask) SystemCPUIDs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, xerrors.Errorf("sched_getaffinity: %w", err)
	}

	var ids []int
	n := set.Count()
	for id := 0; len(ids) < n; id++ {
		if set.IsSet(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ AffinityMask = ProcessAffinityMask{}

// BindCurrentThread pins the calling OS thread to systemCPUID. Callers
// must have already called runtime.LockOSThread. Used by workerpool
// when a worker starts or migrates to a new CPU.
func BindCurrentThread(systemCPUID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(systemCPUID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return xerrors.Errorf("sched_setaffinity(tid=self, cpu=%d): %w", systemCPUID, err)
	}
	return nil
}
