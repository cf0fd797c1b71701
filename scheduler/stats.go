package scheduler

// LeafInfo is one host leaf's diagnostic snapshot.
type LeafInfo struct {
	VirtualID   int
	SystemCPUID int
	QueueLen    int
	Idle        bool
}

// Info is the scheduler-wide diagnostic snapshot — a supplemented
// feature (SPEC_FULL.md), grounded on the teacher's WorkerStats/
// WorkerJobs pair: a point-in-time dump of what every worker is
// doing, reshaped here around leaves/queues instead of sealing jobs.
type Info struct {
	Leaves       []LeafInfo
	HostOverflow int
	DeviceQueued map[string]int
}

// Diag returns the current scheduler-wide snapshot.
func (s *Scheduler) Diag() Info {
	info := Info{
		HostOverflow: s.host.root.OverflowLen(),
		DeviceQueued: make(map[string]int),
	}

	for _, l := range s.host.leafs {
		info.Leaves = append(info.Leaves, LeafInfo{
			VirtualID:   l.CPU().VirtualID,
			SystemCPUID: l.CPU().SystemCPUID,
			QueueLen:    l.QueueLen(),
			Idle:        l.Idle(),
		})
	}

	for kind, tree := range s.devices {
		info.DeviceQueued[kind.String()] = tree.root.OverflowLen()
	}

	return info
}
