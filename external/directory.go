package external

import "github.com/nanos-rt/nanos/task"

// MemoryDirectory answers "where does this region currently live" for
// regions whose DataAccess has no known source (spec §6). An empty
// home-nodes result means the region is unknown to the directory.
type MemoryDirectory interface {
	IsDirectoryMemoryPlace(mp task.MemoryPlace) bool
	Find(region task.Region) []task.NodeIndex
}

// StaticDirectory is a MemoryDirectory backed by an in-memory map, used
// by tests and single-node deployments.
type StaticDirectory struct {
	Homes map[task.Region][]task.NodeIndex
}

func (s *StaticDirectory) IsDirectoryMemoryPlace(mp task.MemoryPlace) bool {
	return mp.IsDirectory()
}

func (s *StaticDirectory) Find(region task.Region) []task.NodeIndex {
	return s.Homes[region]
}

var _ MemoryDirectory = (*StaticDirectory)(nil)
