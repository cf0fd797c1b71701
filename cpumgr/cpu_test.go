package cpumgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

type fakeMask struct{ ids []int }

func (f fakeMask) SystemCPUIDs() ([]int, error) { return f.ids, nil }

func descs(n int) []external.CPUDescriptor {
	out := make([]external.CPUDescriptor, n)
	for i := range out {
		out[i] = external.CPUDescriptor{SystemCPUID: i, Compute: task.ComputePlace{Kind: task.DeviceHost}}
	}
	return out
}

func TestPreinitializeFiltersByAffinity(t *testing.T) {
	r, err := Preinitialize(descs(8), fakeMask{ids: []int{1, 3, 5}})
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	var systemIDs []int
	for _, c := range r.All() {
		systemIDs = append(systemIDs, c.SystemCPUID)
	}
	require.Equal(t, []int{1, 3, 5}, systemIDs)
}

func TestPreinitializeVirtualIDsAreDense(t *testing.T) {
	r, err := Preinitialize(descs(4), fakeMask{ids: []int{2, 3}})
	require.NoError(t, err)
	require.Equal(t, 0, r.All()[0].VirtualID)
	require.Equal(t, 1, r.All()[1].VirtualID)
}

func TestPreinitializeEmptyMaskErrors(t *testing.T) {
	_, err := Preinitialize(descs(4), fakeMask{ids: nil})
	require.Error(t, err)
}

func TestIdleRoundTrip(t *testing.T) {
	r, err := Preinitialize(descs(2), fakeMask{ids: []int{0, 1}})
	require.NoError(t, err)
	c := r.All()[0]

	require.False(t, r.IsIdle(c))
	r.CPUBecomesIdle(c)
	require.True(t, r.IsIdle(c))
	r.UnidleCPU(c)
	require.False(t, r.IsIdle(c))
}

func TestDisableStopsAccepting(t *testing.T) {
	r, err := Preinitialize(descs(2), fakeMask{ids: []int{0, 1}})
	require.NoError(t, err)
	c := r.All()[0]
	c.setState(StateActive)
	require.True(t, r.Accepting(c))

	r.Disable(c)
	require.False(t, r.Accepting(c))
	require.False(t, r.IsIdle(c))
}
