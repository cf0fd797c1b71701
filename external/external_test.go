package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/task"
)

func TestNoopRegistrarVisitsInOrder(t *testing.T) {
	tk := &task.Task{ID: task.NewID(), Accesses: []*task.DataAccess{
		{Type: task.AccessRead},
		{Type: task.AccessWrite},
	}}
	r := &NoopRegistrar{}
	var seen []int
	r.ProcessAllDataAccesses(tk, func(idx int, _ *task.DataAccess) { seen = append(seen, idx) })
	require.Equal(t, []int{0, 1}, seen)
}

func TestNoopRegistrarFinaliseRunsBeforeReturn(t *testing.T) {
	tk := &task.Task{ID: task.NewID()}
	r := &NoopRegistrar{}
	ran := false
	err := r.UnregisterTaskDataAccesses(context.Background(), tk, nil, task.HostMemoryPlace(), true, func() { ran = true })
	require.NoError(t, err)
	require.True(t, ran)
	require.Contains(t, r.Unregistered, tk.ID)
}

func TestFakeClusterFetchVectorCompletesSteps(t *testing.T) {
	c := &FakeCluster{Node: 3}
	var completed []error
	step := fetchStepFunc(func(err error) { completed = append(completed, err) })

	err := c.FetchVector(context.Background(), 2, []FetchStep{step}, task.NodeIndex(1))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Nil(t, completed[0])
	require.Equal(t, []FetchCall{{NFragments: 2, Source: 1}}, c.FetchCalls)
}

func TestLocalOnlyClusterForbidsFetch(t *testing.T) {
	require.Panics(t, func() {
		_ = LocalOnlyCluster{}.FetchVector(context.Background(), 1, nil, 0)
	})
}

type fetchStepFunc func(error)

func (f fetchStepFunc) Complete(err error) { f(err) }
