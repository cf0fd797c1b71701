package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

type recordingStep struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingStep) Complete(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func TestSubmitGroupsBySourceAndCompletesSteps(t *testing.T) {
	cluster := &external.FakeCluster{Node: 0}
	d := NewDispatcher(cluster, time.Millisecond)

	s1, s2 := &recordingStep{}, &recordingStep{}
	err := d.Submit(context.Background(), 2, []external.FetchStep{s1, s2}, task.NodeIndex(1))
	require.NoError(t, err)

	require.Len(t, s1.errs, 1)
	require.Len(t, s2.errs, 1)
	require.Equal(t, 0, d.PendingCount())
	require.Equal(t, []external.FetchCall{{NFragments: 2, Source: 1}}, cluster.FetchCalls)
}

func TestStopPollingDrainsBeforeReturning(t *testing.T) {
	cluster := &external.FakeCluster{Node: 0}
	d := NewDispatcher(cluster, time.Millisecond)
	d.StartPolling(context.Background())

	s := &recordingStep{}
	require.NoError(t, d.Submit(context.Background(), 1, []external.FetchStep{s}, task.NodeIndex(2)))

	d.StopPolling(100 * time.Millisecond)
	require.Equal(t, 0, d.PendingCount())
}
