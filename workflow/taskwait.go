package workflow

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/task"
)

var errNoDispatcher = xerrors.New("workflow: taskwait fragment requires a cluster fetch but no dispatcher is configured")

// TaskwaitWorkflow is the mini-workflow spec §4.4's
// setupTaskwaitWorkflow builds: one copy step plus one notification
// step that releases the waited-on fragment.
type TaskwaitWorkflow struct {
	Copy         *Step
	Notification *Step
}

// SetupTaskwaitWorkflow implements spec §4.4's setupTaskwaitWorkflow:
// if fragment has no output location, no copy is needed and the
// fragment is released immediately; otherwise the copy is rooted, and
// the notification releases the fragment (first=true) then the
// mini-workflow is discarded by the caller.
func SetupTaskwaitWorkflow(ctx context.Context, t *task.Task, fragment *task.DataAccess, deps Deps) (*TaskwaitWorkflow, error) {
	release := func() {
		if err := deps.Registrar.ReleaseTaskwaitFragment(ctx, t, fragment, true); err != nil {
			log.Warnf("workflow: releasing taskwait fragment for task %s failed: %v", t.ID, err)
		}
	}

	notify := NewStep(KindHostNotification, func(*Step) { release() })

	if fragment.Output == nil {
		notify.Start()
		return &TaskwaitWorkflow{Notification: notify}, nil
	}

	decision := classifyAccess(fragment, *fragment.Output, deps.Cluster)

	var copyStep *Step
	if decision.kind == KindClusterDataCopy && decision.requiresFetch {
		copyStep = NewStep(KindClusterDataCopy, func(*Step) {})
		copyStep.SourceNode = int(decision.sourceNode)
		copyStep.RequiresFetch = true
		copyStep.FragmentCount = 1
		copyStep.Then(notify)

		if deps.Dispatcher == nil {
			return nil, errNoDispatcher
		}
		if err := deps.Dispatcher.Submit(ctx, 1, []external.FetchStep{copyStep}, task.NodeIndex(copyStep.SourceNode)); err != nil {
			return nil, err
		}
	} else {
		copyStep = NewStep(KindNull, func(*Step) {})
		copyStep.Then(notify)
		copyStep.Start()
	}

	return &TaskwaitWorkflow{Copy: copyStep, Notification: notify}, nil
}
