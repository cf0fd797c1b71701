package external

import logging "github.com/ipfs/go-log/v2"

// Instrumentation is the ABI-stable per-subsystem enter/exit hook set
// spec §6 requires: any implementation (no-op, verbose, trace) must be
// behaviour-neutral when every backend is a no-op.
type Instrumentation interface {
	Enter(subsystem, event string)
	Exit(subsystem, event string)
}

// NoopInstrumentation discards every event; the default backend.
type NoopInstrumentation struct{}

func (NoopInstrumentation) Enter(string, string) {}
func (NoopInstrumentation) Exit(string, string)  {}

var _ Instrumentation = NoopInstrumentation{}

// VerboseInstrumentation logs every enter/exit pair at debug level,
// gated by the VerboseClusterMessages config knob — enabling it does
// not change scheduling behaviour, only observability.
type VerboseInstrumentation struct{}

var instrLog = logging.Logger("instrumentation")

func (VerboseInstrumentation) Enter(subsystem, event string) {
	instrLog.Debugf("enter %s/%s", subsystem, event)
}

func (VerboseInstrumentation) Exit(subsystem, event string) {
	instrLog.Debugf("exit %s/%s", subsystem, event)
}

var _ Instrumentation = VerboseInstrumentation{}

// TraceEvent is one recorded enter/exit pair, used by TraceInstrumentation.
type TraceEvent struct {
	Subsystem string
	Event     string
	Enter     bool
}

// TraceInstrumentation records every event in memory; used by tests that
// assert on instrumentation ordering without needing a real tracing sink.
type TraceInstrumentation struct {
	Events []TraceEvent
}

func (t *TraceInstrumentation) Enter(subsystem, event string) {
	t.Events = append(t.Events, TraceEvent{Subsystem: subsystem, Event: event, Enter: true})
}

func (t *TraceInstrumentation) Exit(subsystem, event string) {
	t.Events = append(t.Events, TraceEvent{Subsystem: subsystem, Event: event, Enter: false})
}

var _ Instrumentation = (*TraceInstrumentation)(nil)
