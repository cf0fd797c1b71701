// Package metrics declares this runtime's opencensus measures, tags,
// and views, and the Prometheus exporter that serves them — trimmed
// down from the teacher's metrics package (chain/sealing measures
// dropped, scheduler/worker/transfer measures kept and renamed to this
// runtime's domain) per SPEC_FULL.md's ambient stack section.
package metrics

import (
	"context"
	"net/http"
	"time"

	prometheus "contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"
)

// Distributions, carried over from the teacher verbatim: buckets tuned
// for sub-millisecond scheduling cycles up to multi-second cluster
// fetches.
var millisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8,
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
	150, 200, 250, 300, 350, 400, 450, 500,
	600, 700, 800, 900, 1000,
	1100, 1200, 1300, 1400, 1500, 1600, 1700, 1800, 1900, 2000,
	3000, 4000, 5000, 6000, 8000, 10000, 13000, 16000, 20000, 25000, 30000,
)

var queueSizeDistribution = view.Distribution(0, 1, 2, 3, 5, 7, 10, 15, 25, 35, 50, 70, 90, 130, 200, 300, 500, 1000)

var fragmentCountDistribution = view.Distribution(1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144)

// Tags
var (
	TagDeviceKind, _ = tag.NewKey("device_kind")
	TagPolicy, _     = tag.NewKey("scheduling_policy")
	TagSourceNode, _ = tag.NewKey("source_node")
	TagStep, _       = tag.NewKey("step_kind")
)

// Measures
var (
	SchedAssignCycleDuration = stats.Float64("sched/assign_cycle_ms", "Duration of a single addReadyTask routing decision", stats.UnitMilliseconds)
	SchedQueueLength         = stats.Int64("sched/queue_length", "Host leaf queue length at sample time", stats.UnitDimensionless)
	SchedOverflowCount       = stats.Int64("sched/overflow_total", "Count of leaf-to-parent overflow events", stats.UnitDimensionless)

	WorkerUtilization   = stats.Float64("worker/utilization", "Fraction of sampled time a worker spent executing a task body", stats.UnitDimensionless)
	WorkerTasksExecuted = stats.Int64("worker/tasks_executed_total", "Count of task bodies executed by a worker", stats.UnitDimensionless)

	WorkflowStepDuration = stats.Float64("workflow/step_duration_ms", "Duration of a single workflow step's start() call", stats.UnitMilliseconds)

	TransferFetchDuration  = stats.Float64("transfer/fetch_duration_ms", "Duration of a fetchVector call", stats.UnitMilliseconds)
	TransferFragmentCount  = stats.Int64("transfer/fragment_count", "Fragments bundled into one fetchVector call", stats.UnitDimensionless)
	TransferPendingCount   = stats.Int64("transfer/pending_total", "Pending transfers awaiting completion poll", stats.UnitDimensionless)

	ShutdownDuration = stats.Float64("pool/shutdown_duration_ms", "Duration of the collective shutdown protocol", stats.UnitMilliseconds)

	FinalizeDisposedTotal = stats.Int64("finalize/disposed_total", "Count of tasks that reached disposeTask", stats.UnitDimensionless)
)

// Views
var (
	SchedAssignCycleDurationView = &view.View{
		Measure:     SchedAssignCycleDuration,
		Aggregation: millisecondsDistribution,
		TagKeys:     []tag.Key{TagDeviceKind},
	}
	SchedQueueLengthView = &view.View{
		Measure:     SchedQueueLength,
		Aggregation: queueSizeDistribution,
	}
	SchedOverflowCountView = &view.View{
		Measure:     SchedOverflowCount,
		Aggregation: view.Count(),
	}
	WorkerUtilizationView = &view.View{
		Measure:     WorkerUtilization,
		Aggregation: view.Distribution(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	}
	WorkerTasksExecutedView = &view.View{
		Measure:     WorkerTasksExecuted,
		Aggregation: view.Count(),
	}
	WorkflowStepDurationView = &view.View{
		Measure:     WorkflowStepDuration,
		Aggregation: millisecondsDistribution,
		TagKeys:     []tag.Key{TagStep},
	}
	TransferFetchDurationView = &view.View{
		Measure:     TransferFetchDuration,
		Aggregation: millisecondsDistribution,
		TagKeys:     []tag.Key{TagSourceNode},
	}
	TransferFragmentCountView = &view.View{
		Measure:     TransferFragmentCount,
		Aggregation: fragmentCountDistribution,
	}
	TransferPendingCountView = &view.View{
		Measure:     TransferPendingCount,
		Aggregation: queueSizeDistribution,
	}
	ShutdownDurationView = &view.View{
		Measure:     ShutdownDuration,
		Aggregation: millisecondsDistribution,
	}
	FinalizeDisposedTotalView = &view.View{
		Measure:     FinalizeDisposedTotal,
		Aggregation: view.Count(),
	}
)

// DefaultViews is registered by cmd/taskrtd at startup.
var DefaultViews = []*view.View{
	SchedAssignCycleDurationView,
	SchedQueueLengthView,
	SchedOverflowCountView,
	WorkerUtilizationView,
	WorkerTasksExecutedView,
	WorkflowStepDurationView,
	TransferFetchDurationView,
	TransferFragmentCountView,
	TransferPendingCountView,
	ShutdownDurationView,
	FinalizeDisposedTotalView,
}

// RegisterViews registers v with opencensus, matching the teacher's
// RegisterViews helper.
func RegisterViews(v ...*view.View) error {
	return view.Register(v...)
}

// SinceInMilliseconds returns the duration of time since startTime as
// a float64 of milliseconds.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Milliseconds())
}

// Timer is a stopwatch: calling it starts the timer, calling the
// returned function records the duration against m.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}

// NewPrometheusExporter builds the opencensus→Prometheus exporter
// (contrib.go.opencensus.io/exporter/prometheus) used by cmd/taskrtd to
// serve /metrics. The teacher wires the identical exporter for its own
// node metrics endpoint.
func NewPrometheusExporter(namespace string) (*prometheus.Exporter, error) {
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: namespace})
	if err != nil {
		return nil, xerrors.Errorf("building prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)
	return exporter, nil
}

// Handler returns the net/http handler the exporter serves scrapes on.
func Handler(exporter *prometheus.Exporter) http.Handler {
	return exporter
}
