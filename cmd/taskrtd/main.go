// Command taskrtd is the task-parallel execution runtime's process
// entry point: preinitialize → initialize → block until signal →
// shutdown, plus a scheduler-diagnostics subcommand (spec §6, SPEC_FULL
// "CLI" ambient stack section).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/bridge/opencensus"
	"golang.org/x/xerrors"

	"github.com/nanos-rt/nanos/config"
	"github.com/nanos-rt/nanos/cpumgr"
	"github.com/nanos-rt/nanos/engine"
	"github.com/nanos-rt/nanos/external"
	"github.com/nanos-rt/nanos/metrics"
	"github.com/nanos-rt/nanos/task"
)

var log = logging.Logger("taskrtd")

func main() {
	app := &cli.App{
		Name:  "taskrtd",
		Usage: "task-parallel execution runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML scheduling config"},
			&cli.StringFlag{Name: "metrics-listen", Value: "127.0.0.1:9402", Usage: "Prometheus scrape address"},
		},
		Commands: []*cli.Command{
			runCmd,
			schedDiagCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("taskrtd: %v", err)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "preinitialize and run the runtime until signaled, then shut down cleanly",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}

		if err := metrics.RegisterViews(metrics.DefaultViews...); err != nil {
			return xerrors.Errorf("registering metric views: %w", err)
		}
		exporter, err := metrics.NewPrometheusExporter("taskrtd")
		if err != nil {
			return xerrors.Errorf("building prometheus exporter: %w", err)
		}
		// Bridges any opencensus-style trace spans emitted by the
		// teacher-derived stack through the global otel tracer
		// provider, so a later jaeger/otlp exporter can be wired in
		// without touching instrumentation call sites.
		opencensus.InstallTraceBridge()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(exporter))
		srv := &http.Server{Addr: cctx.String("metrics-listen"), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("taskrtd: metrics server: %v", err)
			}
		}()

		e, err := engine.Start(cfg, defaultTopology(), cpumgr.ProcessAffinityMask{}, &external.NoopRegistrar{}, &external.StaticDirectory{}, external.LocalOnlyCluster{}, instrumentationFor(cfg))
		if err != nil {
			return xerrors.Errorf("starting engine: %w", err)
		}

		log.Infof("taskrtd: running with %d CPUs", e.Registry.Len())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("taskrtd: shutting down")
		shutdownErr := e.Shutdown()
		_ = srv.Shutdown(context.Background())
		return shutdownErr
	},
}

var schedDiagCmd = &cli.Command{
	Name:  "sched-diag",
	Usage: "preinitialize the runtime and dump scheduler diagnostics as JSON, then exit",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}

		e, err := engine.Start(cfg, defaultTopology(), cpumgr.ProcessAffinityMask{}, &external.NoopRegistrar{}, &external.StaticDirectory{}, external.LocalOnlyCluster{}, nil)
		if err != nil {
			return xerrors.Errorf("starting engine: %w", err)
		}
		defer e.Shutdown()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(e.Scheduler.Diag()); err != nil {
			return xerrors.Errorf("encoding diagnostics: %w", err)
		}
		fmt.Fprintln(os.Stderr, "taskrtd: sched-diag done")
		return nil
	},
}

// defaultTopology reports one host CPU per logical processor the Go
// runtime sees, with no device backends — hardware-topology discovery
// proper is an external collaborator (spec §6), so this is a minimal
// stand-in sufficient to exercise the runtime on a single host.
func defaultTopology() external.HardwareTopology {
	n := goruntime.NumCPU()
	descs := make([]external.CPUDescriptor, n)
	for i := range descs {
		descs[i] = external.CPUDescriptor{
			SystemCPUID: i,
			Compute:     task.ComputePlace{Kind: task.DeviceHost},
			Memory:      task.HostMemoryPlace(),
		}
	}
	return &external.StaticTopology{CPUs: descs}
}

func instrumentationFor(cfg config.Scheduling) external.Instrumentation {
	if cfg.VerboseClusterMessages {
		return external.VerboseInstrumentation{}
	}
	return external.NoopInstrumentation{}
}
