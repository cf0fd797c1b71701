// Package config loads the runtime's environment-variable-style
// configuration table (spec §6) from a TOML document, with environment
// variables layered on top as overrides — the same two-stage load lotus
// uses for its node configuration, built on the same toml library.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

// SchedPolicy is the queue discipline at every scheduler level.
type SchedPolicy string

const (
	PolicyFIFO SchedPolicy = "fifo"
	PolicyLIFO SchedPolicy = "lifo"
)

// Scheduling holds the §6 configuration table.
type Scheduling struct {
	// SchedulingPolicy selects FIFO or LIFO queue discipline. Default fifo.
	SchedulingPolicy SchedPolicy `toml:"SchedulingPolicy"`
	// ImmediateSuccessor enables the successor fast-path. Default true.
	ImmediateSuccessor bool `toml:"ImmediateSuccessor"`
	// Priority enables priority-augmented queues. Default true.
	Priority bool `toml:"Priority"`
	// PollingIterations is the busy-wait budget before a worker parks. Default 100000.
	PollingIterations uint `toml:"SchedulerPollingIterations"`
	// VerboseClusterMessages enables verbose cluster instrumentation. Default false.
	VerboseClusterMessages bool `toml:"VerboseClusterMessages"`
}

// Default returns the §6 default configuration.
func Default() Scheduling {
	return Scheduling{
		SchedulingPolicy:       PolicyFIFO,
		ImmediateSuccessor:     true,
		Priority:               true,
		PollingIterations:      100000,
		VerboseClusterMessages: false,
	}
}

// env var names, one per Scheduling field.
const (
	envPolicy             = "NANOS_SCHEDULING_POLICY"
	envImmediateSuccessor = "NANOS_IMMEDIATE_SUCCESSOR"
	envPriority           = "NANOS_PRIORITY"
	envPollingIterations  = "NANOS_SCHEDULER_POLLING_ITERATIONS"
	envVerboseCluster     = "NANOS_VERBOSE_CLUSTER_MESSAGES"
)

// Load reads a TOML document at path (if it exists) over the §6
// defaults, then applies any NANOS_* environment variable overrides.
// An empty path skips the file-load stage and starts from Default().
func Load(path string) (Scheduling, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Scheduling{}, xerrors.Errorf("decoding config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Scheduling{}, xerrors.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Scheduling{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Scheduling{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Scheduling) error {
	if v, ok := os.LookupEnv(envPolicy); ok {
		cfg.SchedulingPolicy = SchedPolicy(v)
	}
	if v, ok := os.LookupEnv(envImmediateSuccessor); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("%s: %w", envImmediateSuccessor, err)
		}
		cfg.ImmediateSuccessor = b
	}
	if v, ok := os.LookupEnv(envPriority); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("%s: %w", envPriority, err)
		}
		cfg.Priority = b
	}
	if v, ok := os.LookupEnv(envPollingIterations); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return xerrors.Errorf("%s: %w", envPollingIterations, err)
		}
		cfg.PollingIterations = uint(n)
	}
	if v, ok := os.LookupEnv(envVerboseCluster); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return xerrors.Errorf("%s: %w", envVerboseCluster, err)
		}
		cfg.VerboseClusterMessages = b
	}
	return nil
}

// Validate rejects malformed policy values fatally, per spec §7's
// "Fatal configuration" error kind — there is no recovery path for a
// bad scheduling-policy string.
func (s Scheduling) Validate() error {
	switch s.SchedulingPolicy {
	case PolicyFIFO, PolicyLIFO:
	default:
		return xerrors.Errorf("fatal: unsupported scheduling-policy %q (want fifo or lifo)", s.SchedulingPolicy)
	}
	return nil
}
