package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, PolicyFIFO, cfg.SchedulingPolicy)
	require.True(t, cfg.ImmediateSuccessor)
	require.True(t, cfg.Priority)
	require.EqualValues(t, 100000, cfg.PollingIterations)
	require.False(t, cfg.VerboseClusterMessages)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/does-not-exist.toml")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(envPolicy, "lifo")
	t.Setenv(envPollingIterations, "0")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, PolicyLIFO, cfg.SchedulingPolicy)
	require.EqualValues(t, 0, cfg.PollingIterations)
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := Default()
	cfg.SchedulingPolicy = "round-robin"
	require.Error(t, cfg.Validate())
}
