package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkllon/swarmctl/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 3, cfg.InstanceCount)
	assert.Equal(t, types.StrategyDependencyAware, cfg.TaskDistributionStrategy)
	assert.Equal(t, types.IntegrationQualityGated, cfg.IntegrationPolicy)
	assert.Equal(t, 30, cfg.HealthCheckInterval)
	assert.Equal(t, 3600, cfg.TaskTimeout)
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.SwarmConfig)
		wantErr bool
	}{
		{
			name:   "defaults pass",
			mutate: func(c *types.SwarmConfig) {},
		},
		{
			name:    "instance count zero",
			mutate:  func(c *types.SwarmConfig) { c.InstanceCount = 0 },
			wantErr: true,
		},
		{
			name:    "instance count above cap",
			mutate:  func(c *types.SwarmConfig) { c.InstanceCount = 51 },
			wantErr: true,
		},
		{
			name:    "min above max rejected",
			mutate:  func(c *types.SwarmConfig) { c.MinInstances = 8; c.MaxInstances = 5 },
			wantErr: true,
		},
		{
			name:   "min equals max allowed",
			mutate: func(c *types.SwarmConfig) { c.MinInstances = 5; c.MaxInstances = 5 },
		},
		{
			name:    "health check interval below floor",
			mutate:  func(c *types.SwarmConfig) { c.HealthCheckInterval = 4 },
			wantErr: true,
		},
		{
			name:    "health check interval above ceiling",
			mutate:  func(c *types.SwarmConfig) { c.HealthCheckInterval = 301 },
			wantErr: true,
		},
		{
			name:    "task timeout below floor",
			mutate:  func(c *types.SwarmConfig) { c.TaskTimeout = 59 },
			wantErr: true,
		},
		{
			name:    "cpu threshold out of range",
			mutate:  func(c *types.SwarmConfig) { c.ScalingThresholdCPU = 96 },
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *types.SwarmConfig) { c.TaskDistributionStrategy = "fastest_first" },
			wantErr: true,
		},
		{
			name:    "unknown integration policy",
			mutate:  func(c *types.SwarmConfig) { c.IntegrationPolicy = "yolo" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	content := []byte(`
instance_count: 5
task_distribution_strategy: round_robin
deployment_targets:
  - name: local
    type: local
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.InstanceCount)
	assert.Equal(t, types.StrategyRoundRobin, cfg.TaskDistributionStrategy)
	// Untouched fields keep defaults
	assert.Equal(t, 30, cfg.HealthCheckInterval)
	require.Len(t, cfg.DeploymentTargets, 1)
	assert.Equal(t, "local", cfg.DeploymentTargets[0].Name)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_instances: 9\nmax_instances: 2\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
