// Package config loads and validates swarm configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nkllon/swarmctl/pkg/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a SwarmConfig with documented defaults applied
func Default() *types.SwarmConfig {
	return &types.SwarmConfig{
		InstanceCount: 3,
		ResourceLimits: types.ResourceLimits{
			MaxCPUPercent:  80.0,
			MaxMemoryMB:    4096,
			MaxDiskMB:      10240,
			MaxNetworkMbps: 100.0,
		},
		TaskDistributionStrategy: types.StrategyDependencyAware,
		CommunicationProtocol: types.ProtocolConfig{
			ProtocolType:   "text",
			TimeoutSeconds: 30,
			RetryAttempts:  3,
			BatchSize:      10,
		},
		IntegrationPolicy:      types.IntegrationQualityGated,
		AutoScalingEnabled:     true,
		MaxInstances:           10,
		MinInstances:           1,
		ScalingThresholdCPU:    70.0,
		ScalingThresholdMemory: 80.0,
		HealthCheckInterval:    30,
		TaskTimeout:            3600,
		EnableVisualID:         true,
	}
}

// Load reads a YAML config file over the defaults and validates it
func Load(path string) (*types.SwarmConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all configuration bounds, including
// min_instances <= max_instances
func Validate(cfg *types.SwarmConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid swarm config: %w", err)
	}
	return nil
}
