package types

// IntegrationPolicy selects when completed work is integrated
type IntegrationPolicy string

const (
	IntegrationImmediate    IntegrationPolicy = "immediate"
	IntegrationBatch        IntegrationPolicy = "batch"
	IntegrationManual       IntegrationPolicy = "manual"
	IntegrationQualityGated IntegrationPolicy = "quality_gated"
)

// ResourceLimits bounds the resources one instance may consume
type ResourceLimits struct {
	MaxCPUPercent  float64 `yaml:"max_cpu_percent" validate:"omitempty,gt=0,lte=100"`
	MaxMemoryMB    int     `yaml:"max_memory_mb" validate:"omitempty,gt=0"`
	MaxDiskMB      int     `yaml:"max_disk_mb" validate:"omitempty,gt=0"`
	MaxNetworkMbps float64 `yaml:"max_network_mbps" validate:"omitempty,gt=0"`
}

// DeploymentTarget names a location instances can be launched on
type DeploymentTarget struct {
	Name           string            `yaml:"name" validate:"required"`
	Type           string            `yaml:"type" validate:"required,oneof=local docker k8s cloud"`
	Endpoint       string            `yaml:"endpoint,omitempty"`
	Credentials    map[string]string `yaml:"credentials,omitempty"`
	ResourceLimits ResourceLimits    `yaml:"resource_limits,omitempty"`
}

// ProtocolConfig configures the command channel
type ProtocolConfig struct {
	ProtocolType       string `yaml:"protocol_type" validate:"required"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" validate:"omitempty,gte=1"`
	RetryAttempts      int    `yaml:"retry_attempts" validate:"gte=0"`
	BatchSize          int    `yaml:"batch_size" validate:"omitempty,gte=1"`
	CompressionEnabled bool   `yaml:"compression_enabled"`
}

// SwarmConfig configures a swarm launch. Bounds are enforced at load
// time by pkg/config; min_instances > max_instances is rejected.
type SwarmConfig struct {
	InstanceCount            int                  `yaml:"instance_count" validate:"gte=1,lte=50"`
	ResourceLimits           ResourceLimits       `yaml:"resource_limits"`
	DeploymentTargets        []DeploymentTarget   `yaml:"deployment_targets" validate:"dive"`
	TaskDistributionStrategy DistributionStrategy `yaml:"task_distribution_strategy" validate:"oneof=round_robin load_balanced dependency_aware capability_based"`
	CommunicationProtocol    ProtocolConfig       `yaml:"communication_protocol"`
	IntegrationPolicy        IntegrationPolicy    `yaml:"integration_policy" validate:"oneof=immediate batch manual quality_gated"`
	AutoScalingEnabled       bool                 `yaml:"auto_scaling_enabled"`
	MaxInstances             int                  `yaml:"max_instances" validate:"gte=1,lte=100"`
	MinInstances             int                  `yaml:"min_instances" validate:"gte=1,ltefield=MaxInstances"`
	ScalingThresholdCPU      float64              `yaml:"scaling_threshold_cpu" validate:"gte=10,lte=95"`
	ScalingThresholdMemory   float64              `yaml:"scaling_threshold_memory" validate:"gte=10,lte=95"`
	HealthCheckInterval      int                  `yaml:"health_check_interval" validate:"gte=5,lte=300"` // seconds
	TaskTimeout              int                  `yaml:"task_timeout" validate:"gte=60"`                 // seconds
	EnableVisualID           bool                 `yaml:"enable_visual_identification"`
}
