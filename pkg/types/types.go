package types

import (
	"time"
)

// TaskStatus represents task execution status
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusAssigned  TaskStatus = "assigned"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ValidTaskTransition reports whether a task may move from one status
// to another. Allowed chain: pending -> assigned -> running ->
// (completed | failed | cancelled).
func ValidTaskTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusAssigned
	case TaskStatusAssigned:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusCancelled
	default:
		return false
	}
}

// InstanceStatus represents the state of a worker instance
type InstanceStatus string

const (
	InstanceStatusStarting InstanceStatus = "starting"
	InstanceStatusActive   InstanceStatus = "active"
	InstanceStatusBusy     InstanceStatus = "busy"
	InstanceStatusIdle     InstanceStatus = "idle"
	InstanceStatusStopping InstanceStatus = "stopping"
	InstanceStatusStopped  InstanceStatus = "stopped"
	InstanceStatusError    InstanceStatus = "error"
)

// SwarmStatus represents the state of a swarm
type SwarmStatus string

const (
	SwarmStatusInitializing SwarmStatus = "initializing"
	SwarmStatusActive       SwarmStatus = "active"
	SwarmStatusScaling      SwarmStatus = "scaling"
	SwarmStatusStopping     SwarmStatus = "stopping"
	SwarmStatusStopped      SwarmStatus = "stopped"
	SwarmStatusError        SwarmStatus = "error"
)

// IsolationLevel defines how strongly an instance is isolated
type IsolationLevel string

const (
	IsolationBasic     IsolationLevel = "basic"
	IsolationWorkspace IsolationLevel = "workspace"
	IsolationContainer IsolationLevel = "container"
	IsolationVM        IsolationLevel = "vm"
)

// Task represents a unit of work distributed across the swarm
type Task struct {
	ID                   string
	Description          string
	Requirements         []string
	Dependencies         []string // Task IDs this task depends on
	EstimatedDuration    time.Duration
	ComplexityScore      float64 // 0.1 - 10.0
	RequiredCapabilities []string
	AcceptanceCriteria   []string
	Parameters           map[string]any
	Status               TaskStatus
	AssignedInstance     string
	StartTime            time.Time
	CompletionTime       time.Time
	Result               map[string]any
	ErrorMessage         string
}

// Instance represents a single worker occupying one instance slot
type Instance struct {
	InstanceID            string
	BranchName            string
	WorkspacePath         string
	SourceRepository      string
	ResourceAllocation    *ResourceLimits
	TaskAssignments       []string // Task IDs
	CommunicationEndpoint string
	IsolationLevel        IsolationLevel
	VisualIdentifier      string
	Status                InstanceStatus
	StartTime             time.Time
	LastHeartbeat         time.Time // zero value means no signal yet
	ProcessID             int
	PerformanceMetrics    map[string]any
}

// SwarmMetrics tracks aggregate performance counters for a swarm
type SwarmMetrics struct {
	TotalTasks             int
	CompletedTasks         int
	FailedTasks            int
	ActiveInstances        int
	AverageTaskDuration    time.Duration
	TotalExecutionTime     time.Duration
	ResourceUtilization    map[string]float64
	ThroughputTasksPerHour float64
	ErrorRate              float64
	LastUpdated            time.Time
}

// IntegrationStatus tracks the integration pipeline for a swarm
type IntegrationStatus struct {
	PendingIntegrations    int
	SuccessfulIntegrations int
	FailedIntegrations     int
	ConflictsDetected      int
	LastIntegration        time.Time
	IntegrationQueue       []string
}

// SwarmState is the authoritative state of one swarm. It is owned and
// mutated exclusively by the orchestration controller.
type SwarmState struct {
	SwarmID            string
	Instances          map[string]*Instance
	TaskAssignments    map[string][]string // instance ID -> task IDs
	ExecutionStatus    map[string]TaskStatus
	PerformanceMetrics SwarmMetrics
	IntegrationStatus  IntegrationStatus
	StartTime          time.Time
	LastUpdated        time.Time
	Config             *SwarmConfig
	Status             SwarmStatus
}
