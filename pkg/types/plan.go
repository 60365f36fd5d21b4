package types

import (
	"time"
)

// DistributionStrategy selects how tasks are assigned to instance slots
type DistributionStrategy string

const (
	StrategyRoundRobin      DistributionStrategy = "round_robin"
	StrategyLoadBalanced    DistributionStrategy = "load_balanced"
	StrategyDependencyAware DistributionStrategy = "dependency_aware"
	StrategyCapabilityBased DistributionStrategy = "capability_based"
)

// DistributionPlan is the planner output: tasks mapped to instance
// slots plus parallel-group ordering. Plans are pure values and never
// mutate swarm state.
type DistributionPlan struct {
	PlanID                  string
	TotalTasks              int
	InstanceAssignments     map[string][]string // instance slot -> task IDs
	DependencyGroups        [][]string
	EstimatedCompletionTime time.Duration
	ParallelExecutionGroups [][]string // ordered; tasks within a group are dependency-free
	CriticalPath            []string
	CreatedAt               time.Time
	StrategyUsed            DistributionStrategy
}

// FailureType classifies an instance failure
type FailureType string

const (
	FailureCrash         FailureType = "crash"
	FailureTimeout       FailureType = "timeout"
	FailureResource      FailureType = "resource"
	FailureCommunication FailureType = "communication"
)

// InstanceFailure describes a failed worker instance
type InstanceFailure struct {
	InstanceID       string
	FailureType      FailureType
	FailureTime      time.Time
	ErrorMessage     string
	AffectedTasks    []string
	RecoveryAttempts int
	IsRecoverable    bool
	Context          map[string]any
}

// RecoveryStrategy selects how a failed instance is recovered
type RecoveryStrategy string

const (
	RecoveryRestart  RecoveryStrategy = "restart"
	RecoveryReassign RecoveryStrategy = "reassign"
	RecoveryScaleUp  RecoveryStrategy = "scale_up"
	RecoveryManual   RecoveryStrategy = "manual"
)

// RecoveryPlan is the controller's response to an instance failure
type RecoveryPlan struct {
	PlanID                string
	FailedInstance        string
	Strategy              RecoveryStrategy
	TaskReassignments     map[string]string // task ID -> new instance ID
	EstimatedRecoveryTime time.Duration
	RequiredActions       []string
	RollbackPlan          map[string]any
	CreatedAt             time.Time
}

// IntegrationReport summarizes one integration pass over completed work
type IntegrationReport struct {
	ReportID               string
	IntegrationBatch       []string
	SuccessfulIntegrations []string
	FailedIntegrations     []string
	ConflictsResolved      []string
	ConflictsRemaining     []string
	QualityGateResults     map[string]bool
	IntegrationTime        time.Duration
	CreatedAt              time.Time
	Summary                string
}
