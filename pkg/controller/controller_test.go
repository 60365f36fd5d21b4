package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkllon/swarmctl/pkg/config"
	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func testController(t *testing.T, mutate func(*types.SwarmConfig)) *Controller {
	t.Helper()
	cfg := config.Default()
	cfg.TaskDistributionStrategy = types.StrategyDependencyAware
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(&Config{SwarmConfig: cfg, WorkspaceRoot: t.TempDir()})
	require.NoError(t, err)
	return c
}

func sampleTasks() []*types.Task {
	mk := func(id string, deps ...string) *types.Task {
		return &types.Task{
			ID:                id,
			Description:       "task " + id,
			Dependencies:      deps,
			EstimatedDuration: 30 * time.Minute,
			ComplexityScore:   1.0,
			Status:            types.TaskStatusPending,
		}
	}
	return []*types.Task{
		mk("t1"),
		mk("t2", "t1"),
		mk("t3", "t2"),
		mk("t4"),
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MinInstances = 5
	cfg.MaxInstances = 2

	_, err := New(&Config{SwarmConfig: cfg})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestLaunchEmptyTaskList(t *testing.T) {
	c := testController(t, nil)

	_, err := c.Launch(nil)
	assert.ErrorIs(t, err, ErrEmptyTaskList)
}

func TestLaunchCreatesActiveSwarm(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) { cfg.InstanceCount = 3 })

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	assert.Equal(t, types.SwarmStatusActive, swarm.Status)
	assert.Len(t, swarm.Instances, 3)
	assert.Equal(t, swarm.SwarmID, c.CurrentSwarmID())

	// Every task is pending
	require.Len(t, swarm.ExecutionStatus, 4)
	for _, status := range swarm.ExecutionStatus {
		assert.Equal(t, types.TaskStatusPending, status)
	}

	// Every assigned task id has an execution status entry
	for _, ids := range swarm.TaskAssignments {
		for _, id := range ids {
			assert.Contains(t, swarm.ExecutionStatus, id)
		}
	}
}

func TestLaunchInstanceShape(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) { cfg.InstanceCount = 3 })

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	endpoints := map[string]bool{}
	for id, inst := range swarm.Instances {
		assert.Equal(t, id, inst.InstanceID)
		assert.Equal(t, "feature/"+id, inst.BranchName)
		assert.Contains(t, inst.WorkspacePath, id)
		assert.Regexp(t, `^tcp://localhost:\d+$`, inst.CommunicationEndpoint)
		assert.False(t, endpoints[inst.CommunicationEndpoint], "endpoint reused")
		endpoints[inst.CommunicationEndpoint] = true
		assert.Equal(t, types.InstanceStatusActive, inst.Status)
	}
}

func TestLaunchSynthesizesLocalTarget(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) {
		cfg.InstanceCount = 3
		cfg.DeploymentTargets = nil
	})

	_, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	require.Len(t, c.cfg.DeploymentTargets, 1)
	assert.Equal(t, "local", c.cfg.DeploymentTargets[0].Name)
}

func TestDistributeRecordsHistory(t *testing.T) {
	c := testController(t, nil)

	plan, err := c.Distribute(sampleTasks())
	require.NoError(t, err)

	assert.Equal(t, 4, plan.TotalTasks)
	require.Len(t, c.DistributionHistory(), 1)
	assert.Equal(t, plan.PlanID, c.DistributionHistory()[0].PlanID)

	status := c.Status()
	assert.Equal(t, 4, status.PerformanceMetrics["tasks_distributed"])
}

func TestMonitorUnknownSwarm(t *testing.T) {
	c := testController(t, nil)

	_, err := c.Monitor("swarm-nope")
	assert.ErrorIs(t, err, ErrSwarmNotFound)

	// No swarm launched yet: the empty default also fails
	_, err = c.Monitor("")
	assert.ErrorIs(t, err, ErrSwarmNotFound)
}

func TestMonitorHeartbeatAging(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) { cfg.HealthCheckInterval = 5 })

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	var stale, fresh, silent string
	for id := range swarm.Instances {
		switch {
		case stale == "":
			stale = id
		case fresh == "":
			fresh = id
		default:
			silent = id
		}
	}
	require.NotEmpty(t, silent)

	// Stale: heartbeat older than 2x interval. Fresh: recent.
	// Silent: no heartbeat at all, which must not degrade.
	require.NoError(t, c.RecordHeartbeat(swarm.SwarmID, stale, time.Now().Add(-30*time.Second)))
	require.NoError(t, c.RecordHeartbeat(swarm.SwarmID, fresh, time.Now()))

	monitored, err := c.Monitor(swarm.SwarmID)
	require.NoError(t, err)

	assert.Equal(t, types.InstanceStatusError, monitored.Instances[stale].Status)
	assert.Equal(t, types.InstanceStatusActive, monitored.Instances[fresh].Status)
	assert.Equal(t, types.InstanceStatusActive, monitored.Instances[silent].Status)
}

func TestMonitorMetricsAndIdempotence(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusAssigned))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusRunning))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusCompleted))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t4", types.TaskStatusAssigned))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t4", types.TaskStatusRunning))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t4", types.TaskStatusFailed))

	first, err := c.Monitor(swarm.SwarmID)
	require.NoError(t, err)
	m1 := first.PerformanceMetrics
	assert.Equal(t, 1, m1.CompletedTasks)
	assert.Equal(t, 1, m1.FailedTasks)
	assert.Equal(t, 0.5, m1.ErrorRate)
	firstUpdated := first.LastUpdated

	second, err := c.Monitor(swarm.SwarmID)
	require.NoError(t, err)
	m2 := second.PerformanceMetrics

	// Metrics identical across consecutive calls with no state change
	assert.Equal(t, m1.CompletedTasks, m2.CompletedTasks)
	assert.Equal(t, m1.FailedTasks, m2.FailedTasks)
	assert.Equal(t, m1.ErrorRate, m2.ErrorRate)
	assert.Equal(t, m1.ActiveInstances, m2.ActiveInstances)

	// last_updated never decreases
	assert.False(t, second.LastUpdated.Before(firstUpdated))
}

func TestTaskTransitionEnforced(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	// pending -> running skips assigned
	err = c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// completed is terminal
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusAssigned))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusRunning))
	require.NoError(t, c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusCompleted))
	err = c.SetTaskStatus(swarm.SwarmID, "t1", types.TaskStatusFailed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestHandleFailureStrategies(t *testing.T) {
	tests := []struct {
		name      string
		failure   types.InstanceFailure
		strategy  types.RecoveryStrategy
		estimated time.Duration
	}{
		{
			name: "timeout restarts",
			failure: types.InstanceFailure{
				FailureType: types.FailureTimeout, IsRecoverable: true,
			},
			strategy:  types.RecoveryRestart,
			estimated: 5 * time.Minute,
		},
		{
			name: "resource scales up",
			failure: types.InstanceFailure{
				FailureType: types.FailureResource, IsRecoverable: true,
			},
			strategy:  types.RecoveryScaleUp,
			estimated: 15 * time.Minute,
		},
		{
			name: "crash reassigns",
			failure: types.InstanceFailure{
				FailureType: types.FailureCrash, IsRecoverable: true,
			},
			strategy:  types.RecoveryReassign,
			estimated: 15 * time.Minute,
		},
		{
			name: "unrecoverable is manual",
			failure: types.InstanceFailure{
				FailureType: types.FailureCrash, IsRecoverable: false,
			},
			strategy:  types.RecoveryManual,
			estimated: 15 * time.Minute,
		},
		{
			name: "repeat attempt is manual",
			failure: types.InstanceFailure{
				FailureType: types.FailureTimeout, IsRecoverable: true, RecoveryAttempts: 1,
			},
			strategy:  types.RecoveryManual,
			estimated: 15 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testController(t, nil)
			swarm, err := c.Launch(sampleTasks())
			require.NoError(t, err)

			var instanceID string
			for id := range swarm.Instances {
				instanceID = id
				break
			}
			tt.failure.InstanceID = instanceID
			tt.failure.FailureTime = time.Now()
			tt.failure.ErrorMessage = "test failure"

			plan, err := c.HandleFailure(&tt.failure)
			require.NoError(t, err)

			assert.Equal(t, tt.strategy, plan.Strategy)
			assert.Equal(t, tt.estimated, plan.EstimatedRecoveryTime)
			assert.Equal(t, instanceID, plan.FailedInstance)
			require.Len(t, c.RecoveryHistory(), 1)
		})
	}
}

func TestHandleFailureReassignsTasks(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) { cfg.InstanceCount = 3 })

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	var failed string
	for id, ids := range swarm.TaskAssignments {
		if len(ids) > 0 {
			failed = id
			break
		}
	}
	affected := append([]string(nil), swarm.TaskAssignments[failed]...)

	plan, err := c.HandleFailure(&types.InstanceFailure{
		InstanceID:    failed,
		FailureType:   types.FailureCrash,
		IsRecoverable: true,
		AffectedTasks: affected,
	})
	require.NoError(t, err)
	require.Equal(t, types.RecoveryReassign, plan.Strategy)

	// Affected tasks moved off the failed instance
	assert.Empty(t, swarm.TaskAssignments[failed])
	for _, taskID := range affected {
		target, ok := plan.TaskReassignments[taskID]
		require.True(t, ok)
		assert.NotEqual(t, failed, target)
		assert.Contains(t, swarm.TaskAssignments[target], taskID)
	}
	assert.Equal(t, types.InstanceStatusError, swarm.Instances[failed].Status)
}

func TestIntegrateNoCompletedTasks(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	report, err := c.Integrate(swarm.SwarmID)
	require.NoError(t, err)

	assert.Empty(t, report.SuccessfulIntegrations)
	assert.Equal(t, "No completed tasks ready for integration", report.Summary)
	assert.Greater(t, report.IntegrationTime, time.Duration(0))
}

func TestIntegrateCompletedTasks(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	for _, id := range []string{"t1", "t4"} {
		require.NoError(t, c.SetTaskStatus(swarm.SwarmID, id, types.TaskStatusAssigned))
		require.NoError(t, c.SetTaskStatus(swarm.SwarmID, id, types.TaskStatusRunning))
		require.NoError(t, c.SetTaskStatus(swarm.SwarmID, id, types.TaskStatusCompleted))
	}

	report, err := c.Integrate("")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"t1", "t4"}, report.SuccessfulIntegrations)
	assert.Empty(t, report.FailedIntegrations)
	assert.Equal(t, 2, swarm.IntegrationStatus.SuccessfulIntegrations)

	status := c.Status()
	assert.Equal(t, 2, status.PerformanceMetrics["successful_integrations"])
}

func TestIntegrateUnknownSwarm(t *testing.T) {
	c := testController(t, nil)
	_, err := c.Integrate("swarm-nope")
	assert.ErrorIs(t, err, ErrSwarmNotFound)
}

func TestScale(t *testing.T) {
	c := testController(t, func(cfg *types.SwarmConfig) {
		cfg.InstanceCount = 2
		cfg.MaxInstances = 5
	})

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)
	initial := len(activeInstances(swarm))

	require.NoError(t, c.Scale(swarm.SwarmID, initial+2))
	assert.Len(t, activeInstances(swarm), initial+2)
	assert.Equal(t, types.SwarmStatusActive, swarm.Status)

	require.NoError(t, c.Scale(swarm.SwarmID, initial))
	assert.Len(t, activeInstances(swarm), initial)

	err = c.Scale(swarm.SwarmID, 100)
	assert.Error(t, err)
}

func TestStopSwarm(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	require.NoError(t, c.Stop(swarm.SwarmID))
	assert.Equal(t, types.SwarmStatusStopped, swarm.Status)
	for _, inst := range swarm.Instances {
		assert.Equal(t, types.InstanceStatusStopped, inst.Status)
	}

	// Stopped is terminal
	err = c.Stop(swarm.SwarmID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEmergencyShutdownBlocksEverything(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	c.EmergencyShutdown()
	assert.True(t, c.ShutdownEngaged())
	assert.Equal(t, types.SwarmStatusStopped, swarm.Status)

	_, err = c.Launch(sampleTasks())
	assert.ErrorIs(t, err, ErrSafetyViolation)
	_, err = c.Distribute(sampleTasks())
	assert.ErrorIs(t, err, ErrSafetyViolation)
	_, err = c.Monitor(swarm.SwarmID)
	assert.ErrorIs(t, err, ErrSafetyViolation)
	_, err = c.Integrate(swarm.SwarmID)
	assert.ErrorIs(t, err, ErrSafetyViolation)
	_, err = c.HandleFailure(&types.InstanceFailure{InstanceID: "x"})
	assert.ErrorIs(t, err, ErrSafetyViolation)
	err = c.RecordHeartbeat(swarm.SwarmID, "x", time.Now())
	assert.ErrorIs(t, err, ErrSafetyViolation)
	err = c.Scale(swarm.SwarmID, 2)
	assert.ErrorIs(t, err, ErrSafetyViolation)

	// Idempotent
	c.EmergencyShutdown()
	assert.True(t, c.ShutdownEngaged())
}

func TestRecordHeartbeatKeepsLatest(t *testing.T) {
	c := testController(t, nil)

	swarm, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	var instanceID string
	for id := range swarm.Instances {
		instanceID = id
		break
	}

	now := time.Now()
	require.NoError(t, c.RecordHeartbeat(swarm.SwarmID, instanceID, now))
	// An older heartbeat never rewinds the timestamp
	require.NoError(t, c.RecordHeartbeat(swarm.SwarmID, instanceID, now.Add(-time.Minute)))
	assert.Equal(t, now, swarm.Instances[instanceID].LastHeartbeat)

	err = c.RecordHeartbeat(swarm.SwarmID, "instance-nope", now)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestControllerStatusRecord(t *testing.T) {
	c := testController(t, nil)

	_, err := c.Launch(sampleTasks())
	require.NoError(t, err)

	status := c.Status()
	assert.Equal(t, "OrchestrationController", status.Name)
	assert.Equal(t, 1, status.PerformanceMetrics["swarms_launched"])
	assert.Equal(t, 1, status.PerformanceMetrics["active_swarms"])
	assert.True(t, c.Healthy())

	inds := c.Indicators()
	require.NotEmpty(t, inds)
	assert.Equal(t, "swarm_performance", inds[0].Name)
}
