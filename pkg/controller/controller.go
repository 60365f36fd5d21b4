// Package controller implements the orchestration controller: swarm
// lifecycle, task distribution, health monitoring, failure recovery,
// and result integration. The controller exclusively owns the
// swarm-state map; all mutation is serialized by one coarse lock.
package controller

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkllon/swarmctl/pkg/config"
	"github.com/nkllon/swarmctl/pkg/events"
	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/metrics"
	"github.com/nkllon/swarmctl/pkg/planner"
	"github.com/nkllon/swarmctl/pkg/rm"
	"github.com/nkllon/swarmctl/pkg/safety"
	"github.com/nkllon/swarmctl/pkg/types"
)

// historyCapacity bounds the distribution and recovery histories
const historyCapacity = rm.IndicatorCapacity

// Config holds the collaborators for creating a Controller. Only
// SwarmConfig is required. Provisioner and Integration default to
// local implementations; without Events no events are published, and
// without KillSwitch no kill switch is attached.
type Config struct {
	SwarmConfig   *types.SwarmConfig
	Provisioner   Provisioner
	Integration   IntegrationStrategy
	Events        *events.Broker
	KillSwitch    *safety.KillSwitch
	WorkspaceRoot string
}

// Controller is the central coordination hub for distributed
// orchestration. It implements the reflective module contract.
type Controller struct {
	*rm.Base

	cfg         *types.SwarmConfig
	planner     *planner.Planner
	provisioner Provisioner
	integrator  IntegrationStrategy
	broker      *events.Broker
	logger      zerolog.Logger

	mu                  sync.Mutex
	shutdown            bool
	swarms              map[string]*types.SwarmState
	currentSwarmID      string
	distributionHistory *rm.Ring[*types.DistributionPlan]
	recoveryHistory     *rm.Ring[*types.RecoveryPlan]
	perf                performanceCounters
}

var _ rm.Module = (*Controller)(nil)

type performanceCounters struct {
	swarmsLaunched         int
	tasksDistributed       int
	successfulIntegrations int
	failedRecoveries       int
	avgStartupSeconds      float64
}

// New creates a controller. The swarm configuration is validated up
// front; invalid bounds reject the controller outright.
func New(cfg *Config) (*Controller, error) {
	if cfg == nil || cfg.SwarmConfig == nil {
		return nil, fmt.Errorf("swarm config is required")
	}
	if err := config.Validate(cfg.SwarmConfig); err != nil {
		return nil, err
	}

	c := &Controller{
		Base:                rm.NewBase("OrchestrationController", "1.0.0"),
		cfg:                 cfg.SwarmConfig,
		planner:             planner.New(),
		provisioner:         cfg.Provisioner,
		integrator:          cfg.Integration,
		broker:              cfg.Events,
		logger:              log.WithComponent("controller"),
		swarms:              make(map[string]*types.SwarmState),
		distributionHistory: rm.NewRing[*types.DistributionPlan](historyCapacity),
		recoveryHistory:     rm.NewRing[*types.RecoveryPlan](historyCapacity),
	}

	if c.provisioner == nil {
		c.provisioner = NewLocalProvisioner(cfg.WorkspaceRoot)
	}
	if c.integrator == nil {
		c.integrator = BaselineStrategy{}
	}
	if cfg.KillSwitch != nil {
		cfg.KillSwitch.RegisterShutdownCallback(c.EmergencyShutdown)
	}

	c.logger.Info().
		Int("instance_count", cfg.SwarmConfig.InstanceCount).
		Str("strategy", string(cfg.SwarmConfig.TaskDistributionStrategy)).
		Msg("Orchestration controller initialized")

	return c, nil
}

// Launch starts a swarm for the given task batch: plan the
// distribution, materialize one instance per non-empty slot, and
// activate the swarm.
func (c *Controller) Launch(tasks []*types.Task) (*types.SwarmState, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, ErrSafetyViolation
	}
	if len(tasks) == 0 {
		return nil, ErrEmptyTaskList
	}

	swarm, err := c.launch(tasks)
	if err != nil {
		c.AddIndicator("swarm_launch", rm.StatusCritical,
			fmt.Sprintf("Failed to launch swarm: %v", err),
			map[string]any{"error": err.Error(), "task_count": len(tasks)})
		c.logger.Error().Err(err).Msg("Swarm launch failed")
		return nil, fmt.Errorf("swarm launch failed: %w", err)
	}

	launchSeconds := time.Since(start).Seconds()
	c.perf.swarmsLaunched++
	c.perf.avgStartupSeconds = runningAverage(
		c.perf.avgStartupSeconds, c.perf.swarmsLaunched, launchSeconds)

	metrics.SwarmsLaunched.Inc()
	metrics.SwarmLaunchDuration.Observe(launchSeconds)
	metrics.SwarmsActive.Set(float64(len(c.swarms)))

	c.AddIndicator("swarm_launch", rm.StatusHealthy,
		fmt.Sprintf("Successfully launched swarm %s with %d instances",
			swarm.SwarmID, len(swarm.Instances)),
		map[string]any{
			"swarm_id":       swarm.SwarmID,
			"instance_count": len(swarm.Instances),
			"task_count":     len(tasks),
			"launch_seconds": launchSeconds,
		})
	c.publish(&events.Event{
		Type:    events.EventSwarmLaunched,
		SwarmID: swarm.SwarmID,
		Message: fmt.Sprintf("swarm launched with %d instances", len(swarm.Instances)),
	})
	c.NoteActivity()

	c.logger.Info().
		Str("swarm_id", swarm.SwarmID).
		Int("instances", len(swarm.Instances)).
		Float64("launch_seconds", launchSeconds).
		Msg("Swarm launched")

	return swarm, nil
}

// launch does the actual work with the lock held
func (c *Controller) launch(tasks []*types.Task) (*types.SwarmState, error) {
	if err := c.ensureDeploymentTargets(); err != nil {
		return nil, err
	}

	swarm := &types.SwarmState{
		SwarmID:         fmt.Sprintf("swarm-%.8s", uuid.NewString()),
		Instances:       make(map[string]*types.Instance),
		TaskAssignments: make(map[string][]string),
		ExecutionStatus: make(map[string]types.TaskStatus, len(tasks)),
		StartTime:       time.Now(),
		LastUpdated:     time.Now(),
		Config:          c.cfg,
		Status:          types.SwarmStatusInitializing,
	}
	for _, task := range tasks {
		swarm.ExecutionStatus[task.ID] = types.TaskStatusPending
	}

	plan, err := c.distribute(tasks)
	if err != nil {
		return nil, err
	}

	instances, err := c.createInstances(plan)
	if err != nil {
		return nil, err
	}

	for _, inst := range instances {
		swarm.Instances[inst.InstanceID] = inst
	}
	swarm.TaskAssignments = plan.InstanceAssignments
	if err := transitionSwarm(swarm, types.SwarmStatusActive); err != nil {
		return nil, err
	}

	c.swarms[swarm.SwarmID] = swarm
	c.currentSwarmID = swarm.SwarmID

	return swarm, nil
}

// ensureDeploymentTargets synthesizes a local target for
// multi-instance configs that name none
func (c *Controller) ensureDeploymentTargets() error {
	if c.cfg.InstanceCount > 1 && len(c.cfg.DeploymentTargets) == 0 {
		c.cfg.DeploymentTargets = []types.DeploymentTarget{
			{Name: "local", Type: "local"},
		}
	}
	return nil
}

// createInstances materializes one instance per non-empty plan slot
func (c *Controller) createInstances(plan *types.DistributionPlan) ([]*types.Instance, error) {
	slots := make([]string, 0, len(plan.InstanceAssignments))
	for slot := range plan.InstanceAssignments {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var instances []*types.Instance
	for _, slot := range slots {
		taskIDs := plan.InstanceAssignments[slot]
		if len(taskIDs) == 0 {
			continue
		}

		branch := fmt.Sprintf("feature/%s", slot)
		workspace, err := c.provisioner.CreateWorkspace(slot, branch)
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace for %s: %w", slot, err)
		}
		pid, endpoint, err := c.provisioner.SpawnProcess(slot, workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to spawn process for %s: %w", slot, err)
		}

		inst := &types.Instance{
			InstanceID:            slot,
			BranchName:            branch,
			WorkspacePath:         workspace,
			SourceRepository:      ".",
			ResourceAllocation:    &c.cfg.ResourceLimits,
			TaskAssignments:       taskIDs,
			CommunicationEndpoint: endpoint,
			IsolationLevel:        types.IsolationWorkspace,
			Status:                types.InstanceStatusActive,
			StartTime:             time.Now(),
			ProcessID:             pid,
			PerformanceMetrics:    make(map[string]any),
		}
		if c.cfg.EnableVisualID {
			inst.VisualIdentifier = fmt.Sprintf("color-%d", len(instances)+1)
		}
		instances = append(instances, inst)

		c.publish(&events.Event{
			Type:       events.EventInstanceStarted,
			InstanceID: slot,
			Message:    fmt.Sprintf("instance started on %s", endpoint),
		})
	}

	return instances, nil
}

// Distribute computes a distribution plan for the given tasks without
// touching swarm state
func (c *Controller) Distribute(tasks []*types.Task) (*types.DistributionPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, ErrSafetyViolation
	}

	return c.distribute(tasks)
}

// distribute runs the planner and records the plan, lock held
func (c *Controller) distribute(tasks []*types.Task) (*types.DistributionPlan, error) {
	plan, err := c.planner.Plan(tasks, c.cfg)
	if err != nil {
		c.AddIndicator("task_distribution", rm.StatusCritical,
			fmt.Sprintf("Failed to create distribution plan: %v", err),
			map[string]any{"error": err.Error(), "task_count": len(tasks)})
		return nil, fmt.Errorf("task distribution failed: %w", err)
	}

	c.distributionHistory.Append(plan)
	c.perf.tasksDistributed += len(tasks)

	c.AddIndicator("task_distribution", rm.StatusHealthy,
		fmt.Sprintf("Created distribution plan for %d tasks across %d instances",
			len(tasks), len(plan.InstanceAssignments)),
		map[string]any{
			"task_count":      len(tasks),
			"instance_count":  len(plan.InstanceAssignments),
			"parallel_groups": len(plan.ParallelExecutionGroups),
			"strategy":        string(plan.StrategyUsed),
		})
	c.NoteActivity()

	return plan, nil
}

// Monitor refreshes and returns swarm state: heartbeat aging forces
// silent instances into the error state, and aggregate metrics are
// recomputed. The swarm's last-updated timestamp never decreases.
func (c *Controller) Monitor(swarmID string) (*types.SwarmState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return nil, err
	}

	c.updateInstanceHealth(swarm)
	c.updateSwarmMetrics(swarm)

	if now := time.Now(); now.After(swarm.LastUpdated) {
		swarm.LastUpdated = now
	}

	c.NoteActivity()
	return swarm, nil
}

// updateInstanceHealth ages out instances whose heartbeat is older
// than twice the health check interval. An absent heartbeat is no
// signal and never degrades the instance.
func (c *Controller) updateInstanceHealth(swarm *types.SwarmState) {
	maxAge := 2 * time.Duration(c.cfg.HealthCheckInterval) * time.Second
	now := time.Now()

	for _, inst := range swarm.Instances {
		if inst.LastHeartbeat.IsZero() {
			continue
		}
		if now.Sub(inst.LastHeartbeat) > maxAge {
			if inst.Status != types.InstanceStatusError {
				c.logger.Warn().
					Str("instance_id", inst.InstanceID).
					Dur("heartbeat_age", now.Sub(inst.LastHeartbeat)).
					Msg("Instance heartbeat expired")
			}
			inst.Status = types.InstanceStatusError
		}
		inst.PerformanceMetrics["last_health_check"] = now
	}
}

// updateSwarmMetrics recomputes the aggregate counters on a swarm
func (c *Controller) updateSwarmMetrics(swarm *types.SwarmState) {
	m := &swarm.PerformanceMetrics

	completed, failed := 0, 0
	for _, status := range swarm.ExecutionStatus {
		switch status {
		case types.TaskStatusCompleted:
			completed++
		case types.TaskStatusFailed:
			failed++
		}
	}

	active := 0
	for _, inst := range swarm.Instances {
		if inst.Status == types.InstanceStatusActive {
			active++
		}
	}

	m.TotalTasks = len(swarm.ExecutionStatus)
	m.CompletedTasks = completed
	m.FailedTasks = failed
	m.ActiveInstances = active
	if finished := completed + failed; finished > 0 {
		m.ErrorRate = float64(failed) / float64(finished)
	} else {
		m.ErrorRate = 0
	}
	m.LastUpdated = time.Now()

	metrics.InstancesActive.WithLabelValues(string(types.InstanceStatusActive)).Set(float64(active))
}

// RecordHeartbeat is the heartbeat-transport boundary: workers push
// (instance id, timestamp) pairs through it
func (c *Controller) RecordHeartbeat(swarmID, instanceID string, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return err
	}
	inst, ok := swarm.Instances[instanceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}

	if ts.After(inst.LastHeartbeat) {
		inst.LastHeartbeat = ts
	}
	metrics.HeartbeatsTotal.Inc()
	return nil
}

// HandleFailure analyzes an instance failure and produces a recovery
// plan. Non-manual plans trigger an automatic recovery attempt.
func (c *Controller) HandleFailure(failure *types.InstanceFailure) (*types.RecoveryPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, ErrSafetyViolation
	}

	plan := buildRecoveryPlan(failure)
	c.recoveryHistory.Append(plan)
	metrics.RecoveryPlansTotal.WithLabelValues(string(plan.Strategy)).Inc()

	if plan.Strategy != types.RecoveryManual {
		if !c.executeRecovery(failure, plan) {
			c.perf.failedRecoveries++
		}
	}

	severity := rm.StatusWarning
	if plan.Strategy == types.RecoveryManual {
		severity = rm.StatusCritical
	}
	c.AddIndicator("failure_recovery", severity,
		fmt.Sprintf("Generated recovery plan for instance %s", failure.InstanceID),
		map[string]any{
			"instance_id":       failure.InstanceID,
			"failure_type":      string(failure.FailureType),
			"recovery_strategy": string(plan.Strategy),
			"affected_tasks":    len(failure.AffectedTasks),
		})
	c.publish(&events.Event{
		Type:       events.EventRecoveryPlanned,
		InstanceID: failure.InstanceID,
		Message:    fmt.Sprintf("recovery strategy: %s", plan.Strategy),
	})
	c.NoteActivity()

	c.logger.Info().
		Str("instance_id", failure.InstanceID).
		Str("strategy", string(plan.Strategy)).
		Msg("Recovery plan generated")

	return plan, nil
}

// buildRecoveryPlan selects the recovery strategy:
// unrecoverable or repeat failures are manual; timeouts restart;
// resource exhaustion scales up; everything else reassigns.
func buildRecoveryPlan(failure *types.InstanceFailure) *types.RecoveryPlan {
	repeatAttempt := failure.RecoveryAttempts > 0

	var strategy types.RecoveryStrategy
	switch {
	case !failure.IsRecoverable || repeatAttempt:
		strategy = types.RecoveryManual
	case failure.FailureType == types.FailureTimeout:
		strategy = types.RecoveryRestart
	case failure.FailureType == types.FailureResource:
		strategy = types.RecoveryScaleUp
	default:
		strategy = types.RecoveryReassign
	}

	estimated := 15 * time.Minute
	if strategy == types.RecoveryRestart {
		estimated = 5 * time.Minute
	}

	return &types.RecoveryPlan{
		PlanID:                uuid.NewString(),
		FailedInstance:        failure.InstanceID,
		Strategy:              strategy,
		TaskReassignments:     make(map[string]string),
		EstimatedRecoveryTime: estimated,
		RequiredActions: []string{
			fmt.Sprintf("Execute %s recovery for %s", strategy, failure.InstanceID),
		},
		CreatedAt: time.Now(),
	}
}

// executeRecovery applies an automatic recovery plan, lock held.
// Returns false when the failed instance cannot be located or the
// strategy cannot be applied.
func (c *Controller) executeRecovery(failure *types.InstanceFailure, plan *types.RecoveryPlan) bool {
	swarm, inst := c.locateInstance(failure.InstanceID)
	if swarm == nil {
		return false
	}
	inst.Status = types.InstanceStatusError

	switch plan.Strategy {
	case types.RecoveryRestart:
		inst.Status = types.InstanceStatusStarting
		inst.LastHeartbeat = time.Time{}
		return true

	case types.RecoveryReassign:
		target := c.leastLoadedInstance(swarm, failure.InstanceID)
		if target == nil {
			return false
		}
		for _, taskID := range failure.AffectedTasks {
			removeTask(swarm.TaskAssignments, failure.InstanceID, taskID)
			swarm.TaskAssignments[target.InstanceID] = append(
				swarm.TaskAssignments[target.InstanceID], taskID)
			target.TaskAssignments = append(target.TaskAssignments, taskID)
			plan.TaskReassignments[taskID] = target.InstanceID
		}
		return true

	case types.RecoveryScaleUp:
		if len(swarm.Instances) >= c.cfg.MaxInstances {
			return false
		}
		replacement, err := c.addInstance(swarm, nil)
		if err != nil {
			return false
		}
		for _, taskID := range failure.AffectedTasks {
			removeTask(swarm.TaskAssignments, failure.InstanceID, taskID)
			swarm.TaskAssignments[replacement.InstanceID] = append(
				swarm.TaskAssignments[replacement.InstanceID], taskID)
			replacement.TaskAssignments = append(replacement.TaskAssignments, taskID)
			plan.TaskReassignments[taskID] = replacement.InstanceID
		}
		return true
	}

	return false
}

// Integrate collects the completed-task set of a swarm and hands it
// to the integration strategy
func (c *Controller) Integrate(swarmID string) (*types.IntegrationReport, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return nil, err
	}

	var completed []string
	for taskID, status := range swarm.ExecutionStatus {
		if status == types.TaskStatusCompleted {
			completed = append(completed, taskID)
		}
	}
	sort.Strings(completed)

	if len(completed) == 0 {
		elapsed := time.Since(start)
		if elapsed <= 0 {
			elapsed = time.Nanosecond
		}
		return &types.IntegrationReport{
			ReportID:        uuid.NewString(),
			IntegrationTime: elapsed,
			CreatedAt:       time.Now(),
			Summary:         "No completed tasks ready for integration",
		}, nil
	}

	report, err := c.integrator.Integrate(swarm.SwarmID, completed)
	if err != nil {
		c.AddIndicator("integration", rm.StatusCritical,
			fmt.Sprintf("Integration failed: %v", err),
			map[string]any{"error": err.Error(), "swarm_id": swarm.SwarmID})
		return nil, fmt.Errorf("integration failed: %w", err)
	}
	report.IntegrationTime = time.Since(start)

	c.perf.successfulIntegrations += len(report.SuccessfulIntegrations)
	swarm.IntegrationStatus.SuccessfulIntegrations += len(report.SuccessfulIntegrations)
	swarm.IntegrationStatus.FailedIntegrations += len(report.FailedIntegrations)
	swarm.IntegrationStatus.LastIntegration = time.Now()

	metrics.IntegrationDuration.Observe(report.IntegrationTime.Seconds())
	metrics.IntegrationsTotal.WithLabelValues("success").Add(float64(len(report.SuccessfulIntegrations)))
	metrics.IntegrationsTotal.WithLabelValues("failed").Add(float64(len(report.FailedIntegrations)))

	severity := rm.StatusHealthy
	if len(report.FailedIntegrations) > 0 {
		severity = rm.StatusWarning
	}
	c.AddIndicator("integration", severity,
		fmt.Sprintf("Integrated %d tasks, %d failed",
			len(report.SuccessfulIntegrations), len(report.FailedIntegrations)),
		map[string]any{
			"successful": len(report.SuccessfulIntegrations),
			"failed":     len(report.FailedIntegrations),
		})
	c.publish(&events.Event{
		Type:    events.EventIntegrationDone,
		SwarmID: swarm.SwarmID,
		Message: report.Summary,
	})
	c.NoteActivity()

	return report, nil
}

// SetTaskStatus transitions one task's execution status, enforcing
// the allowed transition chain
func (c *Controller) SetTaskStatus(swarmID, taskID string, status types.TaskStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return err
	}
	current, ok := swarm.ExecutionStatus[taskID]
	if !ok {
		return fmt.Errorf("task %s not found in swarm %s", taskID, swarm.SwarmID)
	}
	if !types.ValidTaskTransition(current, status) {
		return fmt.Errorf("%w: task %s cannot move %s -> %s",
			ErrInvalidTransition, taskID, current, status)
	}

	swarm.ExecutionStatus[taskID] = status
	if now := time.Now(); now.After(swarm.LastUpdated) {
		swarm.LastUpdated = now
	}

	switch status {
	case types.TaskStatusCompleted:
		c.publish(&events.Event{Type: events.EventTaskCompleted, SwarmID: swarm.SwarmID, TaskID: taskID})
	case types.TaskStatusFailed:
		c.publish(&events.Event{Type: events.EventTaskFailed, SwarmID: swarm.SwarmID, TaskID: taskID})
	case types.TaskStatusAssigned:
		c.publish(&events.Event{Type: events.EventTaskAssigned, SwarmID: swarm.SwarmID, TaskID: taskID})
	}
	return nil
}

// StopInstance transitions an instance to stopped, terminating its
// process through the provisioner
func (c *Controller) StopInstance(swarmID, instanceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return err
	}
	inst, ok := swarm.Instances[instanceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}

	inst.Status = types.InstanceStatusStopping
	if err := c.provisioner.Terminate(inst.ProcessID); err != nil {
		inst.Status = types.InstanceStatusError
		return fmt.Errorf("failed to terminate instance %s: %w", instanceID, err)
	}
	inst.Status = types.InstanceStatusStopped

	c.publish(&events.Event{
		Type:       events.EventInstanceStopped,
		SwarmID:    swarm.SwarmID,
		InstanceID: instanceID,
	})
	c.NoteActivity()
	return nil
}

// Scale resizes a swarm to the target instance count within the
// configured bounds, passing through the scaling state
func (c *Controller) Scale(swarmID string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return err
	}
	if count < c.cfg.MinInstances || count > c.cfg.MaxInstances {
		return fmt.Errorf("target count %d outside configured bounds [%d, %d]",
			count, c.cfg.MinInstances, c.cfg.MaxInstances)
	}

	if err := transitionSwarm(swarm, types.SwarmStatusScaling); err != nil {
		return err
	}

	for len(activeInstances(swarm)) < count {
		if _, err := c.addInstance(swarm, nil); err != nil {
			swarm.Status = types.SwarmStatusError
			return err
		}
	}
	for {
		active := activeInstances(swarm)
		if len(active) <= count {
			break
		}
		victim := active[len(active)-1]
		victim.Status = types.InstanceStatusStopping
		if err := c.provisioner.Terminate(victim.ProcessID); err == nil {
			victim.Status = types.InstanceStatusStopped
		} else {
			victim.Status = types.InstanceStatusError
		}
	}

	if err := transitionSwarm(swarm, types.SwarmStatusActive); err != nil {
		return err
	}
	if now := time.Now(); now.After(swarm.LastUpdated) {
		swarm.LastUpdated = now
	}

	c.publish(&events.Event{
		Type:    events.EventSwarmScaled,
		SwarmID: swarm.SwarmID,
		Message: fmt.Sprintf("scaled to %d instances", count),
	})
	c.NoteActivity()
	return nil
}

// Stop gracefully stops a swarm: stopping -> stopped
func (c *Controller) Stop(swarmID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrSafetyViolation
	}

	swarm, err := c.findSwarm(swarmID)
	if err != nil {
		return err
	}
	if err := transitionSwarm(swarm, types.SwarmStatusStopping); err != nil {
		return err
	}

	for _, inst := range swarm.Instances {
		if inst.Status == types.InstanceStatusStopped {
			continue
		}
		inst.Status = types.InstanceStatusStopping
		if err := c.provisioner.Terminate(inst.ProcessID); err == nil {
			inst.Status = types.InstanceStatusStopped
		}
	}

	if err := transitionSwarm(swarm, types.SwarmStatusStopped); err != nil {
		return err
	}

	c.publish(&events.Event{Type: events.EventSwarmStopped, SwarmID: swarm.SwarmID})
	c.NoteActivity()
	return nil
}

// EmergencyShutdown places the controller into its terminal state:
// every swarm is forced to stopped and every subsequent operation
// fails fast with a safety violation.
func (c *Controller) EmergencyShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return
	}
	c.shutdown = true

	for _, swarm := range c.swarms {
		swarm.Status = types.SwarmStatusStopped
		for _, inst := range swarm.Instances {
			inst.Status = types.InstanceStatusStopped
		}
	}

	c.AddIndicator("emergency_shutdown", rm.StatusCritical,
		"Emergency shutdown engaged; all operations refused", nil)
	c.publish(&events.Event{
		Type:    events.EventShutdownDeclared,
		Message: "controller emergency shutdown",
	})
	c.logger.Error().Msg("Emergency shutdown engaged")
}

// ShutdownEngaged reports whether emergency shutdown has fired
func (c *Controller) ShutdownEngaged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// CurrentSwarmID returns the most recently launched swarm's id
func (c *Controller) CurrentSwarmID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSwarmID
}

// Helpers, lock held

func (c *Controller) findSwarm(swarmID string) (*types.SwarmState, error) {
	if swarmID == "" {
		swarmID = c.currentSwarmID
	}
	swarm, ok := c.swarms[swarmID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSwarmNotFound, swarmID)
	}
	return swarm, nil
}

func (c *Controller) locateInstance(instanceID string) (*types.SwarmState, *types.Instance) {
	for _, swarm := range c.swarms {
		if inst, ok := swarm.Instances[instanceID]; ok {
			return swarm, inst
		}
	}
	return nil, nil
}

func (c *Controller) leastLoadedInstance(swarm *types.SwarmState, exclude string) *types.Instance {
	var best *types.Instance
	bestLoad := int(^uint(0) >> 1)
	ids := make([]string, 0, len(swarm.Instances))
	for id := range swarm.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		inst := swarm.Instances[id]
		if id == exclude || inst.Status == types.InstanceStatusStopped ||
			inst.Status == types.InstanceStatusError {
			continue
		}
		if load := len(swarm.TaskAssignments[id]); load < bestLoad {
			bestLoad = load
			best = inst
		}
	}
	return best
}

// addInstance materializes a new instance slot on an existing swarm
func (c *Controller) addInstance(swarm *types.SwarmState, taskIDs []string) (*types.Instance, error) {
	slot := planner.SlotID(len(swarm.Instances))
	for swarm.Instances[slot] != nil {
		slot = slot + "x"
	}

	branch := fmt.Sprintf("feature/%s", slot)
	workspace, err := c.provisioner.CreateWorkspace(slot, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace for %s: %w", slot, err)
	}
	pid, endpoint, err := c.provisioner.SpawnProcess(slot, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn process for %s: %w", slot, err)
	}

	inst := &types.Instance{
		InstanceID:            slot,
		BranchName:            branch,
		WorkspacePath:         workspace,
		SourceRepository:      ".",
		ResourceAllocation:    &c.cfg.ResourceLimits,
		TaskAssignments:       taskIDs,
		CommunicationEndpoint: endpoint,
		IsolationLevel:        types.IsolationWorkspace,
		Status:                types.InstanceStatusActive,
		StartTime:             time.Now(),
		ProcessID:             pid,
		PerformanceMetrics:    make(map[string]any),
	}
	swarm.Instances[slot] = inst
	if _, ok := swarm.TaskAssignments[slot]; !ok {
		swarm.TaskAssignments[slot] = append([]string(nil), taskIDs...)
	}

	c.publish(&events.Event{
		Type:       events.EventInstanceStarted,
		SwarmID:    swarm.SwarmID,
		InstanceID: slot,
	})
	return inst, nil
}

func activeInstances(swarm *types.SwarmState) []*types.Instance {
	ids := make([]string, 0, len(swarm.Instances))
	for id := range swarm.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var active []*types.Instance
	for _, id := range ids {
		inst := swarm.Instances[id]
		if inst.Status != types.InstanceStatusStopped && inst.Status != types.InstanceStatusError {
			active = append(active, inst)
		}
	}
	return active
}

func removeTask(assignments map[string][]string, instanceID, taskID string) {
	ids := assignments[instanceID]
	for i, id := range ids {
		if id == taskID {
			assignments[instanceID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (c *Controller) publish(ev *events.Event) {
	if c.broker != nil {
		c.broker.Publish(ev)
	}
}

func runningAverage(current float64, count int, value float64) float64 {
	if count <= 0 {
		return value
	}
	return (current*float64(count-1) + value) / float64(count)
}

// Reflective module implementation

// Status returns the controller status record
func (c *Controller) Status() rm.ModuleStatus {
	c.mu.Lock()
	perf := c.perf
	swarmCount := len(c.swarms)
	distHistory := c.distributionHistory.Len()
	recHistory := c.recoveryHistory.Len()
	c.mu.Unlock()

	return rm.ModuleStatus{
		Name:             c.Name(),
		Version:          c.Version(),
		State:            c.State(),
		Uptime:           c.Uptime(),
		LastActivity:     c.LastActivity(),
		HealthIndicators: c.Indicators(),
		PerformanceMetrics: map[string]any{
			"swarms_launched":           perf.swarmsLaunched,
			"tasks_distributed":         perf.tasksDistributed,
			"successful_integrations":   perf.successfulIntegrations,
			"failed_recoveries":         perf.failedRecoveries,
			"average_swarm_startup":     perf.avgStartupSeconds,
			"active_swarms":             swarmCount,
			"distribution_history_size": distHistory,
			"recovery_history_size":     recHistory,
		},
	}
}

// Indicators returns health indicators, most recent first, with a
// synthesized swarm-performance indicator: warning above a 10%
// average error rate, critical above 30%.
func (c *Controller) Indicators() []rm.HealthIndicator {
	c.mu.Lock()
	swarmCount := len(c.swarms)
	launched := c.perf.swarmsLaunched
	distributed := c.perf.tasksDistributed
	var errorRateSum float64
	for _, swarm := range c.swarms {
		errorRateSum += swarm.PerformanceMetrics.ErrorRate
	}
	c.mu.Unlock()

	status := rm.StatusHealthy
	if swarmCount > 0 {
		avg := errorRateSum / float64(swarmCount)
		if avg > 0.1 {
			status = rm.StatusWarning
		}
		if avg > 0.3 {
			status = rm.StatusCritical
		}
	}

	performance := rm.HealthIndicator{
		Name:      "swarm_performance",
		Status:    status,
		Message:   fmt.Sprintf("Managing %d active swarms", swarmCount),
		Timestamp: time.Now(),
		Details: map[string]any{
			"active_swarms":         swarmCount,
			"total_swarms_launched": launched,
			"tasks_distributed":     distributed,
		},
	}

	return append([]rm.HealthIndicator{performance}, c.Base.Indicators()...)
}

// DistributionHistory returns recorded plans, oldest first
func (c *Controller) DistributionHistory() []*types.DistributionPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distributionHistory.Oldest()
}

// RecoveryHistory returns recorded recovery plans, oldest first
func (c *Controller) RecoveryHistory() []*types.RecoveryPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoveryHistory.Oldest()
}
