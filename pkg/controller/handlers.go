package controller

import (
	"fmt"
	"time"

	"github.com/nkllon/swarmctl/pkg/protocol"
	"github.com/nkllon/swarmctl/pkg/types"
)

// RegisterDefaultHandlers binds the default command patterns to
// controller operations, making the command channel executable end to
// end: run task, stop instance, status swarm, scale instances, and
// sync branch.
func RegisterDefaultHandlers(h *protocol.Handler, c *Controller) {
	h.RegisterHandler("run", "task", c.handleRunTask)
	h.RegisterHandler("stop", "instance", c.handleStopInstance)
	h.RegisterHandler("status", "swarm", c.handleStatusSwarm)
	h.RegisterHandler("scale", "instances", c.handleScaleInstances)
	h.RegisterHandler("sync", "branch", c.handleSyncBranch)
}

func (c *Controller) handleRunTask(cmd *protocol.Command) (*protocol.ActionResult, error) {
	taskID := cmd.Params["task_id"].String()

	swarmID := c.CurrentSwarmID()
	if swarmID == "" {
		return &protocol.ActionResult{
			Success: false,
			Message: "No active swarm; launch one first",
		}, nil
	}

	if err := c.SetTaskStatus(swarmID, taskID, types.TaskStatusAssigned); err != nil {
		return nil, err
	}
	if err := c.SetTaskStatus(swarmID, taskID, types.TaskStatusRunning); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Task %s started", taskID),
		Data: map[string]any{
			"task_id":  taskID,
			"swarm_id": swarmID,
		},
		SideEffects: []string{fmt.Sprintf("task %s transitioned to running", taskID)},
	}, nil
}

func (c *Controller) handleStopInstance(cmd *protocol.Command) (*protocol.ActionResult, error) {
	instanceID := cmd.Params["instance_id"].String()

	if err := c.StopInstance("", instanceID); err != nil {
		return nil, err
	}

	mode := "immediate"
	for _, m := range cmd.Modifiers {
		if m == "graceful" {
			mode = "graceful"
		}
	}

	return &protocol.ActionResult{
		Success:     true,
		Message:     fmt.Sprintf("Instance %s stopped (%s)", instanceID, mode),
		SideEffects: []string{fmt.Sprintf("instance %s terminated", instanceID)},
	}, nil
}

func (c *Controller) handleStatusSwarm(cmd *protocol.Command) (*protocol.ActionResult, error) {
	swarm, err := c.Monitor("")
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"swarm_id":         swarm.SwarmID,
		"status":           string(swarm.Status),
		"instances":        len(swarm.Instances),
		"active_instances": swarm.PerformanceMetrics.ActiveInstances,
		"completed_tasks":  swarm.PerformanceMetrics.CompletedTasks,
		"failed_tasks":     swarm.PerformanceMetrics.FailedTasks,
		"error_rate":       swarm.PerformanceMetrics.ErrorRate,
	}

	detailed := false
	for _, m := range cmd.Modifiers {
		if m == "detailed" {
			detailed = true
		}
	}
	if detailed {
		perInstance := make(map[string]any, len(swarm.Instances))
		for id, inst := range swarm.Instances {
			perInstance[id] = string(inst.Status)
		}
		data["instance_status"] = perInstance
		data["uptime"] = time.Since(swarm.StartTime).String()
	}

	return &protocol.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Swarm %s is %s", swarm.SwarmID, swarm.Status),
		Data:    data,
	}, nil
}

func (c *Controller) handleScaleInstances(cmd *protocol.Command) (*protocol.ActionResult, error) {
	count := int(cmd.Params["count"].Int)
	if cmd.Params["count"].Kind != protocol.ParamInt {
		return &protocol.ActionResult{
			Success: false,
			Message: "Parameter count must be an integer",
		}, nil
	}

	if err := c.Scale("", count); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		Success:     true,
		Message:     fmt.Sprintf("Scaled to %d instances", count),
		SideEffects: []string{fmt.Sprintf("swarm resized to %d instances", count)},
	}, nil
}

func (c *Controller) handleSyncBranch(cmd *protocol.Command) (*protocol.ActionResult, error) {
	branch := cmd.Params["branch_name"].String()

	// Branch synchronization belongs to the integration collaborator;
	// the controller runs an integration pass on the current swarm and
	// reports how many completed tasks it integrated.
	report, err := c.Integrate("")
	if err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Branch %s synchronized", branch),
		Data: map[string]any{
			"branch":     branch,
			"integrated": len(report.SuccessfulIntegrations),
		},
		SideEffects: []string{report.Summary},
	}, nil
}
