// Package planner computes task distribution plans: dependency
// analysis, parallel execution grouping, instance sizing, and slot
// assignment. The planner is pure; it never mutates swarm state.
package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/metrics"
	"github.com/nkllon/swarmctl/pkg/types"
)

// SlotID returns the identifier for an instance slot
func SlotID(i int) string {
	return fmt.Sprintf("instance-%d", i)
}

// Planner builds distribution plans from task batches
type Planner struct {
	logger zerolog.Logger
}

// New creates a planner
func New() *Planner {
	return &Planner{logger: log.WithComponent("planner")}
}

// Plan computes a distribution plan for the given tasks under the
// given configuration. All four strategies use round-robin: tasks are
// ordered by parallel group (input order within a group) and task i
// of that order goes to slot i mod N, so tasks in the same parallel
// group land on distinct slots whenever the slot count allows.
func (p *Planner) Plan(tasks []*types.Task, cfg *types.SwarmConfig) (*types.DistributionPlan, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("cannot plan distribution for empty task list")
	}

	timer := metrics.NewTimer()

	graph := BuildDependencyGraph(tasks)
	parallelGroups := p.ParallelGroups(graph)
	dependencyGroups := DependencyGroups(graph)
	instanceCount := OptimalInstanceCount(tasks, dependencyGroups, cfg)

	assignments := make(map[string][]string, instanceCount)
	for i := 0; i < instanceCount; i++ {
		assignments[SlotID(i)] = nil
	}
	level := make(map[string]int, len(tasks))
	for i, group := range parallelGroups {
		for _, id := range group {
			level[id] = i
		}
	}
	ordered := make([]*types.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(a, b int) bool {
		return level[ordered[a].ID] < level[ordered[b].ID]
	})
	for i, task := range ordered {
		slot := SlotID(i % instanceCount)
		assignments[slot] = append(assignments[slot], task.ID)
	}

	maxPerInstance := 0
	for _, ids := range assignments {
		if len(ids) > maxPerInstance {
			maxPerInstance = len(ids)
		}
	}
	var totalDuration time.Duration
	for _, task := range tasks {
		totalDuration += task.EstimatedDuration
	}
	meanDuration := totalDuration / time.Duration(len(tasks))
	estimated := time.Duration(maxPerInstance) * meanDuration

	plan := &types.DistributionPlan{
		PlanID:                  uuid.NewString(),
		TotalTasks:              len(tasks),
		InstanceAssignments:     assignments,
		DependencyGroups:        dependencyGroups,
		EstimatedCompletionTime: estimated,
		ParallelExecutionGroups: parallelGroups,
		CriticalPath:            CriticalPath(tasks, graph),
		CreatedAt:               time.Now(),
		StrategyUsed:            cfg.TaskDistributionStrategy,
	}

	timer.ObserveDuration(metrics.PlanningLatency)
	metrics.TasksDistributed.Add(float64(len(tasks)))

	p.logger.Info().
		Int("task_count", len(tasks)).
		Int("instance_count", instanceCount).
		Int("parallel_groups", len(parallelGroups)).
		Str("strategy", string(cfg.TaskDistributionStrategy)).
		Msg("Distribution plan created")

	return plan, nil
}

// BuildDependencyGraph maps each task ID to its dependency IDs
func BuildDependencyGraph(tasks []*types.Task) map[string][]string {
	graph := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		deps := make([]string, len(task.Dependencies))
		copy(deps, task.Dependencies)
		graph[task.ID] = deps
	}
	return graph
}

// ParallelGroups orders tasks into dependency levels: each group
// holds tasks whose dependencies all lie outside the remaining set.
// When a cycle leaves no task ready, one arbitrary remaining task is
// emitted alone so planning always makes progress.
func (p *Planner) ParallelGroups(graph map[string][]string) [][]string {
	var groups [][]string

	remaining := make(map[string]struct{}, len(graph))
	for id := range graph {
		remaining[id] = struct{}{}
	}

	for len(remaining) > 0 {
		var ready []string
		for id := range remaining {
			blocked := false
			for _, dep := range graph[id] {
				if _, inRemaining := remaining[dep]; inRemaining {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			// Dependency cycle: break it with one arbitrary task
			for id := range remaining {
				ready = []string{id}
				break
			}
			metrics.CycleBreaksTotal.Inc()
			p.logger.Warn().
				Str("task_id", ready[0]).
				Msg("Dependency cycle detected, breaking with arbitrary task")
		}

		groups = append(groups, ready)
		for _, id := range ready {
			delete(remaining, id)
		}
	}

	return groups
}

// DependencyGroups partitions the graph into connected components.
// Tasks joined by any dependency edge, in either direction, share a
// component. The largest component bounds useful parallelism across
// the batch lifetime.
func DependencyGroups(graph map[string][]string) [][]string {
	adjacency := make(map[string][]string, len(graph))
	for id, deps := range graph {
		for _, dep := range deps {
			if _, known := graph[dep]; !known {
				continue // dependency outside the batch
			}
			adjacency[id] = append(adjacency[id], dep)
			adjacency[dep] = append(adjacency[dep], id)
		}
	}

	visited := make(map[string]struct{}, len(graph))
	var groups [][]string

	for id := range graph {
		if _, seen := visited[id]; seen {
			continue
		}

		var component []string
		stack := []string{id}
		visited[id] = struct{}{}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, current)
			for _, neighbor := range adjacency[current] {
				if _, seen := visited[neighbor]; !seen {
					visited[neighbor] = struct{}{}
					stack = append(stack, neighbor)
				}
			}
		}
		groups = append(groups, component)
	}

	return groups
}

// OptimalInstanceCount sizes the swarm:
// min(largest dependency group, instance_count, max_instances,
// task count), raised to at least min_instances.
func OptimalInstanceCount(tasks []*types.Task, dependencyGroups [][]string, cfg *types.SwarmConfig) int {
	maxGroup := 1
	for _, group := range dependencyGroups {
		if len(group) > maxGroup {
			maxGroup = len(group)
		}
	}

	optimal := maxGroup
	if cfg.InstanceCount < optimal {
		optimal = cfg.InstanceCount
	}
	if cfg.MaxInstances < optimal {
		optimal = cfg.MaxInstances
	}
	if len(tasks) < optimal {
		optimal = len(tasks)
	}
	if optimal < cfg.MinInstances {
		optimal = cfg.MinInstances
	}
	return optimal
}

// CriticalPath returns the dependency chain with the largest total
// estimated duration. Cycles are cut: an edge leading back to a task
// already on the path being walked is not followed.
func CriticalPath(tasks []*types.Task, graph map[string][]string) []string {
	durations := make(map[string]time.Duration, len(tasks))
	for _, task := range tasks {
		durations[task.ID] = task.EstimatedDuration
	}

	// Longest cumulative duration ending at each task, memoized.
	// visiting guards against cycles.
	cost := make(map[string]time.Duration, len(tasks))
	next := make(map[string]string, len(tasks))
	visiting := make(map[string]bool, len(tasks))

	var walk func(id string) time.Duration
	walk = func(id string) time.Duration {
		if c, done := cost[id]; done {
			return c
		}
		if visiting[id] {
			return 0
		}
		visiting[id] = true
		defer func() { visiting[id] = false }()

		best := time.Duration(0)
		for _, dep := range graph[id] {
			if _, known := durations[dep]; !known {
				continue
			}
			if c := walk(dep); c > best {
				best = c
				next[id] = dep
			}
		}
		cost[id] = best + durations[id]
		return cost[id]
	}

	var endID string
	var endCost time.Duration
	for _, task := range tasks {
		if c := walk(task.ID); c > endCost {
			endCost = c
			endID = task.ID
		}
	}
	if endID == "" {
		return nil
	}

	// Walk back from the end task, then reverse into execution order
	var reversed []string
	for id := endID; ; {
		reversed = append(reversed, id)
		dep, ok := next[id]
		if !ok {
			break
		}
		id = dep
	}
	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path
}
