package planner

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

func task(id string, deps ...string) *types.Task {
	return &types.Task{
		ID:                id,
		Description:       "test task " + id,
		Dependencies:      deps,
		EstimatedDuration: 30 * time.Minute,
		ComplexityScore:   1.0,
		Status:            types.TaskStatusPending,
	}
}

func TestPlanRejectsEmptyBatch(t *testing.T) {
	p := New()
	_, err := p.Plan(nil, config.Default())
	assert.Error(t, err)
}

func TestParallelGroupsLinearChainWithIndependent(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("t1"),
		task("t2", "t1"),
		task("t3", "t2"),
		task("t4"),
	}

	groups := p.ParallelGroups(BuildDependencyGraph(tasks))

	require.Len(t, groups, 3)
	assert.ElementsMatch(t, []string{"t1", "t4"}, groups[0])
	assert.ElementsMatch(t, []string{"t2"}, groups[1])
	assert.ElementsMatch(t, []string{"t3"}, groups[2])
}

// No task may appear in a group after a task that depends on it
func TestParallelGroupsOrdering(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
		task("e"),
	}

	graph := BuildDependencyGraph(tasks)
	groups := p.ParallelGroups(graph)

	level := map[string]int{}
	for i, group := range groups {
		for _, id := range group {
			level[id] = i
		}
	}

	for id, deps := range graph {
		for _, dep := range deps {
			assert.Less(t, level[dep], level[id],
				"%s depends on %s but is not in a later group", id, dep)
		}
	}
}

func TestParallelGroupsBreaksCycle(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("a", "b"),
		task("b", "a"),
		task("c"),
	}

	groups := p.ParallelGroups(BuildDependencyGraph(tasks))

	// All tasks emitted despite the cycle
	var all []string
	for _, g := range groups {
		all = append(all, g...)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, all)
}

func TestParallelGroupsIgnoresExternalDependencies(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("t1", "not-in-batch"),
		task("t2", "t1"),
	}

	groups := p.ParallelGroups(BuildDependencyGraph(tasks))

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"t1"}, groups[0])
}

func TestDependencyGroupsComponents(t *testing.T) {
	tasks := []*types.Task{
		task("t1"),
		task("t2", "t1"),
		task("t3", "t2"),
		task("t4"),
	}

	groups := DependencyGroups(BuildDependencyGraph(tasks))

	require.Len(t, groups, 2)
	sizes := []int{len(groups[0]), len(groups[1])}
	assert.ElementsMatch(t, []int{3, 1}, sizes)
}

func TestOptimalInstanceCount(t *testing.T) {
	tests := []struct {
		name     string
		tasks    int
		maxGroup int
		cfg      func(*types.SwarmConfig)
		want     int
	}{
		{
			name: "bounded by dependency group", tasks: 10, maxGroup: 2,
			cfg:  func(c *types.SwarmConfig) { c.InstanceCount = 5 },
			want: 2,
		},
		{
			name: "bounded by configured count", tasks: 10, maxGroup: 8,
			cfg:  func(c *types.SwarmConfig) { c.InstanceCount = 3 },
			want: 3,
		},
		{
			name: "bounded by task count", tasks: 2, maxGroup: 2,
			cfg:  func(c *types.SwarmConfig) { c.InstanceCount = 5 },
			want: 2,
		},
		{
			name: "raised to min instances", tasks: 1, maxGroup: 1,
			cfg:  func(c *types.SwarmConfig) { c.MinInstances = 2; c.InstanceCount = 3 },
			want: 2,
		},
		{
			name: "bounded by max instances", tasks: 40, maxGroup: 40,
			cfg:  func(c *types.SwarmConfig) { c.InstanceCount = 50; c.MaxInstances = 8 },
			want: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.cfg(cfg)

			tasks := make([]*types.Task, tt.tasks)
			for i := range tasks {
				tasks[i] = task(string(rune('a' + i)))
			}
			group := make([]string, tt.maxGroup)
			for i := range group {
				group[i] = string(rune('a' + i))
			}

			got := OptimalInstanceCount(tasks, [][]string{group}, cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanAssignsEveryTaskExactlyOnce(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("t1"),
		task("t2", "t1"),
		task("t3", "t2"),
		task("t4"),
	}

	plan, err := p.Plan(tasks, config.Default())
	require.NoError(t, err)

	assert.Equal(t, 4, plan.TotalTasks)
	assert.Equal(t, types.StrategyDependencyAware, plan.StrategyUsed)
	assert.NotEmpty(t, plan.PlanID)

	seen := map[string]int{}
	total := 0
	for _, ids := range plan.InstanceAssignments {
		total += len(ids)
		for _, id := range ids {
			seen[id]++
		}
	}
	assert.Equal(t, plan.TotalTasks, total)
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		assert.Equal(t, 1, seen[id], "task %s assigned exactly once", id)
	}
}

func TestPlanScenarioInstanceCount(t *testing.T) {
	p := New()
	tasks := []*types.Task{
		task("t1"),
		task("t2", "t1"),
		task("t3", "t2"),
		task("t4"),
	}

	cfg := config.Default()
	cfg.InstanceCount = 3

	plan, err := p.Plan(tasks, cfg)
	require.NoError(t, err)

	assert.Len(t, plan.InstanceAssignments, 3)
	require.Len(t, plan.ParallelExecutionGroups, 3)
	assert.ElementsMatch(t, []string{"t1", "t4"}, plan.ParallelExecutionGroups[0])
	assert.ElementsMatch(t, []string{"t2"}, plan.ParallelExecutionGroups[1])
	assert.ElementsMatch(t, []string{"t3"}, plan.ParallelExecutionGroups[2])
}

func TestPlanEstimatedCompletionTime(t *testing.T) {
	p := New()
	tasks := []*types.Task{task("t1"), task("t2"), task("t3")}
	tasks[0].EstimatedDuration = 10 * time.Minute
	tasks[1].EstimatedDuration = 20 * time.Minute
	tasks[2].EstimatedDuration = 30 * time.Minute

	cfg := config.Default()
	cfg.InstanceCount = 1
	cfg.MinInstances = 1

	plan, err := p.Plan(tasks, cfg)
	require.NoError(t, err)

	// One slot, three tasks: 3 x mean(20m) = 60m
	assert.Equal(t, 60*time.Minute, plan.EstimatedCompletionTime)
}

func TestCriticalPathFollowsLongestChain(t *testing.T) {
	tasks := []*types.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"),
	}
	tasks[0].EstimatedDuration = 10 * time.Minute
	tasks[1].EstimatedDuration = 10 * time.Minute
	tasks[2].EstimatedDuration = 10 * time.Minute
	tasks[3].EstimatedDuration = 5 * time.Minute

	path := CriticalPath(tasks, BuildDependencyGraph(tasks))
	assert.Equal(t, []string{"a", "b", "c"}, path)
}
