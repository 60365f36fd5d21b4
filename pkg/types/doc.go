// Package types defines the task and swarm data model shared across
// the planner, controller, and command protocol: tasks with
// dependencies, worker instances, swarm state and metrics,
// distribution plans, failure and recovery records, and the swarm
// configuration with its validation bounds.
package types
