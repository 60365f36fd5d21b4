package controller

import "errors"

var (
	// ErrEmptyTaskList is returned when launching with no tasks
	ErrEmptyTaskList = errors.New("Cannot launch swarm with empty task list")

	// ErrSwarmNotFound is returned for unknown swarm ids
	ErrSwarmNotFound = errors.New("swarm not found")

	// ErrInstanceNotFound is returned for unknown instance ids
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrSafetyViolation blocks every operation after emergency
	// shutdown or a resource ceiling breach
	ErrSafetyViolation = errors.New("safety violation: emergency shutdown active")

	// ErrInvalidTransition is returned for disallowed status changes
	ErrInvalidTransition = errors.New("invalid status transition")
)
