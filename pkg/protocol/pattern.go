package protocol

import (
	"fmt"
	"strings"
)

// Pattern is the declarative shape of one (verb, noun) command:
// allowed modifiers plus required and optional parameters. Patterns
// are registered at startup and are effectively static.
type Pattern struct {
	Verb               string
	Noun               string
	AllowedModifiers   []string
	RequiredParameters []string
	OptionalParameters []string
	Description        string
	Examples           []string
}

// Key returns the registry key for this pattern
func (p *Pattern) Key() string {
	return p.Verb + " " + p.Noun
}

// Matches reports whether the command targets this pattern
func (p *Pattern) Matches(cmd *Command) bool {
	return cmd.Verb == p.Verb && cmd.Noun == p.Noun
}

// Validate checks the command against this pattern. Missing required
// parameters are errors; unknown modifiers are warnings with a
// suggestion listing the allowed set; unknown optional parameters are
// accepted for forward compatibility.
func (p *Pattern) Validate(cmd *Command) *ValidationResult {
	var errs, warnings, suggestions []string

	for _, param := range p.RequiredParameters {
		if _, ok := cmd.Params[param]; !ok {
			errs = append(errs, fmt.Sprintf("Missing required parameter: %s", param))
		}
	}

	allowed := make(map[string]struct{}, len(p.AllowedModifiers))
	for _, m := range p.AllowedModifiers {
		allowed[m] = struct{}{}
	}
	for _, mod := range cmd.Modifiers {
		if _, ok := allowed[mod]; !ok {
			warnings = append(warnings, fmt.Sprintf("Unknown modifier: %s", mod))
			if len(p.AllowedModifiers) > 0 {
				suggestions = append(suggestions,
					fmt.Sprintf("Available modifiers: %s", strings.Join(p.AllowedModifiers, ", ")))
			}
		}
	}

	return &ValidationResult{
		IsValid:     len(errs) == 0,
		Errors:      errs,
		Warnings:    warnings,
		Suggestions: suggestions,
	}
}

// DefaultPatterns returns the patterns pre-registered on every handler
func DefaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Verb:               "run",
			Noun:               "task",
			AllowedModifiers:   []string{"beast-mode", "parallel", "sequential", "debug"},
			RequiredParameters: []string{"task_id"},
			OptionalParameters: []string{"timeout", "priority", "workspace"},
			Description:        "Execute a task with specified mode",
			Examples: []string{
				"run task beast-mode task_id=abc",
				"run task parallel task_id=xyz timeout=300",
			},
		},
		{
			Verb:               "stop",
			Noun:               "instance",
			AllowedModifiers:   []string{"graceful", "immediate", "force"},
			RequiredParameters: []string{"instance_id"},
			OptionalParameters: []string{"timeout", "preserve_state"},
			Description:        "Stop a running instance",
			Examples: []string{
				"stop instance graceful instance_id=kiro-3",
				"stop instance immediate instance_id=kiro-1",
			},
		},
		{
			Verb:               "sync",
			Noun:               "branch",
			AllowedModifiers:   []string{"upstream", "downstream", "bidirectional"},
			RequiredParameters: []string{"branch_name"},
			OptionalParameters: []string{"conflict_strategy", "merge_strategy"},
			Description:        "Synchronize git branch",
			Examples: []string{
				"sync branch upstream branch_name=feature/task-1",
				"sync branch bidirectional branch_name=main",
			},
		},
		{
			Verb:               "status",
			Noun:               "swarm",
			AllowedModifiers:   []string{"detailed", "summary", "health", "performance"},
			RequiredParameters: []string{},
			OptionalParameters: []string{"format", "filter"},
			Description:        "Get swarm status information",
			Examples:           []string{"status swarm detailed", "status swarm health"},
		},
		{
			Verb:               "scale",
			Noun:               "instances",
			AllowedModifiers:   []string{"up", "down", "auto"},
			RequiredParameters: []string{"count"},
			OptionalParameters: []string{"resource_type", "deployment_target"},
			Description:        "Scale instance count",
			Examples:           []string{"scale instances up count=5", "scale instances auto count=3"},
		},
	}
}
