/*
Package protocol implements the human-readable text command protocol
used between workers, operators, and the orchestration controller.

Commands follow a verb-noun-modifier pattern with inline key=value
parameters:

	run task beast-mode task_id=auth-123
	stop instance graceful instance_id=kiro-3
	scale instances up count=5
	status swarm detailed

# Parsing

Parsing is two-stage. The strict stage applies when the first two
tokens are already a known verb and noun: remaining tokens with "="
become typed parameters (bool, int, float, string coercion), the rest
become modifiers. Commands serialized with Command.String round-trip
through this stage, except that a string parameter whose text reads
as a bool or a number comes back with that type, and values or
modifiers containing whitespace or "=" do not survive the split.

The natural-language stage is a best-effort fallback driven by
explicit synonym tables ("execute" -> run, "halt" -> stop), phrase
substitutions ("in beast mode" -> beast-mode), per-verb default nouns,
a fixed modifier detection set, and identifier extraction for
task-/kiro-/instance- prefixed tokens and short bare identifiers.

# Validation and dispatch

Each (verb, noun) pair may have a registered Pattern describing its
allowed modifiers and required/optional parameters, and a registered
HandlerFunc that executes it. Handler.Execute validates, dispatches,
times the invocation, and maintains execution statistics and a
bounded command history. Handler errors and panics degrade the
handler's health indicators; they never propagate to the caller.

The Handler implements the reflective module contract from pkg/rm, so
monitoring callers can observe parse failures, execution success
rates, and history depth uniformly.
*/
package protocol
