package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/metrics"
	"github.com/nkllon/swarmctl/pkg/rm"
)

// HistoryCapacity bounds the command history buffer. It matches the
// reflective module indicator cap.
const HistoryCapacity = rm.IndicatorCapacity

// HandlerFunc executes one command and returns its result
type HandlerFunc func(*Command) (*ActionResult, error)

var _ rm.Module = (*Handler)(nil)

// phrase substitutions applied before token scanning in the
// natural-language stage
var phraseSubstitutions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\bexecute\b`), "run"},
	{regexp.MustCompile(`\bhalt\b`), "stop"},
	{regexp.MustCompile(`\bsynchronize\b`), "sync"},
	{regexp.MustCompile(`\bin beast mode\b`), "beast-mode"},
	{regexp.MustCompile(`\bin parallel\b`), "parallel"},
	{regexp.MustCompile(`\ball running threads\b`), "instances all"},
	{regexp.MustCompile(`\bactive processes\b`), "instances active"},
	{regexp.MustCompile(`\bgracefully\b`), "graceful"},
}

var verbSynonyms = map[string]string{
	"execute": "run", "start": "run", "launch": "run",
	"halt": "stop", "kill": "stop", "terminate": "stop",
	"synchronize": "sync", "update": "sync",
	"check": "status", "show": "status", "get": "status",
	"increase": "scale", "decrease": "scale", "resize": "scale",
}

var nounSynonyms = map[string]string{
	"job": "task", "jobs": "task",
	"agent": "instance", "agents": "instance",
	"worker": "instance", "workers": "instance",
	"process": "instance", "processes": "instance",
	"thread": "instance", "threads": "instance",
	"repo": "branch", "repository": "branch",
	"cluster": "swarm", "group": "swarm",
}

var defaultNouns = map[string]string{
	"run":    "task",
	"stop":   "instance",
	"sync":   "branch",
	"status": "swarm",
	"scale":  "instances",
}

// filler words never treated as bare identifiers
var identifierStopwords = map[string]struct{}{
	"in": {}, "the": {}, "a": {}, "an": {}, "to": {}, "for": {}, "with": {},
	"and": {}, "of": {}, "on": {}, "at": {}, "up": {}, "down": {}, "all": {},
	"mode": {}, "now": {}, "auto": {}, "my": {}, "this": {}, "that": {},
	"by": {}, "is": {}, "are": {}, "it": {}, "its": {}, "as": {},
}

type executionStats struct {
	total      int
	successful int
	failed     int
	avgSeconds float64
}

// Handler processes human-readable structured commands following the
// verb-noun-modifier pattern. It implements the reflective module
// contract and serializes execution accounting across callers.
type Handler struct {
	*rm.Base

	instanceID string
	logger     zerolog.Logger

	mu       sync.Mutex
	patterns map[string]*Pattern
	handlers map[string]HandlerFunc
	history  *rm.Ring[*Command]
	stats    executionStats
}

// NewHandler creates a protocol handler for the given instance with
// the default command patterns pre-registered
func NewHandler(instanceID string) *Handler {
	h := &Handler{
		Base:       rm.NewBase("TextProtocolHandler", "1.0.0"),
		instanceID: instanceID,
		logger:     log.WithComponent("protocol"),
		patterns:   make(map[string]*Pattern),
		handlers:   make(map[string]HandlerFunc),
		history:    rm.NewRing[*Command](HistoryCapacity),
	}

	for _, p := range DefaultPatterns() {
		h.RegisterPattern(p)
	}

	return h
}

// RegisterPattern registers a command pattern, replacing any prior
// pattern for the same (verb, noun)
func (h *Handler) RegisterPattern(p *Pattern) {
	h.mu.Lock()
	h.patterns[p.Key()] = p
	h.mu.Unlock()
	h.NoteActivity()
}

// RegisterHandler registers the handler for a (verb, noun), replacing
// any prior registration
func (h *Handler) RegisterHandler(verb, noun string, fn HandlerFunc) {
	h.mu.Lock()
	h.handlers[strings.ToLower(verb)+" "+strings.ToLower(noun)] = fn
	h.mu.Unlock()
	h.NoteActivity()
}

// Parse turns raw text into a command. The strict stage applies when
// the first two tokens are already a known verb and noun; otherwise a
// best-effort natural-language stage kicks in:
//
//	"run task beast-mode task_id=abc"     -> strict
//	"execute task payment in parallel"    -> run task [parallel]
//	"halt instance kiro-3 gracefully"     -> stop instance [graceful] instance_id=kiro-3
//
// Successfully parsed commands are appended to the bounded history.
func (h *Handler) Parse(text string) (*Command, error) {
	cmd, err := h.parse(text)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		h.AddIndicator("command_parsing", rm.StatusWarning,
			fmt.Sprintf("Failed to parse command: %s", text),
			map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("failed to parse command %q: %w", text, err)
	}

	h.appendHistory(cmd)
	h.NoteActivity()
	return cmd, nil
}

func (h *Handler) parse(text string) (*Command, error) {
	fields := strings.Fields(text)
	if len(fields) >= 2 && IsVerb(fields[0]) && IsNoun(fields[1]) {
		return ParseStrict(strings.Join(fields, " "), h.instanceID)
	}
	return h.parseNaturalLanguage(text)
}

// parseNaturalLanguage is the best-effort fallback for loosely
// phrased commands. Synonym tables and the modifier detection set are
// deliberately explicit and test-driven.
func (h *Handler) parseNaturalLanguage(text string) (*Command, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, sub := range phraseSubstitutions {
		lowered = sub.re.ReplaceAllString(lowered, sub.replacement)
	}

	words := strings.Fields(lowered)
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}

	verb := ""
	for _, w := range words {
		if mapped, ok := verbSynonyms[w]; ok {
			verb = mapped
			break
		}
		if IsVerb(w) {
			verb = w
			break
		}
	}
	if verb == "" {
		return nil, ErrNoVerb
	}

	noun := ""
	for _, w := range words {
		if w == verb {
			continue
		}
		if mapped, ok := nounSynonyms[w]; ok {
			noun = mapped
			break
		}
		if IsNoun(w) {
			noun = w
			break
		}
	}
	if noun == "" {
		noun = defaultNouns[verb]
		if noun == "" {
			noun = "task"
		}
	}

	var modifiers []string
	if strings.Contains(lowered, "beast") && strings.Contains(lowered, "mode") {
		modifiers = append(modifiers, "beast-mode")
	}
	if strings.Contains(lowered, "parallel") {
		modifiers = append(modifiers, "parallel")
	}
	if strings.Contains(lowered, "graceful") {
		modifiers = append(modifiers, "graceful")
	}
	if _, ok := wordSet["all"]; ok {
		modifiers = append(modifiers, "all")
	}
	if strings.Contains(lowered, "upstream") {
		modifiers = append(modifiers, "upstream")
	}

	params := map[string]Param{}
	for _, w := range words {
		switch {
		case strings.HasPrefix(w, "task-"), strings.HasPrefix(w, "kiro-"), strings.HasPrefix(w, "instance-"):
			if strings.Contains(noun, "task") {
				params["task_id"] = StringParam(w)
			} else {
				params["instance_id"] = StringParam(w)
			}
		case isBareIdentifier(w, verb):
			switch {
			case strings.Contains(noun, "task"):
				params["task_id"] = StringParam(w)
			case strings.Contains(noun, "branch"):
				params["branch_name"] = StringParam(w)
			case strings.Contains(noun, "instance"):
				params["instance_id"] = StringParam(w)
			}
		}
	}

	return New(verb, noun, modifiers, params, h.instanceID)
}

// isBareIdentifier reports whether a short token can be an identifier:
// at most 4 characters, alphanumeric, and not a recognized word
func isBareIdentifier(w, verb string) bool {
	if len(w) > 4 || w == verb {
		return false
	}
	if IsVerb(w) || IsNoun(w) {
		return false
	}
	if _, ok := verbSynonyms[w]; ok {
		return false
	}
	if _, ok := nounSynonyms[w]; ok {
		return false
	}
	if _, ok := identifierStopwords[w]; ok {
		return false
	}
	for _, r := range w {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return false
		}
	}
	return true
}

// Validate checks a command against its registered pattern
func (h *Handler) Validate(cmd *Command) *ValidationResult {
	h.mu.Lock()
	pattern, ok := h.patterns[cmd.Key()]
	var registered []string
	if !ok {
		registered = make([]string, 0, len(h.patterns))
		for key := range h.patterns {
			registered = append(registered, key)
		}
	}
	h.mu.Unlock()

	if !ok {
		return &ValidationResult{
			IsValid: false,
			Errors:  []string{fmt.Sprintf("Unknown command pattern: %s %s", cmd.Verb, cmd.Noun)},
			Suggestions: []string{
				fmt.Sprintf("Available patterns: %s", strings.Join(registered, ", ")),
			},
		}
	}

	return pattern.Validate(cmd)
}

// Execute validates, dispatches, and accounts for one command.
// Invalid commands and missing handlers produce failed results
// without touching the execution counters; handler invocations,
// including ones that fail or panic, are counted.
func (h *Handler) Execute(cmd *Command) *ActionResult {
	start := time.Now()
	h.appendHistory(cmd)

	validation := h.Validate(cmd)
	if !validation.IsValid {
		return &ActionResult{
			Success:       false,
			Message:       fmt.Sprintf("Invalid command: %s", strings.Join(validation.Errors, ", ")),
			ExecutionTime: time.Since(start),
			CorrelationID: cmd.CorrelationID,
			Timestamp:     time.Now(),
		}
	}

	h.mu.Lock()
	fn, ok := h.handlers[cmd.Key()]
	h.mu.Unlock()
	if !ok {
		return &ActionResult{
			Success:       false,
			Message:       fmt.Sprintf("No handler registered for: %s %s", cmd.Verb, cmd.Noun),
			ExecutionTime: time.Since(start),
			CorrelationID: cmd.CorrelationID,
			Timestamp:     time.Now(),
		}
	}

	result, err := h.invoke(fn, cmd)
	elapsed := time.Since(start)

	if err != nil {
		h.AddIndicator("action_execution", rm.StatusCritical,
			fmt.Sprintf("Failed to execute action: %s", cmd.String()),
			map[string]any{"error": err.Error()})
		h.logger.Error().Err(err).Str("command", cmd.String()).Msg("Command execution failed")

		result = &ActionResult{
			Success:       false,
			Message:       fmt.Sprintf("Execution failed: %v", err),
			ExecutionTime: elapsed,
			CorrelationID: cmd.CorrelationID,
			Timestamp:     time.Now(),
		}
	}

	if result.ExecutionTime == 0 {
		result.ExecutionTime = elapsed
	}
	if result.CorrelationID == "" {
		result.CorrelationID = cmd.CorrelationID
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	h.recordExecution(result)
	h.NoteActivity()
	return result
}

// invoke runs the handler function, converting panics into errors
func (h *Handler) invoke(fn HandlerFunc, cmd *Command) (result *ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = fn(cmd)
	if err == nil && result == nil {
		err = fmt.Errorf("handler returned no result")
	}
	return result, err
}

func (h *Handler) recordExecution(result *ActionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.total++
	status := "failed"
	if result.Success {
		h.stats.successful++
		status = "success"
	} else {
		h.stats.failed++
	}
	h.stats.avgSeconds = (h.stats.avgSeconds*float64(h.stats.total-1) +
		result.ExecutionTime.Seconds()) / float64(h.stats.total)

	metrics.CommandsTotal.WithLabelValues(status).Inc()
	metrics.CommandDuration.Observe(result.ExecutionTime.Seconds())
}

func (h *Handler) appendHistory(cmd *Command) {
	h.mu.Lock()
	h.history.Append(cmd)
	h.mu.Unlock()
}

// History returns the recorded commands, oldest first
func (h *Handler) History() []*Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.Oldest()
}

// SuccessRate returns successful/total, or 0 when nothing ran yet
func (h *Handler) SuccessRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stats.total == 0 {
		return 0
	}
	return float64(h.stats.successful) / float64(h.stats.total)
}

// Help renders help text. With a verb and noun it describes that
// pattern; without arguments it lists every registered pattern.
func (h *Handler) Help(verb, noun string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if verb != "" && noun != "" {
		pattern, ok := h.patterns[strings.ToLower(verb)+" "+strings.ToLower(noun)]
		if !ok {
			return fmt.Sprintf("No help available for: %s %s", verb, noun)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s %s - %s\n", pattern.Verb, pattern.Noun, pattern.Description)
		if len(pattern.AllowedModifiers) > 0 {
			fmt.Fprintf(&b, "Modifiers: %s\n", strings.Join(pattern.AllowedModifiers, ", "))
		}
		if len(pattern.RequiredParameters) > 0 {
			fmt.Fprintf(&b, "Required: %s\n", strings.Join(pattern.RequiredParameters, ", "))
		}
		if len(pattern.OptionalParameters) > 0 {
			fmt.Fprintf(&b, "Optional: %s\n", strings.Join(pattern.OptionalParameters, ", "))
		}
		if len(pattern.Examples) > 0 {
			b.WriteString("Examples:\n")
			for _, example := range pattern.Examples {
				fmt.Fprintf(&b, "  %s\n", example)
			}
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, pattern := range h.patterns {
		fmt.Fprintf(&b, "  %s %s - %s\n", pattern.Verb, pattern.Noun, pattern.Description)
	}
	return b.String()
}

// Reflective module implementation

// Status returns the handler status record
func (h *Handler) Status() rm.ModuleStatus {
	h.mu.Lock()
	stats := h.stats
	historySize := h.history.Len()
	patternCount := len(h.patterns)
	handlerCount := len(h.handlers)
	h.mu.Unlock()

	return rm.ModuleStatus{
		Name:             h.Name(),
		Version:          h.Version(),
		State:            h.State(),
		Uptime:           h.Uptime(),
		LastActivity:     h.LastActivity(),
		HealthIndicators: h.Indicators(),
		PerformanceMetrics: map[string]any{
			"total_commands":         stats.total,
			"successful_commands":    stats.successful,
			"failed_commands":        stats.failed,
			"average_execution_time": stats.avgSeconds,
			"command_history_size":   historySize,
			"registered_patterns":    patternCount,
			"registered_handlers":    handlerCount,
		},
	}
}

// Indicators returns health indicators, most recent first, with a
// synthesized performance indicator reflecting the current success
// rate: healthy at 90% and above, warning at 70%, critical below.
func (h *Handler) Indicators() []rm.HealthIndicator {
	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()

	successRate := 0.0
	if stats.total > 0 {
		successRate = float64(stats.successful) / float64(stats.total)
	}

	status := rm.StatusHealthy
	if successRate < 0.9 {
		status = rm.StatusWarning
	}
	if successRate < 0.7 {
		status = rm.StatusCritical
	}
	if stats.total == 0 {
		status = rm.StatusHealthy
	}

	performance := rm.HealthIndicator{
		Name:      "performance",
		Status:    status,
		Message:   fmt.Sprintf("Command success rate: %.2f%%", successRate*100),
		Timestamp: time.Now(),
		Details: map[string]any{
			"success_rate":           successRate,
			"total_commands":         stats.total,
			"average_execution_time": stats.avgSeconds,
		},
	}

	return append([]rm.HealthIndicator{performance}, h.Base.Indicators()...)
}
