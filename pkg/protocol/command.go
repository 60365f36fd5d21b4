package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Parsing and construction errors
var (
	ErrTooFewTokens = errors.New("command must have at least verb and noun")
	ErrUnknownVerb  = errors.New("verb not in allowed verb set")
	ErrUnknownNoun  = errors.New("noun not in allowed noun set")
	ErrNoVerb       = errors.New("could not identify verb in command")
)

var knownVerbs = map[string]struct{}{
	"run": {}, "stop": {}, "sync": {}, "status": {}, "scale": {},
	"merge": {}, "restart": {}, "pause": {}, "resume": {}, "deploy": {},
	"rollback": {}, "monitor": {}, "alert": {}, "configure": {}, "validate": {},
}

var knownNouns = map[string]struct{}{
	"task": {}, "instance": {}, "branch": {}, "swarm": {}, "instances": {},
	"branches": {}, "service": {}, "deployment": {}, "configuration": {},
	"health": {}, "metrics": {}, "logs": {}, "alerts": {}, "resources": {},
	"workflow": {},
}

// IsVerb reports whether v (case-insensitive) is in the closed verb set
func IsVerb(v string) bool {
	_, ok := knownVerbs[strings.ToLower(v)]
	return ok
}

// IsNoun reports whether n (case-insensitive) is in the closed noun set
func IsNoun(n string) bool {
	_, ok := knownNouns[strings.ToLower(n)]
	return ok
}

// ParamKind tags the scalar type of a command parameter
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
)

// Param is a heterogeneous command parameter value
type Param struct {
	Kind  ParamKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringParam(s string) Param { return Param{Kind: ParamString, Str: s} }
func IntParam(i int64) Param     { return Param{Kind: ParamInt, Int: i} }
func FloatParam(f float64) Param { return Param{Kind: ParamFloat, Float: f} }
func BoolParam(b bool) Param     { return Param{Kind: ParamBool, Bool: b} }

// String returns the literal wire form of the parameter value
func (p Param) String() string {
	switch p.Kind {
	case ParamInt:
		return strconv.FormatInt(p.Int, 10)
	case ParamFloat:
		return strconv.FormatFloat(p.Float, 'g', -1, 64)
	case ParamBool:
		return strconv.FormatBool(p.Bool)
	default:
		return p.Str
	}
}

// coerceParam applies the wire type coercion rules: "true"/"false"
// become booleans, all-digit tokens become integers, numeric tokens
// with a dot or sign become floats, anything else stays a string.
func coerceParam(raw string) Param {
	lower := strings.ToLower(raw)
	if lower == "true" || lower == "false" {
		return BoolParam(lower == "true")
	}

	allDigits := raw != ""
	for _, r := range raw {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return IntParam(i)
		}
	}

	stripped := strings.NewReplacer(".", "", "-", "").Replace(raw)
	if stripped != "" && stripped != raw {
		numeric := true
		for _, r := range stripped {
			if r < '0' || r > '9' {
				numeric = false
				break
			}
		}
		if numeric {
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				return FloatParam(f)
			}
		}
	}

	return StringParam(raw)
}

// Command is an immutable structured command following the
// verb-noun-modifier pattern:
//
//	run task abc beast-mode
//	stop instance kiro-3 graceful
//	sync branch feature/parallel-dev upstream
type Command struct {
	Verb           string
	Noun           string
	Modifiers      []string
	Params         map[string]Param
	Timestamp      time.Time
	SourceInstance string
	CorrelationID  string
}

// New constructs a command, enforcing the closed verb and noun sets.
// Verb and noun are lowercased; a correlation id is generated.
func New(verb, noun string, modifiers []string, params map[string]Param, source string) (*Command, error) {
	verb = strings.ToLower(verb)
	noun = strings.ToLower(noun)

	if _, ok := knownVerbs[verb]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	if _, ok := knownNouns[noun]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNoun, noun)
	}

	if params == nil {
		params = map[string]Param{}
	}

	return &Command{
		Verb:           verb,
		Noun:           noun,
		Modifiers:      modifiers,
		Params:         params,
		Timestamp:      time.Now(),
		SourceInstance: source,
		CorrelationID:  uuid.NewString(),
	}, nil
}

// Key returns the pattern registry key for this command
func (c *Command) Key() string {
	return c.Verb + " " + c.Noun
}

// String serializes the command to its wire form:
// verb noun [modifier...] [key=value...]. Parameter keys are emitted
// in sorted order so the form is deterministic.
func (c *Command) String() string {
	parts := make([]string, 0, 2+len(c.Modifiers)+len(c.Params))
	parts = append(parts, c.Verb, c.Noun)
	parts = append(parts, c.Modifiers...)

	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+c.Params[k].String())
	}

	return strings.Join(parts, " ")
}

// ParseStrict reverses the serialization contract: the first two
// tokens are verb and noun, tokens containing "=" are typed
// parameters, all other tokens are modifiers.
func ParseStrict(text, source string) (*Command, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil, ErrTooFewTokens
	}

	var modifiers []string
	params := map[string]Param{}
	for _, tok := range fields[2:] {
		if key, value, ok := strings.Cut(tok, "="); ok {
			params[key] = coerceParam(value)
		} else {
			modifiers = append(modifiers, tok)
		}
	}

	return New(fields[0], fields[1], modifiers, params, source)
}
