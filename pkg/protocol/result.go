package protocol

import (
	"fmt"
	"strings"
	"time"
)

// ActionResult records the outcome of executing a command
type ActionResult struct {
	Success       bool
	Message       string
	Data          map[string]any
	ExecutionTime time.Duration
	SideEffects   []string
	CorrelationID string
	Timestamp     time.Time
}

// ResponseString renders the result in the wire response form:
//
//	[SUCCESS] <message> (took <seconds>s)
//	Data: <mapping>
//	Side effects: <csv>
func (r *ActionResult) ResponseString() string {
	status := "SUCCESS"
	if !r.Success {
		status = "FAILED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (took %.2fs)", status, r.Message, r.ExecutionTime.Seconds())

	if len(r.Data) > 0 {
		fmt.Fprintf(&b, "\nData: %v", r.Data)
	}
	if len(r.SideEffects) > 0 {
		fmt.Fprintf(&b, "\nSide effects: %s", strings.Join(r.SideEffects, ", "))
	}

	return b.String()
}

// ValidationResult records the outcome of validating a command
// against its registered pattern
type ValidationResult struct {
	IsValid     bool
	Errors      []string
	Warnings    []string
	Suggestions []string
}

// String renders the validation result in the wire form:
//
//	VALID
//	VALID (warnings: <csv>)
//	INVALID: <csv of errors>
//	Suggestions: <csv>
func (v *ValidationResult) String() string {
	var b strings.Builder

	if v.IsValid {
		b.WriteString("VALID")
		if len(v.Warnings) > 0 {
			fmt.Fprintf(&b, " (warnings: %s)", strings.Join(v.Warnings, ", "))
		}
	} else {
		fmt.Fprintf(&b, "INVALID: %s", strings.Join(v.Errors, ", "))
	}

	if len(v.Suggestions) > 0 {
		fmt.Fprintf(&b, "\nSuggestions: %s", strings.Join(v.Suggestions, ", "))
	}

	return b.String()
}
