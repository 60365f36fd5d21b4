// Package rm provides the reflective module contract: a uniform
// status, health, and activity reporting surface implemented by every
// long-lived component. The orchestration loop and monitoring callers
// depend only on this contract, never on component internals.
package rm

import (
	"sync"
	"time"
)

const (
	// IndicatorCapacity bounds the per-module health indicator buffer.
	// Insertion past the cap drops the oldest entry.
	IndicatorCapacity = 100

	// healthyWindow is how far back Healthy looks for critical indicators
	healthyWindow = 5 * time.Minute
)

// IndicatorStatus classifies a health indicator
type IndicatorStatus string

const (
	StatusHealthy  IndicatorStatus = "healthy"
	StatusWarning  IndicatorStatus = "warning"
	StatusCritical IndicatorStatus = "critical"
)

// ModuleState represents the overall state of a module
type ModuleState string

const (
	StateActive ModuleState = "active"
	StateError  ModuleState = "error"
)

// HealthIndicator is a single health observation
type HealthIndicator struct {
	Name      string
	Status    IndicatorStatus
	Message   string
	Timestamp time.Time
	Details   map[string]any
}

// ModuleStatus is the point-in-time status record of a module
type ModuleStatus struct {
	Name               string
	Version            string
	State              ModuleState
	Uptime             time.Duration
	LastActivity       time.Time
	HealthIndicators   []HealthIndicator
	PerformanceMetrics map[string]any
}

// Module is implemented by every long-lived component
type Module interface {
	// Status returns the current module status. O(1), never blocks on I/O.
	Status() ModuleStatus

	// Healthy reports whether the module has seen no critical
	// indicator within the last five minutes.
	Healthy() bool

	// Indicators returns health indicators, most recent first
	Indicators() []HealthIndicator

	// NoteActivity updates the last-activity timestamp to now
	NoteActivity()
}

// Base supplies the bookkeeping shared by module implementations:
// uptime, last activity, and the bounded indicator buffer. Embed it
// and implement Status on top.
type Base struct {
	name    string
	version string

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time
	indicators   *Ring[HealthIndicator]
}

// NewBase creates module bookkeeping for the named component
func NewBase(name, version string) *Base {
	now := time.Now()
	return &Base{
		name:         name,
		version:      version,
		startTime:    now,
		lastActivity: now,
		indicators:   NewRing[HealthIndicator](IndicatorCapacity),
	}
}

// Name returns the module name
func (b *Base) Name() string {
	return b.name
}

// Version returns the module version
func (b *Base) Version() string {
	return b.version
}

// NoteActivity updates the last-activity timestamp
func (b *Base) NoteActivity() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()
}

// LastActivity returns the last-activity timestamp
func (b *Base) LastActivity() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastActivity
}

// Uptime returns time elapsed since module creation
func (b *Base) Uptime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Since(b.startTime)
}

// AddIndicator records a health indicator, dropping the oldest past capacity
func (b *Base) AddIndicator(name string, status IndicatorStatus, message string, details map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicators.Append(HealthIndicator{
		Name:      name,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   details,
	})
}

// Indicators returns recorded indicators, most recent first
func (b *Base) Indicators() []HealthIndicator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indicators.Newest()
}

// Healthy reports whether no critical indicator was recorded in the
// last five minutes
func (b *Base) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := time.Now().Add(-healthyWindow)
	for _, ind := range b.indicators.Newest() {
		if ind.Timestamp.Before(cutoff) {
			break // newest first, the rest are older
		}
		if ind.Status == StatusCritical {
			return false
		}
	}
	return true
}

// State maps health to the module state enum
func (b *Base) State() ModuleState {
	if b.Healthy() {
		return StateActive
	}
	return StateError
}
