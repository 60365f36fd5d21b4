// Package safety implements the cooperative resource guardrails:
// a process resource monitor with configurable limits and a kill
// switch that drives the controller's emergency shutdown. Exceeding a
// hard ceiling stops all orchestration work immediately.
package safety

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/metrics"
)

// hardCeilingFactor is the multiple of a soft limit that triggers
// emergency shutdown in addition to the violation callbacks
const hardCeilingFactor = 2.0

// Limits are the soft resource limits for orchestration work
type Limits struct {
	MaxMemoryMB             float64
	MaxGoroutines           int
	MaxOperationTime        time.Duration
	MaxConcurrentOperations int
}

// DefaultLimits returns conservative limits
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryMB:             512,
		MaxGoroutines:           500,
		MaxOperationTime:        5 * time.Minute,
		MaxConcurrentOperations: 2,
	}
}

// Status is a point-in-time safety snapshot
type Status struct {
	IsSafe          bool
	ResourceUsage   map[string]float64
	Violations      []string
	LastCheck       time.Time
	KillSwitchArmed bool
}

// KillSwitch provides instant-stop capability. Engaging it runs every
// registered shutdown callback exactly once; an engaged switch never
// re-arms.
type KillSwitch struct {
	mu        sync.Mutex
	engaged   bool
	callbacks []func()
	logger    zerolog.Logger
}

// NewKillSwitch creates an armed kill switch
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{logger: log.WithComponent("kill-switch")}
}

// RegisterShutdownCallback registers a callback invoked on shutdown
func (k *KillSwitch) RegisterShutdownCallback(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callbacks = append(k.callbacks, fn)
}

// EmergencyShutdown stops all orchestration work immediately
func (k *KillSwitch) EmergencyShutdown(reason string) {
	k.mu.Lock()
	if k.engaged {
		k.mu.Unlock()
		return
	}
	k.engaged = true
	callbacks := make([]func(), len(k.callbacks))
	copy(callbacks, k.callbacks)
	k.mu.Unlock()

	k.logger.Error().Str("reason", reason).Msg("EMERGENCY SHUTDOWN INITIATED")
	metrics.EmergencyShutdownsTotal.Inc()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					k.logger.Error().Any("panic", r).Msg("Shutdown callback panicked")
				}
			}()
			fn()
		}()
	}

	k.logger.Info().Msg("Emergency shutdown complete")
}

// Engaged reports whether the switch has fired
func (k *KillSwitch) Engaged() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.engaged
}

// Monitor samples process resource usage on an interval and invokes
// violation callbacks when soft limits are exceeded. Breaching a hard
// ceiling engages the attached kill switch.
type Monitor struct {
	limits     Limits
	interval   time.Duration
	logger     zerolog.Logger
	killSwitch *KillSwitch

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	callbacks  []func(violations []string)
	inFlight   int
	lastStatus Status
}

// NewMonitor creates a resource monitor with a 5 second sample interval
func NewMonitor(limits Limits) *Monitor {
	return &Monitor{
		limits:   limits,
		interval: 5 * time.Second,
		logger:   log.WithComponent("resource-monitor"),
	}
}

// AttachKillSwitch wires hard-ceiling breaches to the kill switch
func (m *Monitor) AttachKillSwitch(k *KillSwitch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = k
}

// RegisterViolationCallback registers a callback for soft violations
func (m *Monitor) RegisterViolationCallback(fn func(violations []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Start begins continuous monitoring
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.loop(stopCh)
	m.logger.Info().Msg("Resource monitoring started")
}

// Stop halts monitoring
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	m.logger.Info().Msg("Resource monitoring stopped")
}

func (m *Monitor) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-stopCh:
			return
		}
	}
}

// Usage returns current process resource usage
func (m *Monitor) Usage() map[string]float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	inFlight := m.inFlight
	m.mu.Unlock()

	return map[string]float64{
		"memory_mb":  float64(ms.HeapAlloc) / 1024 / 1024,
		"goroutines": float64(runtime.NumGoroutine()),
		"operations": float64(inFlight),
	}
}

// Check samples usage once, fires callbacks on soft violations, and
// engages the kill switch past the hard ceiling. Returns the
// violations found.
func (m *Monitor) Check() []string {
	usage := m.Usage()

	var violations []string
	hardBreach := false

	if mem := usage["memory_mb"]; mem > m.limits.MaxMemoryMB {
		violations = append(violations,
			fmt.Sprintf("Memory usage %.1fMB exceeds limit %.1fMB", mem, m.limits.MaxMemoryMB))
		if mem > m.limits.MaxMemoryMB*hardCeilingFactor {
			hardBreach = true
		}
	}
	if gr := usage["goroutines"]; gr > float64(m.limits.MaxGoroutines) {
		violations = append(violations,
			fmt.Sprintf("Goroutine count %.0f exceeds limit %d", gr, m.limits.MaxGoroutines))
		if gr > float64(m.limits.MaxGoroutines)*hardCeilingFactor {
			hardBreach = true
		}
	}

	m.mu.Lock()
	m.lastStatus = Status{
		IsSafe:          len(violations) == 0,
		ResourceUsage:   usage,
		Violations:      violations,
		LastCheck:       time.Now(),
		KillSwitchArmed: m.killSwitch != nil && !m.killSwitch.Engaged(),
	}
	callbacks := make([]func([]string), len(m.callbacks))
	copy(callbacks, m.callbacks)
	killSwitch := m.killSwitch
	m.mu.Unlock()

	if len(violations) > 0 {
		metrics.SafetyViolationsTotal.Inc()
		m.logger.Warn().Strs("violations", violations).Msg("Resource limits exceeded")
		for _, fn := range callbacks {
			fn(violations)
		}
	}

	if hardBreach && killSwitch != nil {
		killSwitch.EmergencyShutdown(fmt.Sprintf("hard resource ceiling breached: %v", violations))
	}

	return violations
}

// LastStatus returns the most recent safety snapshot
func (m *Monitor) LastStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus
}

// GuardOperation reserves one concurrent-operation slot. The release
// function must be called when the operation finishes.
func (m *Monitor) GuardOperation(name string) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limits.MaxConcurrentOperations > 0 && m.inFlight >= m.limits.MaxConcurrentOperations {
		return nil, fmt.Errorf("concurrent operation limit reached (%d), refusing %s",
			m.limits.MaxConcurrentOperations, name)
	}
	m.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.inFlight--
			m.mu.Unlock()
		})
	}, nil
}
