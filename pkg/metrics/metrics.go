package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Swarm metrics
	SwarmsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarmctl_swarms_active",
			Help: "Number of swarms currently tracked by the controller",
		},
	)

	SwarmsLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_swarms_launched_total",
			Help: "Total number of swarms launched",
		},
	)

	SwarmLaunchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmctl_swarm_launch_duration_seconds",
			Help:    "Time taken to launch a swarm in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstancesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmctl_instances_active",
			Help: "Number of instances by status",
		},
		[]string{"status"},
	)

	// Planner metrics
	TasksDistributed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_tasks_distributed_total",
			Help: "Total number of tasks placed into distribution plans",
		},
	)

	PlanningLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmctl_planning_latency_seconds",
			Help:    "Time taken to compute a distribution plan in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CycleBreaksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_plan_cycle_breaks_total",
			Help: "Total number of dependency cycles broken during planning",
		},
	)

	// Protocol metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmctl_commands_total",
			Help: "Total number of executed commands by result",
		},
		[]string{"status"},
	)

	CommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmctl_command_duration_seconds",
			Help:    "Command handler execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_parse_failures_total",
			Help: "Total number of commands that failed to parse",
		},
	)

	// Recovery metrics
	RecoveryPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmctl_recovery_plans_total",
			Help: "Total number of recovery plans by strategy",
		},
		[]string{"strategy"},
	)

	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_heartbeats_total",
			Help: "Total number of instance heartbeats recorded",
		},
	)

	// Integration metrics
	IntegrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmctl_integration_duration_seconds",
			Help:    "Time taken for an integration pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IntegrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmctl_integrations_total",
			Help: "Total number of task integrations by result",
		},
		[]string{"result"},
	)

	// Safety metrics
	SafetyViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_safety_violations_total",
			Help: "Total number of resource limit violations observed",
		},
	)

	EmergencyShutdownsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmctl_emergency_shutdowns_total",
			Help: "Total number of emergency shutdowns triggered",
		},
	)
)

func init() {
	prometheus.MustRegister(SwarmsActive)
	prometheus.MustRegister(SwarmsLaunched)
	prometheus.MustRegister(SwarmLaunchDuration)
	prometheus.MustRegister(InstancesActive)
	prometheus.MustRegister(TasksDistributed)
	prometheus.MustRegister(PlanningLatency)
	prometheus.MustRegister(CycleBreaksTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(ParseFailuresTotal)
	prometheus.MustRegister(RecoveryPlansTotal)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(IntegrationDuration)
	prometheus.MustRegister(IntegrationsTotal)
	prometheus.MustRegister(SafetyViolationsTotal)
	prometheus.MustRegister(EmergencyShutdownsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
