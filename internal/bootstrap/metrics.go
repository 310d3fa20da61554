package bootstrap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes bootstrap progress to Prometheus. All methods are
// nil-receiver safe so components can run without metrics wired.
type Metrics struct {
	transitions   *prometheus.CounterVec
	retries       *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	nodesTerminal *prometheus.CounterVec
}

// NewMetrics creates and registers the bootstrap metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodeboot",
				Subsystem: "bootstrap",
				Name:      "phase_transitions_total",
				Help:      "Phase transitions by phase and direction",
			},
			[]string{"phase", "direction"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodeboot",
				Subsystem: "bootstrap",
				Name:      "retry_attempts_total",
				Help:      "Failed attempts inside component retry budgets",
			},
			[]string{"component"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodeboot",
				Subsystem: "bootstrap",
				Name:      "phase_duration_seconds",
				Help:      "Time spent per phase",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
			},
			[]string{"phase"},
		),
		nodesTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodeboot",
				Subsystem: "bootstrap",
				Name:      "nodes_terminal_total",
				Help:      "Nodes reaching a terminal phase by outcome",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.transitions, m.retries, m.phaseDuration, m.nodesTerminal)
	return m
}

// Transition records a phase transition.
func (m *Metrics) Transition(phase Phase, rollback bool) {
	if m == nil {
		return
	}
	direction := "forward"
	if rollback {
		direction = "rollback"
	}
	m.transitions.WithLabelValues(phase.String(), direction).Inc()
}

// Retry records one failed attempt inside a component's budget.
func (m *Metrics) Retry(component string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(component).Inc()
}

// PhaseDuration records the time a node spent in a phase.
func (m *Metrics) PhaseDuration(phase Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase.String()).Observe(d.Seconds())
}

// Terminal records a node reaching a terminal phase.
func (m *Metrics) Terminal(outcome string) {
	if m == nil {
		return
	}
	m.nodesTerminal.WithLabelValues(outcome).Inc()
}

// withRetryMetrics counts attempt events as retries, labeled by the phase
// whose budget they burned, before forwarding to the inner observer.
func withRetryMetrics(obs Observer, m *Metrics) Observer {
	if m == nil {
		return obs
	}
	return &retryCountingObserver{obs: obs, metrics: m}
}

type retryCountingObserver struct {
	obs     Observer
	metrics *Metrics
}

func (r *retryCountingObserver) Event(e Event) {
	if e.Type == EventAttempt {
		r.metrics.Retry(e.Phase.String())
	}
	r.obs.Event(e)
}

func (r *retryCountingObserver) Printf(format string, v ...interface{}) {
	r.obs.Printf(format, v...)
}
