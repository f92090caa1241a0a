package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcceptedTotal counts instructions accepted by the arbiter.
	AcceptedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doorlock_instructions_accepted_total",
		Help: "Total number of instructions accepted by the arbiter",
	}, []string{"source"})
	// BusyTotal counts submissions rejected because the lock was in use.
	BusyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doorlock_instructions_busy_total",
		Help: "Total number of submissions rejected as busy",
	}, []string{"source"})
	// ActuationsTotal counts completed actuations.
	ActuationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doorlock_actuations_total",
		Help: "Total number of completed actuations",
	}, []string{"action"})
	// NoopTotal counts instructions that required no movement.
	NoopTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doorlock_noop_total",
		Help: "Total number of instructions that required no actuation",
	})
	// ActuationSeconds observes how long a full actuation takes.
	ActuationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "doorlock_actuation_seconds",
		Help:    "Duration of lock actuations",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8},
	})
	// QueueViolationsTotal counts arbiter protocol breaches.
	QueueViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doorlock_queue_violations_total",
		Help: "Total number of queue protocol violations",
	})
	// ButtonPressesTotal counts debounced button presses.
	ButtonPressesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doorlock_button_presses_total",
		Help: "Total number of confirmed button presses",
	})
	// RangingTimeoutsTotal counts proximity reads without an echo.
	RangingTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doorlock_ranging_timeouts_total",
		Help: "Total number of ranging reads that timed out",
	})
	// AutoLocksTotal counts auto-lock emissions.
	AutoLocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doorlock_autolock_emitted_total",
		Help: "Total number of auto-lock instructions emitted",
	})
	// StateGauge reports the committed state: 1 locked, 0 unlocked.
	StateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "doorlock_locked",
		Help: "Committed lock state, 1 when locked",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterMetrics registers the doorlock collectors on the provided registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		AcceptedTotal,
		BusyTotal,
		ActuationsTotal,
		NoopTotal,
		ActuationSeconds,
		QueueViolationsTotal,
		ButtonPressesTotal,
		RangingTimeoutsTotal,
		AutoLocksTotal,
		StateGauge,
	)
}
