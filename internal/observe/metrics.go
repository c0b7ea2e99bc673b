package observe

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remindbot"

// Run results used as the "result" label of runs_total.
const (
	RunOK           = "ok"
	RunSourceError  = "source_error"
	RunComputeError = "compute_error"
)

// Metrics holds the Prometheus collectors of the reminder runs.
type Metrics struct {
	sent           *prometheus.CounterVec
	failed         *prometheus.CounterVec
	attemptsFailed *prometheus.CounterVec
	stateFailures  prometheus.Counter
	auditFailures  prometheus.Counter

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
	due         prometheus.Gauge
	itemErrors  prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg (the default registerer
// when nil). Collectors already registered under the same name are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	byThreshold := []string{"threshold"}
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "sent_total",
			Help: "Reminders delivered, by threshold.",
		}, byThreshold),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "failed_total",
			Help: "Reminders that failed after every attempt, by threshold.",
		}, byThreshold),
		attemptsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "attempts_failed_total",
			Help: "Individual send attempts that failed, by threshold.",
		}, byThreshold),
		stateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "state_write_failures_total",
			Help: "Reminder-state tokens that could not be written back.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "audit_write_failures_total",
			Help: "Audit rows that could not be written.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "run", Name: "total",
			Help: "Runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "run", Name: "duration_seconds",
			Help:    "Wall time of a run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "run", Name: "last_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		due: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "run", Name: "due_reminders",
			Help: "Reminders due in the last run.",
		}),
		itemErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "run", Name: "item_errors",
			Help: "Invalid records seen by the last run.",
		}),
	}

	m.sent = register(reg, m.sent)
	m.failed = register(reg, m.failed)
	m.attemptsFailed = register(reg, m.attemptsFailed)
	m.stateFailures = register(reg, m.stateFailures)
	m.auditFailures = register(reg, m.auditFailures)
	m.runs = register(reg, m.runs)
	m.runDuration = register(reg, m.runDuration)
	m.lastRun = register(reg, m.lastRun)
	m.due = register(reg, m.due)
	m.itemErrors = register(reg, m.itemErrors)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunStats is what a finished run reports.
type RunStats struct {
	Result     string
	Duration   time.Duration
	FinishedAt time.Time
	Due        int
	ItemErrors int
}

func (m *Metrics) ObserveRun(s RunStats) {
	if m == nil {
		return
	}
	if s.Result == "" {
		s.Result = RunOK
	}
	m.runs.WithLabelValues(s.Result).Inc()
	m.runDuration.Observe(s.Duration.Seconds())
	if !s.FinishedAt.IsZero() {
		m.lastRun.Set(float64(s.FinishedAt.Unix()))
	}
	m.due.Set(float64(s.Due))
	m.itemErrors.Set(float64(s.ItemErrors))
}
