package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Poller/internal/executor"
)

const namespace = "poller"

// Metrics — Prometheus метрики poller'а.
type Metrics struct {
	reg prometheus.Registerer

	subTaskResults      *prometheus.CounterVec
	eventVerdicts       *prometheus.CounterVec
	ticks               prometheus.Counter
	tickErrors          prometheus.Counter
	eventsFetched       prometheus.Counter
	eventsFailed        prometheus.Counter
	aggregationDuration prometheus.Histogram
}

// NewMetrics регистрирует метрики в reg.
// nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		subTaskResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtask_results_total",
			Help:      "Classified sub-task results by result",
		}, []string{"result"}),
		eventVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_verdicts_total",
			Help:      "Aggregated events by verdict",
		}, []string{"verdict"}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Poll ticks executed",
		}),
		tickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Poll ticks that failed",
		}),
		eventsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fetched_total",
			Help:      "Events submitted for processing",
		}),
		eventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped from a batch because expansion failed",
		}),
		aggregationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time from first sub-task submission to event verdict",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

// RegisterRunner публикует счётчики runner'а как gauges.
func (m *Metrics) RegisterRunner(r *executor.Runner) {
	f := promauto.With(m.reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_queued",
		Help:      "Work accepted but waiting for a permit",
	}, func() float64 { return float64(r.Queued()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_active",
		Help:      "Work currently running",
	}, func() float64 { return float64(r.Active()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "permits_available",
		Help:      "Free admission permits",
	}, func() float64 { return float64(r.Available()) })
}

// ObserveResult учитывает классифицированный sub-task.
func (m *Metrics) ObserveResult(result string) {
	m.subTaskResults.WithLabelValues(result).Inc()
}

// ObserveVerdict учитывает агрегированный event.
func (m *Metrics) ObserveVerdict(verdict string, duration time.Duration) {
	m.eventVerdicts.WithLabelValues(verdict).Inc()
	if duration > 0 {
		m.aggregationDuration.Observe(duration.Seconds())
	}
}

// ObserveTick учитывает tick.
func (m *Metrics) ObserveTick(events, failed int, err error) {
	m.ticks.Inc()
	if err != nil {
		m.tickErrors.Inc()
	}
	m.eventsFetched.Add(float64(events))
	m.eventsFailed.Add(float64(failed))
}
