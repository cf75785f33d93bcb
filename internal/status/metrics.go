package status

import (
	"context"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/poller"
	"github.com/shaiso/Poller/internal/telemetry"
)

// MetricsSink переводит отчёты, классификации и tick'и в метрики.
//
// Реализует Sink, outcome.Observer и poller.Observer.
type MetricsSink struct {
	metrics *telemetry.Metrics
}

// NewMetricsSink создаёт MetricsSink.
func NewMetricsSink(m *telemetry.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Report учитывает вердикт event.
func (s *MetricsSink) Report(ctx context.Context, report domain.Report) error {
	s.metrics.ObserveVerdict(report.Verdict.String(), report.Duration())
	return nil
}

// Classified учитывает результат sub-task.
func (s *MetricsSink) Classified(tc domain.TaskContext, err error) {
	s.metrics.ObserveResult(tc.Result().String())
}

// Ticked учитывает tick.
func (s *MetricsSink) Ticked(summary poller.TickSummary) {
	s.metrics.ObserveTick(summary.Events, summary.Failed, summary.Err)
}
