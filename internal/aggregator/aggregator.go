package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/outcome"
	"github.com/shaiso/Poller/internal/safe"
	"github.com/shaiso/Poller/internal/telemetry"
)

// Default configuration values.
const (
	defaultSinkTimeout = 10 * time.Second
)

var (
	// ErrJoinTimeout — sub-task не завершился к дедлайну join.
	ErrJoinTimeout = errors.New("sub-task did not finish before join deadline")

	errHandlerFailed = errors.New("classification handler failed")
)

// Sink получает итог обработки event (журнал статусов).
type Sink interface {
	Report(ctx context.Context, report domain.Report) error
}

// SinkFunc — адаптер функции к Sink.
type SinkFunc func(ctx context.Context, report domain.Report) error

// Report вызывает f.
func (f SinkFunc) Report(ctx context.Context, report domain.Report) error {
	return f(ctx, report)
}

// Config — конфигурация Aggregator.
type Config struct {
	// Sink — получатель отчётов (опционально).
	Sink Sink

	// JoinTimeout — дедлайн ожидания sub-tasks одного event.
	// 0 — ждать все sub-tasks без ограничения.
	JoinTimeout time.Duration

	// SinkTimeout — таймаут вызова Sink (default: 10s).
	SinkTimeout time.Duration

	// Observer получает каждый классифицированный контекст (опционально).
	Observer outcome.Observer

	Logger *slog.Logger
}

// Aggregator выполняет sub-tasks одного event и сводит их результаты
// в Report.
type Aggregator struct {
	runner      *executor.Runner
	classifier  *outcome.Classifier
	sink        Sink
	joinTimeout time.Duration
	sinkTimeout time.Duration
	logger      *slog.Logger

	// partition подменяется в тестах.
	partition func(results []domain.TaskContext) (domain.Buckets, domain.Verdict)
}

// New создаёт Aggregator поверх runner.
func New(runner *executor.Runner, cfg Config) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sinkTimeout := cfg.SinkTimeout
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}

	joinTimeout := cfg.JoinTimeout
	if joinTimeout < 0 {
		joinTimeout = 0
	}

	return &Aggregator{
		runner:      runner,
		classifier:  outcome.NewClassifier(logger, cfg.Observer),
		sink:        cfg.Sink,
		joinTimeout: joinTimeout,
		sinkTimeout: sinkTimeout,
		logger:      logger,
		partition:   Partition,
	}
}

// Schedule отправляет обработку event в runner как одну единицу работы.
//
// Агрегатор занимает permit на всё время ожидания своих sub-tasks.
// Future никогда не завершается ошибкой: если обработка не началась
// (ожидание permit прервано), возвращается ALL_RETRYABLE отчёт.
func (a *Aggregator) Schedule(ctx context.Context, eventID string, tasks []domain.SubTask) *executor.Future[domain.Report] {
	started := time.Now()
	f := executor.Submit(a.runner, ctx, func(ctx context.Context) (domain.Report, error) {
		return a.Process(ctx, eventID, tasks), nil
	})

	fallback := domain.Report{
		EventID:   eventID,
		Verdict:   domain.VerdictAllRetryable,
		Submitted: 0,
		StartedAt: started,
	}

	return executor.Handle(f, a.logger, func(report domain.Report, err error) (domain.Report, error) {
		if err == nil {
			return report, nil
		}

		telemetry.WithEventID(a.logger, eventID).Warn("event processing did not start",
			"tasks", len(tasks),
			"error", err,
		)
		report = fallback
		report.FinishedAt = time.Now()
		a.report(ctx, report)
		return report, nil
	}, fallback)
}

// Process выполняет sub-tasks event и ждёт их все.
//
// Этапы: отправка каждой задачи в runner с классификацией исхода,
// ожидание всех результатов, разбор по Result и вывод Verdict.
// Process никогда не паникует и не возвращает ошибку.
func (a *Aggregator) Process(ctx context.Context, eventID string, tasks []domain.SubTask) domain.Report {
	logger := telemetry.WithEventID(a.logger, eventID)
	started := time.Now()

	report := domain.Report{
		EventID:   eventID,
		Submitted: len(tasks),
		StartedAt: started,
	}

	if len(tasks) == 0 {
		logger.Warn("event has no sub-tasks, treating as success")
		report.Verdict = domain.VerdictAllSuccess
		report.FinishedAt = time.Now()
		a.report(ctx, report)
		return report
	}

	subCtx, cancelSubs := context.WithCancel(ctx)
	defer cancelSubs()

	// SUBMITTING
	origins := make([]domain.TaskContext, len(tasks))
	futures := make([]*executor.Future[domain.TaskContext], len(tasks))
	for i, task := range tasks {
		origin := task.Context()
		origins[i] = origin

		f := executor.Submit(a.runner, subCtx, task.Run)
		futures[i] = executor.Handle(f, logger,
			func(tc domain.TaskContext, err error) (domain.TaskContext, error) {
				return a.classifier.Classify(origin, tc, err), nil
			},
			domain.NewErrorContext(domain.ResultRetryable, &origin, errHandlerFailed),
		)
	}

	logger.Debug("sub-tasks submitted", "count", len(futures))

	// AWAITING
	results, timedOut := a.join(futures, origins)
	if timedOut > 0 {
		// Задачи, ещё ждущие permit, больше не нужны.
		cancelSubs()
		logger.Warn("join deadline exceeded",
			"timed_out", timedOut,
			"join_timeout", a.joinTimeout,
		)
	}

	// AGGREGATED
	buckets, verdict := a.safePartition(logger, results)
	report.Buckets = buckets
	report.Verdict = verdict
	report.TimedOut = timedOut
	report.FinishedAt = time.Now()

	logger.Info("event aggregated",
		"verdict", report.Verdict,
		"success", len(buckets.Success),
		"retryable", len(buckets.Retryable),
		"non_retryable", len(buckets.NonRetryable),
		"timed_out", timedOut,
		"duration", report.Duration(),
	)

	a.report(ctx, report)
	return report
}

// Reject сообщает sink'у итог event, который не удалось раскрыть в
// sub-tasks: пустые корзины и Cause. Невалидный event и non-retryable
// ошибка дают ALL_NON_RETRYABLE, остальные ошибки — ALL_RETRYABLE.
func (a *Aggregator) Reject(ctx context.Context, eventID string, cause error) domain.Report {
	now := time.Now()
	report := domain.Report{
		EventID:    eventID,
		Verdict:    RejectVerdict(cause),
		StartedAt:  now,
		FinishedAt: now,
	}
	if cause != nil {
		report.Cause = cause.Error()
	}

	telemetry.WithEventID(a.logger, eventID).Warn("event rejected before sub-tasks",
		"verdict", report.Verdict,
		"error", cause,
	)

	a.report(ctx, report)
	return report
}

// RejectVerdict выводит Verdict для event, отброшенного при раскрытии.
func RejectVerdict(cause error) domain.Verdict {
	if errors.Is(cause, domain.ErrInvalidEvent) || outcome.ResultFor(cause) == domain.ResultNonRetryable {
		return domain.VerdictAllNonRetryable
	}
	return domain.VerdictAllRetryable
}

// join ждёт все futures; при JoinTimeout > 0 незавершённые к дедлайну
// задачи получают FAILURE_RETRYABLE.
func (a *Aggregator) join(futures []*executor.Future[domain.TaskContext], origins []domain.TaskContext) ([]domain.TaskContext, int) {
	waitCtx := context.Background()
	if a.joinTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, a.joinTimeout)
		defer cancel()
	}

	results := make([]domain.TaskContext, len(futures))
	timedOut := 0
	for i, f := range futures {
		tc, err := f.Wait(waitCtx)
		if err != nil {
			timedOut++
			tc = domain.NewErrorContext(domain.ResultRetryable, &origins[i], ErrJoinTimeout)
		}
		results[i] = tc
	}
	return results, timedOut
}

// safePartition раскладывает результаты; любой сбой даёт ALL_RETRYABLE
// с пустыми корзинами.
func (a *Aggregator) safePartition(logger *slog.Logger, results []domain.TaskContext) (domain.Buckets, domain.Verdict) {
	type partitioned struct {
		buckets domain.Buckets
		verdict domain.Verdict
	}

	out := safe.Handle(logger,
		func() (partitioned, error) {
			b, v := a.partition(results)
			return partitioned{buckets: b, verdict: v}, nil
		},
		func(err error) (partitioned, error) {
			logger.Error("aggregation failed, marking event retryable", "error", err)
			return partitioned{verdict: domain.VerdictAllRetryable}, nil
		},
		partitioned{verdict: domain.VerdictAllRetryable},
	)
	return out.buckets, out.verdict
}

// report передаёт отчёт sink'у. Ошибки sink'а только логируются.
func (a *Aggregator) report(ctx context.Context, report domain.Report) {
	if a.sink == nil {
		return
	}

	// Отчёт доставляется и при остановке сервиса.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.sinkTimeout)
	defer cancel()

	err := safe.Run(func() error {
		return a.sink.Report(sinkCtx, report)
	})
	if err != nil {
		a.logger.Error("failed to report event status",
			"event_id", report.EventID,
			"verdict", report.Verdict,
			"error", fmt.Errorf("sink: %w", err),
		)
	}
}

// Partition раскладывает контексты по Result и выводит Verdict.
func Partition(results []domain.TaskContext) (domain.Buckets, domain.Verdict) {
	var b domain.Buckets
	for _, tc := range results {
		b.Add(tc)
	}
	return b, DeriveVerdict(b)
}

// DeriveVerdict выводит Verdict из корзин.
//
// Все SUCCESS — ALL_SUCCESS, все retryable — ALL_RETRYABLE, все
// non-retryable — ALL_NON_RETRYABLE, иначе MIXED. Пустой набор — ALL_SUCCESS.
func DeriveVerdict(b domain.Buckets) domain.Verdict {
	total := b.Total()
	switch {
	case len(b.Success) == total:
		return domain.VerdictAllSuccess
	case len(b.Retryable) == total:
		return domain.VerdictAllRetryable
	case len(b.NonRetryable) == total:
		return domain.VerdictAllNonRetryable
	default:
		return domain.VerdictMixed
	}
}
