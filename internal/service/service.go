package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Poller/internal/aggregator"
	"github.com/shaiso/Poller/internal/batcher"
	"github.com/shaiso/Poller/internal/config"
	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/gate"
	"github.com/shaiso/Poller/internal/poller"
	"github.com/shaiso/Poller/internal/rules"
	"github.com/shaiso/Poller/internal/status"
	"github.com/shaiso/Poller/internal/telemetry"
)

// ErrNoSource — не задан источник events.
var ErrNoSource = errors.New("event source is required")

// Config — зависимости сервиса.
type Config struct {
	// App — конфигурация (обязательно).
	App *config.Config

	// Source — источник events (обязательно).
	Source batcher.Source

	// Sinks — дополнительные получатели отчётов.
	Sinks []status.Sink

	// Action — действие правил. nil: HTTPAction при заданном
	// EvaluatorURL, иначе SimAction.
	Action domain.Action

	// CompletionAction — действие завершающей задачи (default: симуляция).
	CompletionAction domain.Action

	// Registerer для метрик. nil — отдельный реестр.
	Registerer prometheus.Registerer

	// Rand — генератор для симуляции (опционально).
	Rand *rand.Rand

	Logger *slog.Logger
}

// Service — собранный poller.
type Service struct {
	Gate       *gate.Gate
	Runner     *executor.Runner
	Batcher    *batcher.Batcher
	Aggregator *aggregator.Aggregator
	Poller     *poller.Poller
	Recorder   *status.Recorder
	Metrics    *telemetry.Metrics

	metricsSink *status.MetricsSink
	ticks       atomic.Int64
	logger      *slog.Logger
}

// New собирает сервис.
func New(cfg Config) (*Service, error) {
	if cfg.App == nil {
		cfg.App = config.Default()
	}
	if cfg.Source == nil {
		return nil, ErrNoSource
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	app := cfg.App
	if err := app.Validate(); err != nil {
		return nil, err
	}

	schedule, err := pollSchedule(app)
	if err != nil {
		return nil, err
	}

	cache := rules.NewCache()
	if len(app.Rules) > 0 {
		if err := cache.Load(app.Rules); err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}

	action := cfg.Action
	if action == nil {
		action = ruleAction(app, rnd)
	}

	completionAction := cfg.CompletionAction
	if completionAction == nil {
		completionAction = rules.NewSimCompletionAction(rnd)
	}

	s := &Service{
		Gate:     gate.New(app.MaxConcurrentTasks),
		Recorder: status.NewRecorder(app.RecorderSize),
		Metrics:  telemetry.NewMetrics(reg),
		logger:   logger,
	}
	s.metricsSink = status.NewMetricsSink(s.Metrics)

	s.Runner = executor.New(s.Gate, executor.WithLogger(logger))
	s.Metrics.RegisterRunner(s.Runner)

	s.Batcher = batcher.New(batcher.Config{
		Source:           cfg.Source,
		Expander:         rules.NewExpander(cache, rules.NewRegistry(action)),
		Completion:       batcher.Probability(app.CompletionProbability, rnd),
		CompletionAction: completionAction,
		BatchFraction:    app.BatchFraction,
		Adaptive:         app.AdaptiveFanout,
		Logger:           logger,
	})

	sinks := status.Multi{s.Recorder, status.NewLogSink(logger), s.metricsSink}
	sinks = append(sinks, cfg.Sinks...)

	s.Aggregator = aggregator.New(s.Runner, aggregator.Config{
		Sink:        sinks,
		JoinTimeout: app.JoinTimeout,
		Observer:    s.metricsSink,
		Logger:      logger,
	})

	s.Poller = poller.New(poller.Config{
		Runner:       s.Runner,
		Batcher:      s.Batcher,
		Aggregator:   s.Aggregator,
		InitialDelay: app.PollInitialDelay,
		Period:       app.PollPeriod,
		Schedule:     schedule,
		Observer:     s,
		Logger:       logger,
	})

	return s, nil
}

func pollSchedule(app *config.Config) (poller.Schedule, error) {
	if app.PollCron == "" {
		return nil, nil
	}
	schedule, err := poller.ParseCron(app.PollCron)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return schedule, nil
}

func ruleAction(app *config.Config, rnd *rand.Rand) domain.Action {
	if app.EvaluatorURL != "" {
		return &rules.HTTPAction{URL: app.EvaluatorURL}
	}
	return rules.NewSimAction(rnd)
}

// Ticked считает tick'и и передаёт итог в метрики.
func (s *Service) Ticked(summary poller.TickSummary) {
	s.ticks.Add(1)
	s.metricsSink.Ticked(summary)
}

// Ticks возвращает число выполненных tick'ов.
func (s *Service) Ticks() int64 {
	return s.ticks.Load()
}

// Start запускает опрос.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting service",
		"max_concurrent_tasks", s.Gate.Max(),
		"fanout", s.Batcher.Fanout(),
	)
	return s.Poller.Start(ctx)
}

// Stop останавливает опрос и ждёт отправленную работу до дедлайна ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.Poller.Stop()

	done := make(chan struct{})
	go func() {
		s.Runner.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all submitted work finished")
		return nil
	case <-ctx.Done():
		stats := s.Runner.Stats()
		s.logger.Warn("shutdown deadline exceeded with work in flight",
			"active", stats.Active,
			"queued", stats.Queued,
		)
		return fmt.Errorf("drain runner: %w", ctx.Err())
	}
}
