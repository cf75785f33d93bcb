package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Poller/internal/config"
	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/service"
	"github.com/shaiso/Poller/internal/status"
)

// Default configuration values.
const (
	defaultDuration     = 12 * time.Second
	defaultDrainTimeout = 30 * time.Second
	recentReports       = 10
)

// Options — параметры симуляции.
type Options struct {
	// Config (default: config.Default()).
	Config *config.Config

	// Duration — сколько работает poller (default: 12s).
	Duration time.Duration

	// Events — сколько всего events сгенерировать (0 — без ограничения).
	Events int

	// DrainTimeout — сколько ждать отправленную работу после остановки
	// (default: 30s).
	DrainTimeout time.Duration

	// Action подменяет действие правил (опционально).
	Action domain.Action

	// CompletionAction подменяет действие завершающей задачи (опционально).
	CompletionAction domain.Action

	Logger *slog.Logger
}

// Result — итог симуляции.
type Result struct {
	Ticks    int64           `json:"ticks"`
	Produced int             `json:"produced"`
	Summary  status.Summary  `json:"summary"`
	Runner   executor.Stats  `json:"runner"`
	Recent   []domain.Report `json:"recent"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Run запускает poller над сгенерированными events на opts.Duration,
// затем останавливает его и ждёт отправленную работу.
func Run(ctx context.Context, opts Options) (Result, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	source := NewSource(cfg.SimAssets, opts.Events)

	svc, err := service.New(service.Config{
		App:              cfg,
		Source:           source,
		Action:           opts.Action,
		CompletionAction: opts.CompletionAction,
		Logger:           logger,
	})
	if err != nil {
		return Result{}, fmt.Errorf("build service: %w", err)
	}

	started := time.Now()
	if err := svc.Start(ctx); err != nil {
		return Result{}, err
	}

	timer := time.NewTimer(duration)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	stopErr := svc.Stop(drainCtx)

	res := Result{
		Ticks:    svc.Ticks(),
		Produced: source.Produced(),
		Summary:  svc.Recorder.Summary(),
		Runner:   svc.Runner.Stats(),
		Recent:   svc.Recorder.Recent(recentReports),
		Elapsed:  time.Since(started),
	}

	logger.Info("simulation finished",
		"ticks", res.Ticks,
		"events", res.Produced,
		"reported", res.Summary.Events,
		"elapsed", res.Elapsed,
	)
	return res, stopErr
}
