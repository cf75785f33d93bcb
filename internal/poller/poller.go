package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Poller/internal/batcher"
	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/safe"
	"github.com/shaiso/Poller/internal/telemetry"
)

// Default configuration values.
const (
	defaultInitialDelay = 1 * time.Second
	defaultPeriod       = 5 * time.Second
)

// ErrAlreadyStarted — повторный Start.
var ErrAlreadyStarted = errors.New("poller already started")

// Capacity сообщает свободную ёмкость (executor.Runner).
type Capacity interface {
	Available() int
}

// backlog — работа, принятая runner'ом, но ещё ждущая permit.
type backlog interface {
	Queued() int64
}

// Batcher формирует batch по ёмкости (batcher.Batcher).
type Batcher interface {
	NextBatch(ctx context.Context, capacity int) (batcher.Batch, error)
}

// Aggregator запускает обработку группы event (aggregator.Aggregator).
type Aggregator interface {
	Schedule(ctx context.Context, eventID string, tasks []domain.SubTask) *executor.Future[domain.Report]

	// Reject сообщает итог event, не раскрытого в sub-tasks.
	Reject(ctx context.Context, eventID string, cause error) domain.Report
}

// Observer получает итог каждого tick.
type Observer interface {
	Ticked(summary TickSummary)
}

// TickSummary — итог одного tick.
type TickSummary struct {
	ID       string        `json:"id"`
	Capacity int           `json:"capacity"`
	Events   int           `json:"events"`
	SubTasks int           `json:"sub_tasks"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Config — конфигурация Poller.
type Config struct {
	Runner     Capacity
	Batcher    Batcher
	Aggregator Aggregator

	// InitialDelay — задержка первого tick (default: 1s).
	InitialDelay time.Duration

	// Period — период fixed-rate (default: 5s). Игнорируется, если задан Schedule.
	Period time.Duration

	// Schedule — расписание tick (опционально, например ParseCron).
	Schedule Schedule

	// Observer (опционально).
	Observer Observer

	Logger *slog.Logger
}

// Poller периодически опрашивает источник events и отправляет
// группы sub-tasks агрегатору.
//
// Tick никогда не ждёт завершения отправленной работы: следующий tick
// видит уменьшенную ёмкость и запрашивает меньше events.
type Poller struct {
	runner     Capacity
	batcher    Batcher
	aggregator Aggregator
	observer   Observer

	initialDelay time.Duration
	schedule     Schedule

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopped    bool
	mu         sync.RWMutex
}

// New создаёт Poller.
func New(cfg Config) *Poller {
	initialDelay := cfg.InitialDelay
	if initialDelay < 0 {
		initialDelay = defaultInitialDelay
	}

	schedule := cfg.Schedule
	if schedule == nil {
		period := cfg.Period
		if period <= 0 {
			period = defaultPeriod
		}
		schedule = FixedRate(period)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		runner:       cfg.Runner,
		batcher:      cfg.Batcher,
		aggregator:   cfg.Aggregator,
		observer:     cfg.Observer,
		initialDelay: initialDelay,
		schedule:     schedule,
		logger:       logger,
	}
}

// Start запускает цикл опроса в отдельной горутине.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel
	p.mu.Unlock()

	p.logger.Info("starting poller",
		"initial_delay", p.initialDelay,
		"schedule", fmt.Sprint(p.schedule),
	)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()

	p.logger.Info("poller started")
	return nil
}

// Stop останавливает цикл опроса. Отправленная работа не прерывается.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancelFunc
	p.mu.Unlock()

	p.logger.Info("stopping poller...")

	if cancel != nil {
		cancel()
	}

	p.wg.Wait()

	p.logger.Info("poller stopped")
}

// IsStopped проверяет, остановлен ли Poller.
func (p *Poller) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// pollLoop — цикл tick'ов по расписанию.
func (p *Poller) pollLoop(ctx context.Context) {
	next := time.Now().Add(p.initialDelay)
	timer := time.NewTimer(p.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.Tick(ctx)

		next = nextAfter(p.schedule, next, time.Now())
		timer.Reset(time.Until(next))
	}
}

// Tick выполняет один цикл опроса.
//
// Ошибки источника и паники batcher'а логируются и возвращаются в
// TickSummary.Err; расписание продолжает работать.
func (p *Poller) Tick(ctx context.Context) TickSummary {
	summary := TickSummary{ID: uuid.New().String()}
	logger := telemetry.WithTickID(p.logger, summary.ID)
	ctx = telemetry.WithLogger(ctx, logger)
	started := time.Now()

	err := safe.Run(func() error {
		return p.tick(ctx, logger, &summary)
	})
	summary.Duration = time.Since(started)

	if err != nil {
		summary.Err = err
		logger.Error("poll tick failed", "error", err)
	} else if summary.Events > 0 {
		logger.Info("poll tick submitted events",
			"capacity", summary.Capacity,
			"events", summary.Events,
			"sub_tasks", summary.SubTasks,
			"failed", summary.Failed,
		)
	} else {
		logger.Debug("poll tick found nothing to do", "capacity", summary.Capacity)
	}

	if p.observer != nil {
		_ = safe.Run(func() error {
			p.observer.Ticked(summary)
			return nil
		})
	}

	return summary
}

func (p *Poller) tick(ctx context.Context, logger *slog.Logger, summary *TickSummary) error {
	summary.Capacity = p.capacity()

	batch, err := p.batcher.NextBatch(ctx, summary.Capacity)
	if err != nil {
		return fmt.Errorf("next batch: %w", err)
	}

	summary.Failed = len(batch.Failed)

	// Остановка poller'а не прерывает уже отправленную работу.
	workCtx := context.WithoutCancel(ctx)

	p.reject(workCtx, logger, batch)

	for _, eventID := range order(batch) {
		tasks := batch.Groups[eventID]
		summary.Events++
		summary.SubTasks += len(tasks)

		// Результат не ждём: отчёт уходит в sink агрегатора.
		p.aggregator.Schedule(workCtx, eventID, tasks)
	}

	if summary.Events > 0 {
		logger.Debug("batch scheduled", "events", summary.Events)
	}
	return nil
}

// capacity — свободные permit'ы за вычетом работы, ждущей permit
// (в том числе агрегаторов прошлых tick'ов).
func (p *Poller) capacity() int {
	free := p.runner.Available()
	if q, ok := p.runner.(backlog); ok {
		free -= int(q.Queued())
	}
	return max(free, 0)
}

// reject отправляет в sink итог events, не попавших в batch, чтобы
// источник мог их закрыть. ID, уже вошедший в batch (дубликат), не
// сообщается: итог по нему даст агрегатор.
func (p *Poller) reject(ctx context.Context, logger *slog.Logger, batch batcher.Batch) {
	if len(batch.Failed) == 0 {
		return
	}

	ids := make([]string, 0, len(batch.Failed))
	for id := range batch.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if _, scheduled := batch.Groups[id]; scheduled {
			continue
		}
		if id == "" {
			logger.Warn("dropping event without id", "error", batch.Failed[id])
			continue
		}
		p.aggregator.Reject(ctx, id, batch.Failed[id])
	}
}

// order возвращает event ID в порядке источника.
func order(batch batcher.Batch) []string {
	if len(batch.Order) == len(batch.Groups) {
		return batch.Order
	}
	ids := make([]string, 0, len(batch.Groups))
	for id := range batch.Groups {
		ids = append(ids, id)
	}
	return ids
}
