package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/safe"
)

// Default configuration values.
const (
	defaultBatchFraction = 0.1

	// MaxBatchFraction — верхняя граница BatchFraction. Каждый event
	// занимает permit под агрегатор, поэтому половина ёмкости всегда
	// остаётся его sub-tasks.
	MaxBatchFraction = 0.5

	// fanoutAlpha — вес нового наблюдения в EWMA fan-out.
	fanoutAlpha = 0.2

	// epsilon компенсирует ошибку float при floor(capacity*fraction).
	epsilon = 1e-9
)

// Source — источник events (журнал событий).
type Source interface {
	// Fetch возвращает не более max events. Пустой результат — норма.
	Fetch(ctx context.Context, max int) ([]domain.Event, error)
}

// SourceFunc — адаптер функции к Source.
type SourceFunc func(ctx context.Context, max int) ([]domain.Event, error)

// Fetch вызывает f.
func (f SourceFunc) Fetch(ctx context.Context, max int) ([]domain.Event, error) {
	return f(ctx, max)
}

// Expander раскрывает event в rule-задачи.
//
// Порядок задач: assets в порядке event, правила в порядке кэша.
type Expander interface {
	Expand(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error)
}

// ExpanderFunc — адаптер функции к Expander.
type ExpanderFunc func(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error)

// Expand вызывает f.
func (f ExpanderFunc) Expand(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
	return f(ctx, ev)
}

// Batch — результат одного опроса источника.
type Batch struct {
	// Groups — sub-tasks по event ID.
	Groups map[string][]domain.SubTask

	// Events — events, попавшие в Groups.
	Events map[string]*domain.Event

	// Order — event ID в порядке источника.
	Order []string

	// Failed — events, которые не удалось раскрыть.
	Failed map[string]error
}

// SubTasks возвращает общее число sub-tasks.
func (b Batch) SubTasks() int {
	n := 0
	for _, g := range b.Groups {
		n += len(g)
	}
	return n
}

// Len возвращает число events в Groups.
func (b Batch) Len() int {
	return len(b.Groups)
}

func emptyBatch() Batch {
	return Batch{
		Groups: map[string][]domain.SubTask{},
		Events: map[string]*domain.Event{},
		Failed: map[string]error{},
	}
}

// Config — конфигурация Batcher.
type Config struct {
	Source   Source
	Expander Expander

	// Completion решает, добавлять ли завершающую задачу (default: Never).
	Completion CompletionPolicy

	// CompletionAction — действие завершающей задачи (default: no-op).
	CompletionAction domain.Action

	// BatchFraction — доля capacity, превращаемая в events (default: 0.1,
	// не больше MaxBatchFraction).
	BatchFraction float64

	// Adaptive — размер batch по наблюдаемому fan-out.
	Adaptive bool

	Logger *slog.Logger
}

// Batcher превращает свободную ёмкость в сгруппированные sub-tasks.
type Batcher struct {
	source           Source
	expander         Expander
	completion       CompletionPolicy
	completionAction domain.Action
	fraction         float64
	adaptive         bool
	logger           *slog.Logger

	mu     sync.Mutex
	fanout float64
}

// New создаёт Batcher.
func New(cfg Config) *Batcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fraction := cfg.BatchFraction
	switch {
	case fraction <= 0:
		fraction = defaultBatchFraction
	case fraction > MaxBatchFraction:
		logger.Warn("batch fraction too large, clamping",
			"batch_fraction", fraction,
			"max", MaxBatchFraction,
		)
		fraction = MaxBatchFraction
	}

	completion := cfg.Completion
	if completion == nil {
		completion = Never()
	}

	action := cfg.CompletionAction
	if action == nil {
		action = domain.ActionFunc(func(ctx context.Context, tc domain.TaskContext) error {
			return nil
		})
	}

	return &Batcher{
		source:           cfg.Source,
		expander:         cfg.Expander,
		completion:       completion,
		completionAction: action,
		fraction:         fraction,
		adaptive:         cfg.Adaptive,
		logger:           logger,
		fanout:           1/fraction - 1,
	}
}

// Fanout возвращает текущую оценку sub-tasks на event (без агрегатора).
func (b *Batcher) Fanout() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fanout
}

// EventsFor возвращает, сколько events запросить при данной ёмкости.
//
// Фиксированный режим: floor(capacity * BatchFraction).
// Адаптивный: floor(capacity / (fanout + 1)), где +1 — permit агрегатора.
//
// Результат не превышает capacity/2: агрегаторы одного tick'а не могут
// занять все permit'ы и оставить свои sub-tasks без ёмкости.
func (b *Batcher) EventsFor(capacity int) int {
	if capacity <= 0 {
		return 0
	}

	var n float64
	if b.adaptive {
		n = float64(capacity) / (b.Fanout() + 1)
	} else {
		n = float64(capacity) * b.fraction
	}
	return min(int(math.Floor(n+epsilon)), capacity/2)
}

// NextBatch запрашивает events у источника и раскрывает их в sub-tasks.
//
// Ошибка источника возвращается. Ошибка раскрытия отдельного event
// попадает в Batch.Failed, остальные events обрабатываются.
func (b *Batcher) NextBatch(ctx context.Context, capacity int) (Batch, error) {
	batch := emptyBatch()

	n := b.EventsFor(capacity)
	if n == 0 {
		return batch, nil
	}

	events, err := b.source.Fetch(ctx, n)
	if err != nil {
		return batch, fmt.Errorf("fetch events: %w", err)
	}
	if len(events) > n {
		b.logger.Warn("source returned more events than requested",
			"requested", n,
			"returned", len(events),
		)
	}

	for i := range events {
		ev := events[i]

		if err := ev.Validate(); err != nil {
			b.fail(&batch, ev.ID, err)
			continue
		}
		if _, dup := batch.Groups[ev.ID]; dup {
			b.fail(&batch, ev.ID, fmt.Errorf("%w: duplicate event id", domain.ErrInvalidEvent))
			continue
		}

		tasks, err := b.expand(ctx, &ev)
		if err != nil {
			b.fail(&batch, ev.ID, err)
			continue
		}

		batch.Groups[ev.ID] = tasks
		batch.Events[ev.ID] = &ev
		batch.Order = append(batch.Order, ev.ID)
	}

	b.observe(batch)
	return batch, nil
}

// expand раскрывает один event; паника expander'а становится ошибкой.
func (b *Batcher) expand(ctx context.Context, ev *domain.Event) ([]domain.SubTask, error) {
	return safe.Call(func() ([]domain.SubTask, error) {
		tasks, err := b.expander.Expand(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("expand event %s: %w", ev.ID, err)
		}

		if b.completion.Include(ev) {
			tasks = append(tasks, domain.NewCompletionTask(ev, b.completionAction))
		}
		return tasks, nil
	})
}

func (b *Batcher) fail(batch *Batch, eventID string, err error) {
	batch.Failed[eventID] = err
	b.logger.Warn("event dropped from batch",
		"event_id", eventID,
		"error", err,
	)
}

// observe обновляет EWMA fan-out по раскрытым events.
func (b *Batcher) observe(batch Batch) {
	if len(batch.Groups) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range batch.Order {
		sample := float64(len(batch.Groups[id]))
		if sample < 1 {
			sample = 1
		}
		b.fanout = fanoutAlpha*sample + (1-fanoutAlpha)*b.fanout
	}
}
