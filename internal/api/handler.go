package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/executor"
	"github.com/shaiso/Poller/internal/repo"
	"github.com/shaiso/Poller/internal/status"
)

// RunnerStats — источник статистики runner'а (executor.Runner).
type RunnerStats interface {
	Stats() executor.Stats
}

// ReportStore — долговременное хранилище статусов (repo.StatusRepo).
type ReportStore interface {
	GetByEventID(ctx context.Context, eventID string) (*repo.StatusRecord, error)
}

// EventPublisher ставит event в очередь (mq.Publisher).
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// PublishFunc — адаптер функции к EventPublisher (например, EventRepo.Append).
type PublishFunc func(ctx context.Context, event domain.Event) error

// PublishEvent вызывает f.
func (f PublishFunc) PublishEvent(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runner    RunnerStats
	recorder  *status.Recorder
	store     ReportStore
	publisher EventPublisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runner   RunnerStats
	Recorder *status.Recorder

	// Store — fallback для events, вытесненных из Recorder (опционально).
	Store ReportStore

	// Publisher включает POST /api/v1/events (опционально).
	Publisher EventPublisher

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = status.NewRecorder(0)
	}

	return &Handler{
		runner:    cfg.Runner,
		recorder:  recorder,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}
