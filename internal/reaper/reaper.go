package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default configuration values.
const (
	defaultStaleAfter = 5 * time.Minute
	defaultInterval   = time.Minute
)

// Releaser возвращает брошенные events (repo.EventRepo).
type Releaser interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Lock — блокировка лидера (repo.AdvisoryLock).
type Lock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Config — конфигурация Reaper.
type Config struct {
	Events Releaser

	// Lock (опционально). nil — экземпляр всегда лидер.
	Lock Lock

	// StaleAfter (default: 5m).
	StaleAfter time.Duration

	// Interval (default: 1m).
	Interval time.Duration

	Logger *slog.Logger
}

// Reaper периодически возвращает брошенные events в PENDING.
type Reaper struct {
	events     Releaser
	lock       Lock
	staleAfter time.Duration
	interval   time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// New создаёт Reaper.
func New(cfg Config) *Reaper {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		events:     cfg.Events,
		lock:       cfg.Lock,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     logger,
	}
}

// Tick выполняет один проход. Возвращает число возвращённых events;
// 0 без ошибки, если экземпляр не лидер.
func (r *Reaper) Tick(ctx context.Context) (int64, error) {
	if r.lock != nil {
		leader, err := r.lock.TryLock(ctx)
		if err != nil {
			return 0, fmt.Errorf("leader lock: %w", err)
		}
		if !leader {
			r.logger.Debug("not the leader, skipping reap")
			return 0, nil
		}
	}

	n, err := r.events.ReleaseStale(ctx, r.staleAfter)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.Warn("released stale events", "count", n, "stale_after", r.staleAfter)
	}
	return n, nil
}

// Start запускает периодический проход.
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()

	r.logger.Info("reaper started", "interval", r.interval, "stale_after", r.staleAfter)
}

// Stop останавливает проходы и отпускает блокировку лидера.
func (r *Reaper) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()

	if r.lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.lock.Unlock(ctx); err != nil {
			r.logger.Warn("failed to release leader lock", "error", err)
		}
	}
	r.logger.Info("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				r.logger.Error("reap failed", "error", err)
			}
		}
	}
}
