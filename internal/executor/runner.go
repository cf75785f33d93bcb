package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaiso/Poller/internal/gate"
	"github.com/shaiso/Poller/internal/safe"
)

// Stats — снимок счётчиков Runner.
type Stats struct {
	// Queued — принято, но ещё ждёт permit.
	Queued int64 `json:"queued"`

	// Active — выполняется прямо сейчас.
	Active int64 `json:"active"`

	// Available — свободные permit'ы gate.
	Available int `json:"available"`

	// Max — общее число permit'ов.
	Max int `json:"max"`
}

// Option настраивает Runner.
type Option func(*Runner)

// WithLogger задаёт логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner — горутина на каждую единицу работы, запуск через gate.
//
// Отправка работы никогда не блокируется. Счётчики queued/active
// принадлежат экземпляру: два Runner'а не делят состояние.
type Runner struct {
	gate   *gate.Gate
	logger *slog.Logger

	queued atomic.Int64
	active atomic.Int64

	wg sync.WaitGroup
}

// New создаёт Runner поверх gate.
func New(g *gate.Gate, opts ...Option) *Runner {
	r := &Runner{gate: g}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Gate возвращает admission gate.
func (r *Runner) Gate() *gate.Gate {
	return r.gate
}

// Queued возвращает число работ, ожидающих permit.
func (r *Runner) Queued() int64 {
	return r.queued.Load()
}

// Active возвращает число выполняющихся работ.
func (r *Runner) Active() int64 {
	return r.active.Load()
}

// Available возвращает число свободных permit'ов (подсказка).
func (r *Runner) Available() int {
	return r.gate.Available()
}

// Stats возвращает снимок счётчиков.
func (r *Runner) Stats() Stats {
	return Stats{
		Queued:    r.queued.Load(),
		Active:    r.active.Load(),
		Available: r.gate.Available(),
		Max:       r.gate.Max(),
	}
}

// Wait блокируется, пока не завершится вся отправленная работа.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Go отправляет работу без значения.
func (r *Runner) Go(ctx context.Context, fn func(ctx context.Context) error) *Future[struct{}] {
	return Submit(r, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Submit отправляет работу со значением.
//
// Работа стартует после получения permit'а. Ошибка fn, паника
// (как *safe.PanicError) и прерывание ожидания permit'а
// (domain.ErrInterrupted) возвращаются через future.
func Submit[T any](r *Runner, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	r.queued.Add(1)
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		if err := r.gate.Acquire(ctx); err != nil {
			r.queued.Add(-1)
			r.logger.Debug("task interrupted while waiting for permit", "error", err)
			var zero T
			f.complete(zero, err)
			return
		}

		r.queued.Add(-1)
		r.active.Add(1)

		v, err := safe.Call(func() (T, error) {
			return fn(ctx)
		})

		// active уменьшается до Release, иначе active может на миг превысить max
		r.active.Add(-1)
		r.gate.Release()

		if safe.IsPanic(err) {
			r.logger.Error("task panicked", "error", err)
		}

		f.complete(v, err)
	}()

	return f
}
