// Package gate — admission gate: счётный семафор, ограничивающий число
// одновременно выполняемых sub-tasks.
//
// Число permit'ов задаётся при создании и не меняется. Available()
// — подсказка для размера следующего batch, а не резервирование.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Poller/internal/domain"
)

// Gate ограничивает число одновременно работающих единиц работы.
type Gate struct {
	sem  *semaphore.Weighted
	max  int64
	held atomic.Int64
}

// New создаёт Gate с max permit'ами. Отрицательное значение
// трактуется как 0: такой gate никого не пропускает.
func New(max int) *Gate {
	if max < 0 {
		max = 0
	}
	return &Gate{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// Max возвращает общее число permit'ов.
func (g *Gate) Max() int {
	return int(g.max)
}

// Available возвращает число свободных permit'ов без блокировки.
//
// Значение может устареть сразу после чтения.
func (g *Gate) Available() int {
	avail := g.max - g.held.Load()
	if avail < 0 {
		return 0
	}
	return int(avail)
}

// HasCapacity возвращает true, если есть хотя бы один свободный permit.
func (g *Gate) HasCapacity() bool {
	return g.Available() > 0
}

// Acquire блокируется до получения permit'а.
//
// Отмена ctx во время ожидания возвращает ошибку, совместимую с
// domain.ErrInterrupted; permit при этом не занимается.
func (g *Gate) Acquire(ctx context.Context) error {
	// semaphore.Acquire может успеть взять permit на уже отменённом ctx.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("acquire permit: %w", domain.Interrupted(err))
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire permit: %w", domain.Interrupted(err))
	}
	g.held.Add(1)
	return nil
}

// TryAcquire берёт permit без ожидания.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.held.Add(1)
	return true
}

// Release возвращает permit.
func (g *Gate) Release() {
	g.held.Add(-1)
	g.sem.Release(1)
}

// Do получает permit, выполняет fn и освобождает permit при любом
// исходе, включая панику (она пробрасывается дальше после Release).
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
