package executor

import (
	"context"
	"log/slog"

	"github.com/shaiso/Poller/internal/safe"
)

// Future — handle результата работы, отправленной в Runner.
//
// Future завершается ровно один раз: значением или ошибкой.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete вызывается ровно один раз владельцем future.
func (f *Future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done возвращает канал, закрывающийся при завершении.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait ждёт завершения или отмены ctx.
//
// Отмена ctx не отменяет саму работу.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get блокируется до завершения.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Completed возвращает готовый future.
func Completed[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(v, err)
	return f
}

// Handle связывает future с обработчиком, который вызывается при любом
// исходе. Результирующий future никогда не завершается ошибкой: если
// handler упал или запаниковал, используется fallback.
func Handle[T, R any](f *Future[T], logger *slog.Logger, handler func(T, error) (R, error), fallback R) *Future[R] {
	out := newFuture[R]()
	go func() {
		v, err := f.Get()
		out.complete(safe.Apply(logger, v, err, handler, fallback), nil)
	}()
	return out
}
