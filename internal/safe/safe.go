// Package safe — единый комбинатор "выполнить, при ошибке восстановиться,
// при ошибке восстановления вернуть фиксированный default".
//
// Используется на каждой конкурентной границе: в runner'е, в
// классификаторе, в агрегаторе и в тике poller'а. Паники внутри
// переданных функций перехватываются и превращаются в *PanicError.
package safe

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError — паника, перехваченная при выполнении функции.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap возвращает значение паники, если это error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsPanic проверяет, что err содержит *PanicError.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Call выполняет fn и превращает панику в *PanicError.
func Call[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Run — Call для функций без значения.
func Run(fn func() error) error {
	_, err := Call(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Handle выполняет fn; при ошибке вызывает recoverFn; если и recoverFn
// завершился ошибкой или паникой, возвращает fallback.
func Handle[T any](logger *slog.Logger, fn func() (T, error), recoverFn func(error) (T, error), fallback T) T {
	v, err := Call(fn)
	if err == nil {
		return v
	}
	return Apply(logger, v, err, func(_ T, err error) (T, error) {
		return recoverFn(err)
	}, fallback)
}

// Apply передаёт пару (значение, ошибка) в handler. Если handler
// завершился ошибкой или паникой, возвращается fallback.
//
// Это аналог handle() у future: вызывается при любом исходе и всегда
// возвращает значение.
func Apply[T, R any](logger *slog.Logger, v T, err error, handler func(T, error) (R, error), fallback R) R {
	out, herr := Call(func() (R, error) {
		return handler(v, err)
	})
	if herr != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("handler failed, using fallback",
			"error", herr,
			"cause", err,
			"panic", IsPanic(herr),
		)
		return fallback
	}
	return out
}
