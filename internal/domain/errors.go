package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок sub-tasks.
var (
	// ErrRetryable — временная ошибка, повтор upstream безопасен.
	ErrRetryable = errors.New("retryable failure")

	// ErrNonRetryable — структурно некорректный запрос, повтор не поможет.
	ErrNonRetryable = errors.New("non-retryable failure")

	// ErrInterrupted — ожидание permit'а прервано (контекст отменён).
	ErrInterrupted = errors.New("task interrupted")

	// ErrUnclassified — ошибка без известной классификации.
	ErrUnclassified = errors.New("unclassified failure")
)

// Ошибки модели.
var (
	// ErrInvalidEvent — event не удовлетворяет инвариантам.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrResultAlreadySet — попытка повторно установить другой Result.
	ErrResultAlreadySet = errors.New("result already set")

	// ErrInvalidResult — неизвестное значение Result.
	ErrInvalidResult = errors.New("invalid result")
)

// FailureClass — класс ошибки, который видит классификатор.
type FailureClass string

const (
	FailureClassRetryable    FailureClass = "RETRYABLE"
	FailureClassNonRetryable FailureClass = "NON_RETRYABLE"
	FailureClassInterrupted  FailureClass = "INTERRUPTED"
)

// FailureError — ошибка с явным классом.
//
// errors.As находит самую внешнюю FailureError, поэтому
// NonRetryable(Retryable(err)) классифицируется как non-retryable.
type FailureError struct {
	Class FailureClass
	Err   error
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Is сопоставляет FailureError с sentinel-ошибкой своего класса.
func (e *FailureError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *FailureError) sentinel() error {
	switch e.Class {
	case FailureClassNonRetryable:
		return ErrNonRetryable
	case FailureClassInterrupted:
		return ErrInterrupted
	default:
		return ErrRetryable
	}
}

// Retryable помечает err как временную ошибку.
func Retryable(err error) error {
	return &FailureError{Class: FailureClassRetryable, Err: err}
}

// NonRetryable помечает err как неисправимую ошибку.
func NonRetryable(err error) error {
	return &FailureError{Class: FailureClassNonRetryable, Err: err}
}

// Interrupted помечает err как прерывание ожидания.
func Interrupted(err error) error {
	return &FailureError{Class: FailureClassInterrupted, Err: err}
}

// Retryablef — Retryable с форматированным сообщением.
func Retryablef(format string, args ...any) error {
	return Retryable(fmt.Errorf(format, args...))
}

// NonRetryablef — NonRetryable с форматированным сообщением.
func NonRetryablef(format string, args ...any) error {
	return NonRetryable(fmt.Errorf(format, args...))
}

// ClassOf возвращает класс ошибки и признак того, что класс был распознан.
//
// Неизвестные ошибки возвращают (FailureClassRetryable, false).
func ClassOf(err error) (FailureClass, bool) {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Class, true
	}

	switch {
	case errors.Is(err, ErrNonRetryable):
		return FailureClassNonRetryable, true
	case errors.Is(err, ErrInterrupted):
		return FailureClassInterrupted, true
	case errors.Is(err, ErrRetryable):
		return FailureClassRetryable, true
	}

	return FailureClassRetryable, false
}

// IsRetryable возвращает true, если повтор upstream имеет смысл.
// Всё, что не non-retryable, считается retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	class, _ := ClassOf(err)
	return class != FailureClassNonRetryable
}
