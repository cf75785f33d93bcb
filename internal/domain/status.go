package domain

import "fmt"

// Result — итог выполнения одного sub-task.
//
// Жизненный цикл:
//
//	(не установлен) → SUCCESS
//	                ↘ FAILURE_RETRYABLE
//	                ↘ FAILURE_NON_RETRYABLE
//
// Все значения терминальные. Result устанавливается ровно один раз.
type Result string

const (
	// ResultUnset — sub-task ещё не достиг терминального состояния.
	ResultUnset Result = ""

	// ResultSuccess — sub-task успешно завершён.
	ResultSuccess Result = "SUCCESS"

	// ResultRetryable — временная ошибка, повтор может помочь.
	ResultRetryable Result = "FAILURE_RETRYABLE"

	// ResultNonRetryable — повтор не поможет.
	ResultNonRetryable Result = "FAILURE_NON_RETRYABLE"
)

// Results — все терминальные значения в порядке вывода.
var Results = []Result{ResultSuccess, ResultRetryable, ResultNonRetryable}

// IsTerminal возвращает true для установленного значения.
func (r Result) IsTerminal() bool {
	switch r {
	case ResultSuccess, ResultRetryable, ResultNonRetryable:
		return true
	default:
		return false
	}
}

// IsFailure возвращает true для обоих видов ошибок.
func (r Result) IsFailure() bool {
	return r == ResultRetryable || r == ResultNonRetryable
}

// String возвращает строковое представление Result.
func (r Result) String() string {
	if r == ResultUnset {
		return "UNSET"
	}
	return string(r)
}

// ParseResult парсит строку в Result.
func ParseResult(s string) (Result, error) {
	switch Result(s) {
	case ResultSuccess, ResultRetryable, ResultNonRetryable:
		return Result(s), nil
	default:
		return ResultUnset, fmt.Errorf("%w: %q", ErrInvalidResult, s)
	}
}

// Verdict — агрегированный итог всех sub-tasks одного event.
type Verdict string

const (
	// VerdictAllSuccess — все sub-tasks завершились SUCCESS.
	VerdictAllSuccess Verdict = "ALL_SUCCESS"

	// VerdictAllRetryable — все sub-tasks завершились FAILURE_RETRYABLE.
	VerdictAllRetryable Verdict = "ALL_RETRYABLE"

	// VerdictAllNonRetryable — все sub-tasks завершились FAILURE_NON_RETRYABLE.
	VerdictAllNonRetryable Verdict = "ALL_NON_RETRYABLE"

	// VerdictMixed — результаты различаются.
	VerdictMixed Verdict = "MIXED"
)

// Verdicts — все значения Verdict.
var Verdicts = []Verdict{VerdictAllSuccess, VerdictAllRetryable, VerdictAllNonRetryable, VerdictMixed}

// String возвращает строковое представление Verdict.
func (v Verdict) String() string {
	return string(v)
}

// ParseVerdict парсит строку в Verdict.
// Неизвестные значения трактуются как MIXED.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictAllSuccess, VerdictAllRetryable, VerdictAllNonRetryable:
		return Verdict(s)
	default:
		return VerdictMixed
	}
}
