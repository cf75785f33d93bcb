// Package outcome превращает пару (контекст, ошибка) завершённого
// sub-task в TaskContext с установленным Result.
//
// Classify никогда не паникует и всегда возвращает контекст с Result:
// это позволяет агрегатору ждать все sub-tasks event без риска, что
// одна ошибка оборвёт обработку всего event.
package outcome

import (
	"errors"
	"log/slog"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/safe"
)

// errNoOutcome — ни контекста, ни ошибки: sub-task нарушил контракт.
var errNoOutcome = errors.New("sub-task returned neither context nor error")

// Classify классифицирует результат sub-task.
//
//   - err == nil: tc получает SUCCESS. Контекст уже с SUCCESS возвращается
//     без изменений: TaskContext — значение, поэтому "тот же контекст"
//     означает равную копию, а не тот же указатель;
//   - retryable или прерывание ожидания: FAILURE_RETRYABLE;
//   - non-retryable: FAILURE_NON_RETRYABLE;
//   - всё остальное: FAILURE_RETRYABLE.
//
// Внутренняя ошибка классификации (nil-контекст без ошибки, конфликт
// Result) даёт FAILURE_RETRYABLE error-контекст.
func Classify(tc *domain.TaskContext, err error) domain.TaskContext {
	return ClassifyFrom(nil, tc, err, nil)
}

// ClassifyFrom — Classify с исходным контекстом и логгером.
//
// origin — исходный контекст sub-task; из него error-контекст берёт
// event, asset и rule. Может быть nil.
func ClassifyFrom(origin, tc *domain.TaskContext, err error, logger *slog.Logger) domain.TaskContext {
	fallback := domain.NewErrorContext(domain.ResultRetryable, origin, err)

	return safe.Apply(logger, tc, err, func(tc *domain.TaskContext, err error) (domain.TaskContext, error) {
		if err == nil {
			if tc == nil {
				return domain.TaskContext{}, errNoOutcome
			}
			return tc.WithResult(domain.ResultSuccess)
		}
		return domain.NewErrorContext(ResultFor(err), origin, err), nil
	}, fallback)
}

// ResultFor отображает ошибку на Result.
func ResultFor(err error) domain.Result {
	if err == nil {
		return domain.ResultSuccess
	}
	class, _ := domain.ClassOf(err)
	if class == domain.FailureClassNonRetryable {
		return domain.ResultNonRetryable
	}
	return domain.ResultRetryable
}

// Observer получает каждый классифицированный контекст.
type Observer interface {
	Classified(tc domain.TaskContext, err error)
}

// Classifier — Classify с логированием и наблюдателем.
type Classifier struct {
	logger   *slog.Logger
	observer Observer
}

// NewClassifier создаёт Classifier. observer может быть nil.
func NewClassifier(logger *slog.Logger, observer Observer) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger, observer: observer}
}

// Classify классифицирует результат sub-task, созданного из origin.
func (c *Classifier) Classify(origin domain.TaskContext, tc domain.TaskContext, err error) domain.TaskContext {
	var in *domain.TaskContext
	if err == nil {
		in = &tc
	}

	out := ClassifyFrom(&origin, in, err, c.logger)

	if err != nil {
		_, known := domain.ClassOf(err)
		c.logger.Warn("sub-task failed",
			"event_id", origin.EventID(),
			"asset_id", origin.AssetID(),
			"rule_id", origin.RuleID(),
			"result", out.Result(),
			"classified", known,
			"panic", safe.IsPanic(err),
			"error", err,
		)
	}

	if c.observer != nil {
		// Наблюдатель не должен влиять на результат.
		_ = safe.Run(func() error {
			c.observer.Classified(out, err)
			return nil
		})
	}

	return out
}
