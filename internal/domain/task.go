package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// ContextKind — вариант TaskContext.
//
// Набор вариантов закрыт: код, который ветвится по Kind, обязан
// обрабатывать все три значения.
type ContextKind string

const (
	// ContextKindRule — проверка одного правила для одного asset (DP).
	ContextKindRule ContextKind = "RULE"

	// ContextKindCompletion — завершающая задача event (EP).
	ContextKindCompletion ContextKind = "COMPLETION"

	// ContextKindError — результат классификации ошибки.
	ContextKindError ContextKind = "ERROR"
)

// TaskContext — контекст sub-task и его Result.
//
// TaskContext — значение. Переход в терминальное состояние выполняется
// через WithResult, который возвращает новый контекст; исходный не
// меняется. Поэтому контекст можно безопасно передавать между горутинами.
type TaskContext struct {
	kind    ContextKind
	event   *Event
	assetID string
	ruleID  string
	result  Result
	cause   string
}

// NewRuleContext создаёт контекст проверки правила ruleID для asset.
func NewRuleContext(event *Event, assetID, ruleID string) TaskContext {
	return TaskContext{
		kind:    ContextKindRule,
		event:   event,
		assetID: assetID,
		ruleID:  ruleID,
	}
}

// NewCompletionContext создаёт контекст завершающей задачи event.
func NewCompletionContext(event *Event) TaskContext {
	return TaskContext{
		kind:  ContextKindCompletion,
		event: event,
	}
}

// NewErrorContext создаёт error-контекст с установленным Result.
//
// origin — контекст упавшего sub-task, если он известен (может быть nil).
// Из него переносятся event, asset и rule для диагностики.
func NewErrorContext(result Result, origin *TaskContext, cause error) TaskContext {
	tc := TaskContext{
		kind:   ContextKindError,
		result: result,
	}
	if origin != nil {
		tc.event = origin.event
		tc.assetID = origin.assetID
		tc.ruleID = origin.ruleID
	}
	if cause != nil {
		tc.cause = cause.Error()
	}
	return tc
}

// Kind возвращает вариант контекста.
func (c TaskContext) Kind() ContextKind { return c.kind }

// Event возвращает event-владельца. nil возможен только для ContextKindError.
func (c TaskContext) Event() *Event { return c.event }

// EventID возвращает ID event-владельца или пустую строку.
func (c TaskContext) EventID() string {
	if c.event == nil {
		return ""
	}
	return c.event.ID
}

// AssetID возвращает asset (только для RULE и ERROR).
func (c TaskContext) AssetID() string { return c.assetID }

// RuleID возвращает правило (только для RULE и ERROR).
func (c TaskContext) RuleID() string { return c.ruleID }

// Result возвращает текущий Result (ResultUnset до завершения).
func (c TaskContext) Result() Result { return c.result }

// HasResult возвращает true, если Result установлен.
func (c TaskContext) HasResult() bool { return c.result.IsTerminal() }

// Cause возвращает текст ошибки для error-контекста.
func (c TaskContext) Cause() string { return c.cause }

// WithResult возвращает копию контекста с установленным Result.
//
// Повторная установка того же значения идемпотентна, установка другого
// значения возвращает ErrResultAlreadySet.
func (c TaskContext) WithResult(r Result) (TaskContext, error) {
	if !r.IsTerminal() {
		return c, fmt.Errorf("%w: %q", ErrInvalidResult, string(r))
	}
	if c.HasResult() {
		if c.result == r {
			return c, nil
		}
		return c, fmt.Errorf("%w: %s -> %s", ErrResultAlreadySet, c.result, r)
	}
	c.result = r
	return c, nil
}

// String возвращает краткое описание контекста для логов.
func (c TaskContext) String() string {
	switch c.kind {
	case ContextKindRule:
		return fmt.Sprintf("rule{event=%s asset=%s rule=%s result=%s}", c.EventID(), c.assetID, c.ruleID, c.result)
	case ContextKindCompletion:
		return fmt.Sprintf("completion{event=%s result=%s}", c.EventID(), c.result)
	case ContextKindError:
		return fmt.Sprintf("error{event=%s result=%s cause=%q}", c.EventID(), c.result, c.cause)
	default:
		return "unknown{}"
	}
}

// taskContextJSON — представление TaskContext для API и MQ.
type taskContextJSON struct {
	Kind    ContextKind `json:"kind"`
	EventID string      `json:"event_id,omitempty"`
	AssetID string      `json:"asset_id,omitempty"`
	RuleID  string      `json:"rule_id,omitempty"`
	Result  Result      `json:"result,omitempty"`
	Cause   string      `json:"cause,omitempty"`
}

// MarshalJSON сериализует контекст (event — только по ID).
func (c TaskContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskContextJSON{
		Kind:    c.kind,
		EventID: c.EventID(),
		AssetID: c.assetID,
		RuleID:  c.ruleID,
		Result:  c.result,
		Cause:   c.cause,
	})
}

// Action — удалённый вызов, выполняемый sub-task'ом.
//
// Ошибки классифицируются через Retryable/NonRetryable; неразмеченные
// ошибки считаются retryable.
type Action interface {
	Execute(ctx context.Context, tc TaskContext) error
}

// ActionFunc — адаптер функции к Action.
type ActionFunc func(ctx context.Context, tc TaskContext) error

// Execute вызывает f.
func (f ActionFunc) Execute(ctx context.Context, tc TaskContext) error {
	return f(ctx, tc)
}

// SubTask — единица работы, полученная из event.
//
// Run возвращает контекст с Result=SUCCESS при успехе или ошибку.
type SubTask interface {
	Context() TaskContext
	Run(ctx context.Context) (TaskContext, error)
}

// RuleTask — проверка правила для пары (asset, rule).
type RuleTask struct {
	tc     TaskContext
	action Action
}

// NewRuleTask создаёт RuleTask.
func NewRuleTask(event *Event, assetID, ruleID string, action Action) *RuleTask {
	return &RuleTask{
		tc:     NewRuleContext(event, assetID, ruleID),
		action: action,
	}
}

// Context возвращает исходный контекст задачи.
func (t *RuleTask) Context() TaskContext { return t.tc }

// Run выполняет action.
func (t *RuleTask) Run(ctx context.Context) (TaskContext, error) {
	return runAction(ctx, t.tc, t.action)
}

// CompletionTask — завершающая задача event.
type CompletionTask struct {
	tc     TaskContext
	action Action
}

// NewCompletionTask создаёт CompletionTask.
func NewCompletionTask(event *Event, action Action) *CompletionTask {
	return &CompletionTask{
		tc:     NewCompletionContext(event),
		action: action,
	}
}

// Context возвращает исходный контекст задачи.
func (t *CompletionTask) Context() TaskContext { return t.tc }

// Run выполняет action.
func (t *CompletionTask) Run(ctx context.Context) (TaskContext, error) {
	return runAction(ctx, t.tc, t.action)
}

func runAction(ctx context.Context, tc TaskContext, action Action) (TaskContext, error) {
	if action == nil {
		return TaskContext{}, NonRetryablef("%s: no action configured", tc)
	}
	if err := action.Execute(ctx, tc); err != nil {
		return TaskContext{}, err
	}
	return tc.WithResult(ResultSuccess)
}
