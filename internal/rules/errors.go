package rules

import "errors"

var (
	// ErrHTTPRequest — вызов сервиса правил завершился ошибкой.
	ErrHTTPRequest = errors.New("rule evaluator request failed")

	// ErrNoEvaluatorURL — не задан адрес сервиса правил.
	ErrNoEvaluatorURL = errors.New("evaluator url is required")

	// ErrSimulatedFailure — ошибка, сгенерированная SimAction.
	ErrSimulatedFailure = errors.New("simulated failure")
)
