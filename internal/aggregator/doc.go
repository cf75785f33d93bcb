// Package aggregator обрабатывает группу sub-tasks одного event.
//
// Aggregator отправляет каждую задачу в общий Runner, классифицирует
// исход, дожидается всех задач и выводит Verdict:
//
//	ALL_SUCCESS        все задачи успешны
//	ALL_RETRYABLE      все задачи упали с retryable ошибкой
//	ALL_NON_RETRYABLE  все задачи упали с non-retryable ошибкой
//	MIXED              всё остальное
//
// Отчёт уходит в Sink. Повторов sub-tasks здесь нет: решение о повторе
// принимает владелец журнала событий по Verdict.
package aggregator
