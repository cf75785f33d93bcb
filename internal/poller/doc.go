// Package poller — драйвер опроса журнала событий.
//
// Poller по расписанию (fixed rate или cron) выполняет tick:
//
//  1. Запрашивает свободную ёмкость Runner'а.
//  2. Получает batch у Batcher'а.
//  3. Отправляет каждую группу агрегатору и не ждёт результата.
//
// Ошибка одного tick не останавливает расписание. Если tick затянулся,
// следующий запускается сразу, пропущенные tick'и не накапливаются.
package poller
