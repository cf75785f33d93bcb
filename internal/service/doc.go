// Package service собирает компоненты poller'а в один процесс.
//
// Gate и Runner ограничивают число одновременных задач, Batcher
// превращает свободную ёмкость в events и sub-tasks, Aggregator сводит
// их результаты в Report, Poller задаёт ритм. Отчёты расходятся по
// status sink'ам: Recorder (для API), лог, метрики и дополнительные
// sink'и (Postgres, RabbitMQ).
package service
