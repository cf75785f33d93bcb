// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация events и отчётов
//   - source.go     — pull-источник events для poller'а
//
// Типы сообщений:
//   - event.pending — event ожидает обработки
//   - event.status  — итог обработки event
//
// Exchanges:
//   - poller.events — events и их статусы
//   - poller.dlq    — dead letter queue
package mq
