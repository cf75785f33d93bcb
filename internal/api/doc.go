// Package api содержит HTTP API сервера poller'а.
//
// Структура:
//   - handler.go       — Handler с DI (runner, recorder, status store, publisher)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - event_handler.go — обработчики для /events и /stats
//
// API только читает состояние poller'а; единственная запись —
// постановка event в очередь, если настроен publisher.
package api
