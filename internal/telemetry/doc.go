// Package telemetry обеспечивает наблюдаемость poller'а.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Метрики экспортируются на /metrics endpoint.
package telemetry
