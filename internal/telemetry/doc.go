// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики dispatch-цикла и reconciler'а
//
// Оба сервиса (WFM и TM) используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
