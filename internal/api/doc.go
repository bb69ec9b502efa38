// Package api содержит HTTP API Workflow Manager'а и Task Manager'а.
//
// Структура:
//   - handler.go          — Handler с DI (сервисы WFM/TM, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — /workflows и /updates (WFM)
//   - task_handler.go     — /tasks и /queues (TM)
//
// Ошибки отдаются конвертом {"error": {"code", "message"}}:
// BAD_REQUEST, NOT_FOUND, CONFLICT, INVALID_STATE, INTERNAL_ERROR.
package api
