// Package client содержит HTTP-клиенты процессов beeflow.
//
//   - WFM — Workflow Manager: действия над workflows (CLI) и доставка
//     пачек updates (Task Manager, dispatch.UpdateSink).
//   - TM — Task Manager: submit и bulk cancel tasks (orchestrator.TaskDispatcher),
//     статистика очередей.
//
// Ответы сервера разбираются из конверта {"data": ...}; ошибки
// возвращаются как *APIError с кодом из {"error": {"code", "message"}}.
package client
