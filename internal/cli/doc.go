// Package cli реализует инструмент командной строки beeflow.
//
// # Обзор
//
// CLI — клиентская утилита для Workflow Manager'а и Task Manager'а.
// Работает через HTTP (internal/client), граф и очереди не трогает.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: beeflow list --json | jq .
//
// ## Commands
//
//   - submit FILE [--start], start, pause, resume, cancel, query,
//     list, delete, reexecute, outputs — Workflow Manager
//   - status — длины очередей Task Manager'а
//
// Команды создаются фабриками (NewWorkflowCmds, NewStatusCmd),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// клиентов и Output после парсинга PersistentFlags.
package cli
