// Package repo — хранилище Workflow Manager'а в PostgreSQL (pgx).
//
// Таблицы:
//   - workflows    — JSONB-снимок графа каждого workflow
//   - task_outputs — outputs из updates, ключ (wf_id, task_id, ts)
//   - archives     — журнал архивирования
package repo
