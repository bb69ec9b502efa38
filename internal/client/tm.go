package client

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// QueueStats — длины очередей Task Manager'а.
type QueueStats struct {
	Submit int `json:"submit"`
	Job    int `json:"job"`
	Update int `json:"update"`
}

// TM — HTTP-клиент Task Manager'а.
//
// Реализует orchestrator.TaskDispatcher.
type TM struct {
	base
}

// NewTM создаёт клиент Task Manager'а. timeout <= 0 — 30s.
func NewTM(baseURL string, timeout time.Duration) *TM {
	return &TM{base: newBase(baseURL, timeout)}
}

// SubmitTasks передаёт tasks в submit-очередь.
func (c *TM) SubmitTasks(ctx context.Context, tasks []*domain.Task) error {
	body := struct {
		Tasks []*domain.Task `json:"tasks"`
	}{Tasks: tasks}
	return c.doData(ctx, http.MethodPost, "/api/v1/tasks", body, nil)
}

// CancelWorkflow снимает все tasks workflow.
func (c *TM) CancelWorkflow(ctx context.Context, wfID uuid.UUID) ([]domain.CancelResult, error) {
	var results []domain.CancelResult
	err := c.doData(ctx, http.MethodPost, workflowPath(wfID)+"/tasks/cancel", nil, &results)
	return results, err
}

// Stats возвращает длины очередей.
func (c *TM) Stats(ctx context.Context) (*QueueStats, error) {
	var stats QueueStats
	if err := c.doData(ctx, http.MethodGet, "/api/v1/queues", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
