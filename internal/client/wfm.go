package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
)

// OutputRecord — запись side-store outputs.
type OutputRecord struct {
	TaskID    uuid.UUID      `json:"task_id"`
	Timestamp time.Time      `json:"ts"`
	Output    map[string]any `json:"output"`
}

// WFM — HTTP-клиент Workflow Manager'а.
//
// Используется CLI и Task Manager'ом (как dispatch.UpdateSink).
type WFM struct {
	base
}

// NewWFM создаёт клиент Workflow Manager'а. timeout <= 0 — 30s.
func NewWFM(baseURL string, timeout time.Duration) *WFM {
	return &WFM{base: newBase(baseURL, timeout)}
}

// Submit загружает bundle (YAML или JSON) и возвращает ID workflow.
func (c *WFM) Submit(ctx context.Context, bundle []byte) (uuid.UUID, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/workflows", "application/yaml", bundle)
	if err != nil {
		return uuid.Nil, err
	}
	defer resp.Body.Close()

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := decodeData(resp, &out); err != nil {
		return uuid.Nil, err
	}
	return out.ID, nil
}

// List возвращает статусы всех workflows.
func (c *WFM) List(ctx context.Context) ([]domain.WorkflowStatus, error) {
	var list []domain.WorkflowStatus
	err := c.doData(ctx, http.MethodGet, "/api/v1/workflows", nil, &list)
	return list, err
}

// Query возвращает статус workflow и его tasks.
func (c *WFM) Query(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	var status domain.WorkflowStatus
	if err := c.doData(ctx, http.MethodGet, workflowPath(id), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Start запускает workflow.
func (c *WFM) Start(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	return c.transition(ctx, id, "start")
}

// Pause приостанавливает workflow.
func (c *WFM) Pause(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	return c.transition(ctx, id, "pause")
}

// Resume возобновляет workflow.
func (c *WFM) Resume(ctx context.Context, id uuid.UUID) (*domain.WorkflowStatus, error) {
	return c.transition(ctx, id, "resume")
}

func (c *WFM) transition(ctx context.Context, id uuid.UUID, action string) (*domain.WorkflowStatus, error) {
	var status domain.WorkflowStatus
	if err := c.doData(ctx, http.MethodPost, workflowPath(id)+"/"+action, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Cancel отменяет workflow и возвращает строки итогов Task Manager'а.
func (c *WFM) Cancel(ctx context.Context, id uuid.UUID) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.doData(ctx, http.MethodPost, workflowPath(id)+"/cancel", nil, &out)
	return out.Lines, err
}

// Delete удаляет workflow.
func (c *WFM) Delete(ctx context.Context, id uuid.UUID) error {
	return c.doData(ctx, http.MethodDelete, workflowPath(id), nil, nil)
}

// Reexecute создаёт новый workflow из архивированного.
func (c *WFM) Reexecute(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.doData(ctx, http.MethodPost, workflowPath(id)+"/reexecute", nil, &out); err != nil {
		return uuid.Nil, err
	}
	return out.ID, nil
}

// Outputs возвращает записи outputs workflow; taskID опционален.
func (c *WFM) Outputs(ctx context.Context, id uuid.UUID, taskID *uuid.UUID) ([]OutputRecord, error) {
	path := workflowPath(id) + "/outputs"
	if taskID != nil {
		path += "?" + url.Values{"task_id": {taskID.String()}}.Encode()
	}

	var out []OutputRecord
	err := c.doData(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// SendUpdates доставляет пачку updates. Реализует dispatch.UpdateSink.
func (c *WFM) SendUpdates(ctx context.Context, updates []domain.TaskUpdate) error {
	body := struct {
		Updates []domain.TaskUpdate `json:"updates"`
	}{Updates: updates}
	return c.doData(ctx, http.MethodPut, "/api/v1/updates", body, nil)
}

func workflowPath(id uuid.UUID) string {
	return "/api/v1/workflows/" + id.String()
}
