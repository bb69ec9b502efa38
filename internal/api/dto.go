package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/beeflow/internal/domain"
	"github.com/shaiso/beeflow/internal/repo"
)

// Workflow DTOs

// SubmitResponse — ответ на загрузку workflow и re-execute.
type SubmitResponse struct {
	ID uuid.UUID `json:"id"`
}

// CancelResponse — ответ на cancel: строки "<name> <task_id> <job_id> <state>".
type CancelResponse struct {
	Lines []string `json:"lines"`
}

// UpdatesRequest — пачка updates от Task Manager'а.
type UpdatesRequest struct {
	Updates []domain.TaskUpdate `json:"updates"`
}

// OutputResponse — запись side-store outputs.
type OutputResponse struct {
	TaskID    uuid.UUID      `json:"task_id"`
	Timestamp time.Time      `json:"ts"`
	Output    map[string]any `json:"output"`
}

// OutputFromRepo конвертирует repo.TaskOutput в OutputResponse.
func OutputFromRepo(o repo.TaskOutput) OutputResponse {
	return OutputResponse{
		TaskID:    o.TaskID,
		Timestamp: o.Timestamp,
		Output:    o.Output,
	}
}

// Task Manager DTOs

// SubmitTasksRequest — tasks для submit-очереди.
type SubmitTasksRequest struct {
	Tasks []*domain.Task `json:"tasks"`
}

// QueueStatsResponse — длины очередей Task Manager'а.
type QueueStatsResponse struct {
	Submit int `json:"submit"`
	Job    int `json:"job"`
	Update int `json:"update"`
}
