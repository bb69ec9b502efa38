package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskUpdate — сообщение об изменении состояния task.
//
// Формируется Dispatcher'ом по результатам опроса Worker'а
// и доставляется reconciler'у пачками.
type TaskUpdate struct {
	WorkflowID uuid.UUID      `json:"wf_id"`
	TaskID     uuid.UUID      `json:"task_id"`
	JobState   TaskState      `json:"job_state"`
	TaskInfo   *TaskInfo      `json:"task_info,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// TaskInfo — данные для checkpoint-restart.
type TaskInfo struct {
	CheckpointFile string `json:"checkpoint_file"`
	Restart        bool   `json:"restart"`
}

// SubmitRow — строка submit-очереди.
type SubmitRow struct {
	ID   int64 `json:"id"`
	Task Task  `json:"task"`
}

// JobRow — строка job-очереди: task, отправленный в batch-планировщик.
type JobRow struct {
	ID       int64     `json:"id"`
	Task     Task      `json:"task"`
	JobID    string    `json:"job_id"`
	JobState TaskState `json:"job_state"`
}

// UpdateRow — строка update-очереди.
type UpdateRow struct {
	ID     int64      `json:"id"`
	Update TaskUpdate `json:"update"`
}

// CancelResult — итог отмены одного task в Task Manager'е.
type CancelResult struct {
	TaskID uuid.UUID `json:"task_id"`
	Name   string    `json:"name"`
	JobID  string    `json:"job_id"`
	State  TaskState `json:"state"`
}

// String возвращает строку "<name> <task_id> <job_id> <state>".
func (r CancelResult) String() string {
	return fmt.Sprintf("%s %s %s %s", r.Name, r.TaskID, r.JobID, r.State)
}
